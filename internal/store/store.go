// Copyright 2026 The Blockexec Authors
// This file is part of Blockexec.
//
// Blockexec is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blockexec is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Blockexec. If not, see <http://www.gnu.org/licenses/>.

// Package store defines the ledger store contract this executor consumes
// (spec §6): get_startup_info, save_transactions (atomic), and
// get_state_with_proof. It mirrors the narrow surface original_source's
// storage/src/state.rs exposes to the executor, nothing more.
package store

import (
	"encoding/binary"

	"github.com/cometbft/cometbft/crypto/merkle"

	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
)

// TransactionToCommit is one persisted ledger entry: the transaction, the
// account blobs it touched, its events, gas used, and its Keep status.
type TransactionToCommit struct {
	Txn          types.Transaction
	AccountBlobs map[types.AccountAddress]types.AccountStateBlob
	Events       []types.ContractEvent
	GasUsed      uint64
	Status       types.Status
}

// LedgerInfo is a signed commitment to a version and a state root — the
// unit of finality (spec glossary).
type LedgerInfo struct {
	Version                    uint64
	ConsensusBlockID           types.Hash
	TransactionAccumulatorHash types.Hash
	EndsEpoch                  bool
	NextEpochState             *pos.EpochState
}

// Hash is the payload validators sign over. It leans on cometbft's
// merkle.HashFromByteSlices — the same leaf-hashing scheme cometbft uses
// to hash a SignedHeader's fields — so any two honest replicas that agree
// on a LedgerInfo compute the identical hash without a bespoke codec.
func (li LedgerInfo) Hash() []byte {
	var versionBytes, heightBytes [8]byte
	binary.BigEndian.PutUint64(versionBytes[:], li.Version)
	endsEpoch := []byte{0}
	if li.EndsEpoch {
		endsEpoch[0] = 1
	}
	var nextEpochBytes []byte
	if li.NextEpochState != nil {
		binary.BigEndian.PutUint64(heightBytes[:], li.NextEpochState.EpochNumber)
		nextEpochBytes = heightBytes[:]
	}
	return merkle.HashFromByteSlices([][]byte{
		versionBytes[:],
		li.ConsensusBlockID.Bytes(),
		li.TransactionAccumulatorHash.Bytes(),
		endsEpoch,
		nextEpochBytes,
	})
}

// SignatureVerifier is the BLS (or other) quorum-certificate verifier,
// injected rather than implemented here: the BLS signature primitive is
// explicitly out of scope (spec §1).
type SignatureVerifier interface {
	Verify(li LedgerInfo, signatures [][]byte) bool
}

// LedgerInfoWithSignatures pairs a LedgerInfo with pre-verified signature
// bytes from the validator quorum. Modeled on cometbft's SignedHeader:
// the payload being signed over is hashed the same way cometbft hashes a
// header, via crypto/merkle.HashFromByteSlices, so a LedgerInfoHash is
// reproducible by any two honest replicas.
type LedgerInfoWithSignatures struct {
	LedgerInfo LedgerInfo
	Signatures [][]byte
}

// StartupInfo is what get_startup_info yields: the committed
// ExecutedTrees and the latest known LedgerInfo.
type StartupInfo struct {
	CommittedBlockID types.Hash
	CommittedTrees   *trees.ExecutedTrees
	LatestLedgerInfo *LedgerInfoWithSignatures
}

// Store is the ledger store contract consumed by C7/C8 (spec §6).
// Implementations must make SaveTransactions atomic: the transaction
// batch and the optional ledger info are persisted together or not at
// all. Neither MemStore nor MDBXStore persists the PoS state snapshot.
type Store interface {
	// GetStartupInfo returns nil, nil if the store has never been
	// bootstrapped (ErrDbNotBootstrapped is the caller's concern, not
	// the store's — ChunkExecutor/BlockExecutor construction surfaces
	// it).
	GetStartupInfo() (*StartupInfo, error)

	// SaveTransactions persists txnsToCommit starting at firstVersion,
	// atomically with ledgerInfo when non-nil. posState carries the tip's
	// PoS state; the implementations in this package do not store it.
	SaveTransactions(txnsToCommit []TransactionToCommit, firstVersion uint64, ledgerInfo *LedgerInfoWithSignatures, posState *pos.PosState) error

	// GetStateWithProof returns the AccountStateBlob for key (the
	// 256-bit hash of an account address) along with a Merkle proof
	// sufficient for smt.BatchUpdate's ProofAttester, or ok=false if key
	// is provably absent from the committed state tree.
	GetStateWithProof(key types.Hash) (blob types.AccountStateBlob, ok bool, err error)
}
