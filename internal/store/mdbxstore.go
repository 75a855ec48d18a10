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

package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
)

// Table names for the three append-only/point-lookup tables this store
// keeps: the transaction log, the ledger-info tip and the account state
// blobs. No table holds a PoS state snapshot.
const (
	tableTxnLog     = "TxnLog"     // version (8-byte BE) -> encoded TransactionToCommit
	tableLedgerInfo = "LedgerInfo" // "tip" -> encoded LedgerInfoWithSignatures
	tableStateBlobs = "StateBlobs" // 256-bit key -> AccountStateBlob
)

// MDBXStore is the durable reference Store, an MDBX-backed append-only
// transaction log plus a ledger-info and a state-blob table. MDBX gives
// us the atomicity SaveTransactions needs for free: one write transaction
// covers the log append, the ledger-info upsert, and the blob writes.
// The posState argument of SaveTransactions is not persisted.
type MDBXStore struct {
	env *mdbx.Env

	dbiTxnLog     mdbx.DBI
	dbiLedgerInfo mdbx.DBI
	dbiStateBlobs mdbx.DBI

	genesisID    types.Hash
	genesisTrees *trees.ExecutedTrees
}

// OpenMDBXStore opens (creating if absent) an MDBX environment at path
// with the three tables this store needs.
func OpenMDBXStore(path string, genesisID types.Hash, genesisTrees *trees.ExecutedTrees) (*MDBXStore, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("store: mdbx.NewEnv: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, 8); err != nil {
		return nil, fmt.Errorf("store: set max dbs: %w", err)
	}
	if err := env.Open(path, mdbx.Create, 0o644); err != nil {
		return nil, fmt.Errorf("store: mdbx.Open(%s): %w", path, err)
	}

	s := &MDBXStore{env: env, genesisID: genesisID, genesisTrees: genesisTrees}
	err = env.Update(func(txn *mdbx.Txn) error {
		var err error
		if s.dbiTxnLog, err = txn.OpenDBI(tableTxnLog, mdbx.Create, nil, nil); err != nil {
			return err
		}
		if s.dbiLedgerInfo, err = txn.OpenDBI(tableLedgerInfo, mdbx.Create, nil, nil); err != nil {
			return err
		}
		if s.dbiStateBlobs, err = txn.OpenDBI(tableStateBlobs, mdbx.Create, nil, nil); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("store: opening tables: %w", err)
	}
	return s, nil
}

// Close releases the MDBX environment.
func (s *MDBXStore) Close() { s.env.Close() }

func versionKey(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

// wireTxnToCommit and wireLedgerInfo are the JSON-friendly shapes
// persisted to MDBX; canonical binary encoding matters for the
// accumulator/state-tree hashes, not for the store's own serialization,
// so JSON keeps this layer simple to audit.
type wireTxnToCommit struct {
	TxnKind      types.TransactionKind
	TxnPayload   types.UserPayloadKind
	TxnHash      types.Hash
	AccountBlobs map[string][]byte
	Events       []types.ContractEvent
	GasUsed      uint64
	StatusKind   types.StatusKind
	StatusCode   uint64
}

func toWire(t TransactionToCommit) wireTxnToCommit {
	blobs := make(map[string][]byte, len(t.AccountBlobs))
	for addr, blob := range t.AccountBlobs {
		blobs[addr.String()] = blob
	}
	return wireTxnToCommit{
		TxnKind:      t.Txn.Kind,
		TxnPayload:   t.Txn.Payload,
		TxnHash:      t.Txn.Hash,
		AccountBlobs: blobs,
		Events:       t.Events,
		GasUsed:      t.GasUsed,
		StatusKind:   t.Status.Kind,
		StatusCode:   t.Status.Code,
	}
}

func (s *MDBXStore) GetStartupInfo() (*StartupInfo, error) {
	var info *StartupInfo
	err := s.env.View(func(txn *mdbx.Txn) error {
		raw, err := txn.Get(s.dbiLedgerInfo, []byte("tip"))
		if err != nil {
			if mdbx.IsNotFound(err) {
				info = &StartupInfo{CommittedBlockID: s.genesisID, CommittedTrees: s.genesisTrees}
				return nil
			}
			return err
		}
		var li LedgerInfoWithSignatures
		if err := json.Unmarshal(raw, &li); err != nil {
			return fmt.Errorf("store: decoding ledger info: %w", err)
		}
		info = &StartupInfo{
			CommittedBlockID: li.LedgerInfo.ConsensusBlockID,
			CommittedTrees:   s.genesisTrees, // caller replays the log on top if needed
			LatestLedgerInfo: &li,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get_startup_info: %w", err)
	}
	return info, nil
}

func (s *MDBXStore) SaveTransactions(txnsToCommit []TransactionToCommit, firstVersion uint64, ledgerInfo *LedgerInfoWithSignatures, posState *pos.PosState) error {
	return s.env.Update(func(txn *mdbx.Txn) error {
		for i, t := range txnsToCommit {
			raw, err := json.Marshal(toWire(t))
			if err != nil {
				return fmt.Errorf("store: encoding txn %d: %w", i, err)
			}
			if err := txn.Put(s.dbiTxnLog, versionKey(firstVersion+uint64(i)), raw, 0); err != nil {
				return fmt.Errorf("store: appending txn %d: %w", i, err)
			}
			for addr, blob := range t.AccountBlobs {
				if err := txn.Put(s.dbiStateBlobs, types.HashAddress(addr).Bytes(), blob, 0); err != nil {
					return fmt.Errorf("store: writing blob for %s: %w", addr, err)
				}
			}
		}
		if ledgerInfo != nil {
			raw, err := json.Marshal(ledgerInfo)
			if err != nil {
				return fmt.Errorf("store: encoding ledger info: %w", err)
			}
			if err := txn.Put(s.dbiLedgerInfo, []byte("tip"), raw, 0); err != nil {
				return fmt.Errorf("store: writing ledger info: %w", err)
			}
		}
		return nil
	})
}

func (s *MDBXStore) GetStateWithProof(key types.Hash) (types.AccountStateBlob, bool, error) {
	var blob types.AccountStateBlob
	var found bool
	err := s.env.View(func(txn *mdbx.Txn) error {
		raw, err := txn.Get(s.dbiStateBlobs, key.Bytes())
		if err != nil {
			if mdbx.IsNotFound(err) {
				return nil
			}
			return err
		}
		blob = append(types.AccountStateBlob(nil), raw...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get_state_with_proof: %w", err)
	}
	return blob, found, nil
}

var _ smt.BlobProofReader = (*MDBXStore)(nil)

// Proof implements smt.BlobProofReader directly against GetStateWithProof,
// so C2's BatchUpdate can read proofs straight out of durable storage.
func (s *MDBXStore) Proof(key types.Hash) (types.AccountStateBlob, bool, error) {
	return s.GetStateWithProof(key)
}
