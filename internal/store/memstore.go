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
	"sync"

	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
)

// MemStore is an in-memory Store, used by tests. SaveTransactions holds
// the lock for its entire body, so a batch and its ledger info land
// together; the posState argument is not stored.
type MemStore struct {
	mu sync.Mutex

	bootstrapped bool
	committedID  types.Hash
	trees        *trees.ExecutedTrees
	ledgerInfo   *LedgerInfoWithSignatures
	log          []TransactionToCommit
	blobs        map[types.Hash]types.AccountStateBlob
}

// NewMemStore returns a store pre-bootstrapped with genesisID and
// genesisTrees, matching what a real store would report after the
// genesis ceremony (genesis tooling itself is out of scope, spec §1).
func NewMemStore(genesisID types.Hash, genesisTrees *trees.ExecutedTrees) *MemStore {
	return &MemStore{
		bootstrapped: true,
		committedID:  genesisID,
		trees:        genesisTrees,
		blobs:        make(map[types.Hash]types.AccountStateBlob),
	}
}

func (m *MemStore) GetStartupInfo() (*StartupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bootstrapped {
		return nil, nil
	}
	return &StartupInfo{
		CommittedBlockID: m.committedID,
		CommittedTrees:   m.trees,
		LatestLedgerInfo: m.ledgerInfo,
	}, nil
}

func (m *MemStore) SaveTransactions(txnsToCommit []TransactionToCommit, firstVersion uint64, ledgerInfo *LedgerInfoWithSignatures, posState *pos.PosState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log = append(m.log, txnsToCommit...)
	for _, t := range txnsToCommit {
		for addr, blob := range t.AccountBlobs {
			m.blobs[types.HashAddress(addr)] = blob
		}
	}
	if ledgerInfo != nil {
		m.ledgerInfo = ledgerInfo
		m.committedID = ledgerInfo.LedgerInfo.ConsensusBlockID
	}
	return nil
}

func (m *MemStore) GetStateWithProof(key types.Hash) (types.AccountStateBlob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[key]
	return blob, ok, nil
}

// SetCommittedTrees lets callers (the facade, on commit) advance the
// store's notion of the committed ExecutedTrees without going through a
// fresh SaveTransactions call — mirrors how a durable store's commit path
// updates its own in-process cache of the tip after a successful write.
func (m *MemStore) SetCommittedTrees(id types.Hash, t *trees.ExecutedTrees) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committedID = id
	m.trees = t
}
