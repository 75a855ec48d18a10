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

// Package trees holds ExecutedTrees, the triple every executor component
// shares: the state tree, the transaction accumulator, and the PoS state,
// together representing the logical ledger at one point (spec §3).
package trees

import (
	"github.com/chainbft/blockexec/core/accumulator"
	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/types"
)

// ExecutedTrees is shared read-only by every speculative descendant of
// the block that produced it, until that block is pruned (spec §3, §5).
type ExecutedTrees struct {
	StateTree  *smt.Tree
	Accu       *accumulator.Accumulator
	PosState   *pos.PosState
}

// NewGenesis returns the ExecutedTrees for the synthetic PRE_GENESIS
// parent: empty state tree, empty accumulator, fresh PosState.
func NewGenesis(termLength uint64) *ExecutedTrees {
	return &ExecutedTrees{
		StateTree: smt.NewEmpty(),
		Accu:      accumulator.NewEmpty(),
		PosState:  pos.NewGenesis(termLength),
	}
}

// Version reports how many transactions have ever been applied to reach
// this state (I1: equals the accumulator's leaf count).
func (t *ExecutedTrees) Version() uint64 { return t.Accu.NumLeaves() }

// StateRoot returns the state tree's root hash.
func (t *ExecutedTrees) StateRoot() types.Hash { return t.StateTree.RootHash() }

// AccountLeafHash resolves addr against the materialized state tree leaf,
// returning the blob hash only — callers needing the decoded resources
// go through a VerifiedStateView instead, since ExecutedTrees itself only
// retains leaf hashes, not full blobs (the blobs live in the store).
func (t *ExecutedTrees) AccountLeafHash(addr types.AccountAddress) (types.Hash, bool) {
	return t.StateTree.Get(types.HashAddress(addr))
}
