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

// Package chunk implements C8, the chunk executor and transaction replayer
// used for state synchronization: verifying a proof-bearing transaction
// chunk against the locally held accumulator and applying it, bypassing
// the speculative fork tree entirely.
package chunk

import "github.com/chainbft/blockexec/core/types"

// TransactionListWithProof is a contiguous run of transactions the sync
// protocol delivered, accompanied by the accumulator proof a verifier needs
// to check it extends the ledger the supplied LedgerInfo commits to:
// FirstVersion names where the run starts, Infos carries the TransactionInfo
// for every transaction (including ones this node may already have), and
// LeftSiblings are the accumulator's frozen subtree roots immediately
// before FirstVersion, largest (leftmost) first — the same representation
// accumulator.FrozenSubtreeRoots produces.
type TransactionListWithProof struct {
	FirstVersion uint64
	Transactions []types.Transaction
	Infos        []types.TransactionInfo
	LeftSiblings []types.Hash
}
