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

package speculation

import (
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/core/vmoutput"
)

// BlockSlot is one speculative block's payload: the (possibly empty,
// per the reconfiguration-suffix rule) transactions it executed and the
// ProcessedVMOutput they produced.
type BlockSlot struct {
	Transactions []types.Transaction
	Output       *vmoutput.ProcessedVMOutput
}

// node is one arena entry: a block's identity, its parent/child edges,
// and its slot. Using an arena keyed by block_id rather than shared
// pointers lets Prune drop a whole subtree in O(|subtree|) (spec §9).
type node struct {
	id       types.Hash
	parent   types.Hash
	children []types.Hash
	slot     *BlockSlot
}
