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

package vm

import "github.com/chainbft/blockexec/core/types"

// ScriptedOutputs is a deterministic Executor driven by a pre-supplied
// table of outputs keyed by transaction hash, standing in for the real
// VM (explicitly out of scope, spec §1) in tests and in blockexecd when
// no VM plugin is configured. Every transaction not present in the table
// keeps with an empty write set and no events.
type ScriptedOutputs struct {
	outputs map[types.Hash]types.TransactionOutput
}

// NewScriptedOutputs returns a stub seeded with outputs.
func NewScriptedOutputs(outputs map[types.Hash]types.TransactionOutput) *ScriptedOutputs {
	return &ScriptedOutputs{outputs: outputs}
}

func (s *ScriptedOutputs) ExecuteBlock(txns []types.Transaction, view StateView, catchUpMode bool) ([]types.TransactionOutput, error) {
	out := make([]types.TransactionOutput, len(txns))
	for i, txn := range txns {
		if o, ok := s.outputs[txn.Hash]; ok {
			out[i] = o
			continue
		}
		out[i] = types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}
	}
	return out, nil
}
