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

// Package vm defines the VM capability this executor consumes (spec §6,
// §9): a single synchronous, deterministic method injected at facade
// construction rather than a type parameter, so the executor stays
// independent of any particular VM implementation.
package vm

import "github.com/chainbft/blockexec/core/types"

// Executor is the VM contract: deterministic, read-before-write, and
// must emit only recognized event keys with well-formed payloads.
type Executor interface {
	ExecuteBlock(txns []types.Transaction, view StateView, catchUpMode bool) ([]types.TransactionOutput, error)
}

// StateView is the read side the VM is given: resolve an address to its
// account state. It is satisfied by core/state.VerifiedStateView.
type StateView interface {
	AccountState(addr types.AccountAddress) (*types.AccountState, bool)
}
