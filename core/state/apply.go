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

// Package state implements the write-set applier (C1): turning one
// transaction's WriteSet into touched AccountStateBlobs, and the
// account-state view (adapted from Erigon's HistoryReaderV3) that backs
// both C1's read-before-write check and C2's proof reader.
package state

import (
	"errors"
	"fmt"

	"github.com/chainbft/blockexec/core/types"
)

// ErrReadSetViolation is raised when a transaction other than Genesis,
// BlockMetadata, or a WriteSet-payload User transaction touches an
// account the VM never read — the VM contract requires read-before-write.
var ErrReadSetViolation = errors.New("state: read-set violation")

// AccountStore is the read side C1 needs: resolve an address to its
// current AccountState, or report that it has never been touched.
type AccountStore interface {
	AccountState(addr types.AccountAddress) (*types.AccountState, bool)
}

// Apply runs C1 for a single transaction: for each (access_path, op) in
// writeSet, locate the account entry in accountToState, applying the op
// to a clone so the caller's snapshot is never mutated in place, then
// serializes every touched account. Untouched accounts are not returned;
// callers must keep the prior blob by reference.
func Apply(txn types.Transaction, accountToState AccountStore, writeSet types.WriteSet) (map[types.AccountAddress]types.AccountStateBlob, error) {
	touched := make(map[types.AccountAddress]*types.AccountState)

	for _, entry := range writeSet {
		addr := entry.Path.Address
		acct, ok := touched[addr]
		if !ok {
			existing, present := accountToState.AccountState(addr)
			if !present {
				if !txn.AllowsBlindWrite() {
					return nil, fmt.Errorf("%w: address %s path %q not in read set", ErrReadSetViolation, addr, entry.Path.Path)
				}
				acct = types.NewAccountState()
			} else {
				acct = types.CloneAccountState(existing)
			}
			touched[addr] = acct
		}

		switch entry.Op.Kind {
		case types.WriteOpValue:
			acct.Set(entry.Path.Path, entry.Op.Value)
		case types.WriteOpDeletion:
			acct.Delete(entry.Path.Path)
		default:
			return nil, fmt.Errorf("state: unknown write op kind %d", entry.Op.Kind)
		}
	}

	out := make(map[types.AccountAddress]types.AccountStateBlob, len(touched))
	for addr, acct := range touched {
		out[addr] = types.Serialize(acct)
	}
	return out, nil
}
