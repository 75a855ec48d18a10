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

package state

import (
	"errors"
	"fmt"

	"github.com/chainbft/blockexec/core/types"
)

// ErrPruned mirrors state.PrunedError from Erigon's HistoryReaderV3: the
// account a read targets predates this view's retention window.
var ErrPruned = errors.New("state: account data not available, pruned")

// VerifiedStateView is the read-only snapshot the facade builds over a
// parent block's ExecutedTrees before calling the VM (spec §4.7). It
// composes an in-memory overlay of touched accounts (populated as C1 runs)
// over the committed blobs held by the parent's state tree, falling back
// to a Merkle proof for keys the overlay has never materialized — the
// same two-tier shape as Erigon's HistoryReaderV3, which falls back from
// an in-memory domain write-set to the temporal history store.
type VerifiedStateView struct {
	overlay  map[types.AccountAddress]*types.AccountState
	proofs   ProofReader
	base     func(types.AccountAddress) (types.AccountStateBlob, bool)
	trace    bool
	accessed map[types.AccountAddress]struct{}
}

// ProofReader supplies Merkle proofs for keys the overlay hasn't
// materialized yet (C2's proof_reader contract).
type ProofReader interface {
	// Proof returns the serialized AccountStateBlob for key if the proof
	// reader can attest to it, or ok=false if the key is provably absent.
	Proof(key types.Hash) (types.AccountStateBlob, bool, error)
}

// NewVerifiedStateView constructs a view rooted at a parent's committed
// state, reading through proofs to base. base typically comes from the
// parent ExecutedTrees' state tree.
func NewVerifiedStateView(base func(types.AccountAddress) (types.AccountStateBlob, bool), proofs ProofReader) *VerifiedStateView {
	return &VerifiedStateView{
		overlay:  make(map[types.AccountAddress]*types.AccountState),
		proofs:   proofs,
		base:     base,
		accessed: make(map[types.AccountAddress]struct{}),
	}
}

func (v *VerifiedStateView) SetTrace(trace bool) { v.trace = trace }

// AccountState implements AccountStore for C1: returns the overlay entry
// if present, else decodes the base blob (falling back to a proof) and
// caches the decoded state as the new overlay entry.
func (v *VerifiedStateView) AccountState(addr types.AccountAddress) (*types.AccountState, bool) {
	v.accessed[addr] = struct{}{}
	if acct, ok := v.overlay[addr]; ok {
		return acct, true
	}

	blob, ok := v.base(addr)
	if !ok {
		key := types.HashAddress(addr)
		proved, present, err := v.proofs.Proof(key)
		if err != nil || !present {
			return nil, false
		}
		blob = proved
	}
	acct, err := decodeBlob(blob)
	if err != nil {
		return nil, false
	}
	v.overlay[addr] = acct
	return acct, true
}

// ApplyTouched merges C1's output back into the overlay so subsequent
// transactions in the same block observe each other's writes.
func (v *VerifiedStateView) ApplyTouched(touched map[types.AccountAddress]types.AccountStateBlob) error {
	for addr, blob := range touched {
		acct, err := decodeBlob(blob)
		if err != nil {
			return fmt.Errorf("state: re-decoding touched blob for %s: %w", addr, err)
		}
		v.overlay[addr] = acct
	}
	return nil
}

// AccessedAddresses returns every address this view has resolved, used by
// tests asserting C1's read-before-write behavior.
func (v *VerifiedStateView) AccessedAddresses() []types.AccountAddress {
	out := make([]types.AccountAddress, 0, len(v.accessed))
	for a := range v.accessed {
		out = append(out, a)
	}
	return out
}

func decodeBlob(blob types.AccountStateBlob) (*types.AccountState, error) {
	acct := types.NewAccountState()
	buf := []byte(blob)
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, fmt.Errorf("state: truncated blob header")
		}
		plen := int(be32(buf))
		buf = buf[4:]
		if len(buf) < plen+4 {
			return nil, fmt.Errorf("state: truncated blob path")
		}
		path := buf[:plen]
		buf = buf[plen:]
		vlen := int(be32(buf))
		buf = buf[4:]
		if len(buf) < vlen {
			return nil, fmt.Errorf("state: truncated blob value")
		}
		value := buf[:vlen]
		buf = buf[vlen:]
		acct.Set(append([]byte(nil), path...), append([]byte(nil), value...))
	}
	return acct, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
