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

package types

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// AccountState is the ordered mapping from resource path to resource bytes
// that C1 mutates. Paths are kept sorted so that AccountStateBlob
// serialization is canonical regardless of mutation order.
type AccountState struct {
	resources map[string][]byte
}

// NewAccountState returns an empty account state.
func NewAccountState() *AccountState {
	return &AccountState{resources: make(map[string][]byte)}
}

// CloneAccountState returns a deep copy so descendants never alias a
// parent's mutable resource map.
func CloneAccountState(a *AccountState) *AccountState {
	out := NewAccountState()
	if a == nil {
		return out
	}
	for k, v := range a.resources {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.resources[k] = cp
	}
	return out
}

// Get returns the resource at path and whether it is present.
func (a *AccountState) Get(path []byte) ([]byte, bool) {
	v, ok := a.resources[string(path)]
	return v, ok
}

// Set inserts or overwrites the resource at path.
func (a *AccountState) Set(path, value []byte) {
	a.resources[string(path)] = value
}

// Delete removes the resource at path, if present.
func (a *AccountState) Delete(path []byte) {
	delete(a.resources, string(path))
}

// Len reports how many resources the account currently holds.
func (a *AccountState) Len() int { return len(a.resources) }

// AccountStateBlob is the canonical serialization of an AccountState — the
// value type stored in the sparse Merkle state tree's leaves.
type AccountStateBlob []byte

// Serialize produces the canonical blob for an account state: resource
// paths sorted lexicographically, each encoded as a length-prefixed
// (path, value) pair.
func Serialize(a *AccountState) AccountStateBlob {
	if a == nil || len(a.resources) == 0 {
		return nil
	}
	paths := make([]string, 0, len(a.resources))
	for p := range a.resources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, p := range paths {
		v := a.resources[p]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		buf.Write(lenBuf[:])
		buf.WriteString(p)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return buf.Bytes()
}

// HashBlob derives the sparse-Merkle leaf hash of a serialized account
// state blob.
func HashBlob(b AccountStateBlob) Hash {
	return HashBytes(b)
}
