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

// Package smt implements C2, the sparse Merkle state tree keyed by the
// 256-bit hash of an account address. Leaves are shared, structurally, by
// every ExecutedTrees descendant until the owning block is pruned: Tree is
// an immutable value, and BatchUpdate returns a new Tree rather than
// mutating the receiver, which is what lets speculative siblings reference
// the same parent tree safely.
package smt

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/chainbft/blockexec/core/types"
)

// ErrProofMissing is raised when BatchUpdate deletes a key the tree has
// never materialized and no ProofReader was supplied to attest to it.
var ErrProofMissing = errors.New("smt: proof missing for key")

// leaf is the btree.Item backing one materialized (key, blobHash) pair.
type leaf struct {
	key  types.Hash
	hash types.Hash
}

func (l *leaf) Less(other btree.Item) bool {
	o := other.(*leaf)
	for i := range l.key {
		if l.key[i] != o.key[i] {
			return l.key[i] < o.key[i]
		}
	}
	return false
}

// Tree is a sparse Merkle tree snapshot: the set of materialized leaves
// plus the root hash they imply. Keys never seen by this tree are assumed
// to hash to the empty subtree root unless a proof says otherwise.
type Tree struct {
	nodes *btree.BTree
	root  types.Hash
}

// NewEmpty returns the tree with no materialized leaves.
func NewEmpty() *Tree {
	return &Tree{nodes: btree.New(32), root: emptyRoot}
}

var emptyRoot = types.HashBytes([]byte("smt:empty"))

// RootHash returns the tree's current root.
func (t *Tree) RootHash() types.Hash { return t.root }

// Get returns the materialized leaf hash for key, if any.
func (t *Tree) Get(key types.Hash) (types.Hash, bool) {
	item := t.nodes.Get(&leaf{key: key})
	if item == nil {
		return types.Hash{}, false
	}
	return item.(*leaf).hash, true
}

// clone produces a new btree sharing no mutable state with t.nodes; the
// underlying btree package shares internal nodes structurally (copy-on-
// write b-tree), so Clone() is O(1) and ancestors are never mutated by a
// descendant's BatchUpdate.
func (t *Tree) clone() *btree.BTree {
	return t.nodes.Clone()
}

// PerTxnUpdate is one transaction's contribution to a BatchUpdate call:
// the ordered set of (key, blobHash) pairs C1 emitted for that
// transaction, in the order C1 emitted them (the tie-break rule in
// spec §4.2).
type PerTxnUpdate struct {
	Keys   []types.Hash
	Hashes []types.Hash // Hashes[i] is the new leaf hash for Keys[i]; zero hash means deletion
}

// BatchUpdate applies a sequence of per-transaction update batches on top
// of the tree, returning the root hash *after* each transaction (so
// len(roots) == len(perTxnUpdates)) and the resulting tree. Keys not yet
// materialized in the tree are looked up through proofReader: a key it
// attests to is materialized with the attested hash before the update,
// and a key it reports absent starts empty. With a nil proofReader an
// unmaterialized key is assumed empty: writing it succeeds, deleting it
// fails with ErrProofMissing. On any error (including a reader error) the
// receiver is left untouched (no partial update is observable).
func BatchUpdate(base *Tree, perTxnUpdates []PerTxnUpdate, proofReader ProofAttester) ([]types.Hash, *Tree, error) {
	working := base.clone()
	roots := make([]types.Hash, 0, len(perTxnUpdates))

	for _, txnUpdate := range perTxnUpdates {
		for i, key := range txnUpdate.Keys {
			newHash := txnUpdate.Hashes[i]
			if working.Get(&leaf{key: key}) == nil {
				if proofReader == nil {
					if newHash.IsZero() {
						return nil, base, fmt.Errorf("%w: %s", ErrProofMissing, key)
					}
				} else {
					attested, present, err := proofReader.Attest(key)
					if err != nil {
						return nil, base, fmt.Errorf("smt: proof reader error for key %s: %w", key, err)
					}
					if present {
						working.ReplaceOrInsert(&leaf{key: key, hash: attested})
					}
				}
			}
			if newHash.IsZero() {
				working.Delete(&leaf{key: key})
				continue
			}
			working.ReplaceOrInsert(&leaf{key: key, hash: newHash})
		}
		roots = append(roots, rootOf(working))
	}

	return roots, &Tree{nodes: working, root: rootOf(working)}, nil
}

// ProofAttester is the proof-reader capability BatchUpdate consults for
// keys it has not yet materialized.
type ProofAttester interface {
	Attest(key types.Hash) (hash types.Hash, present bool, err error)
}

// rootOf recomputes the tree root as the hash of every materialized leaf
// in key order (the btree already keeps them sorted), which keeps the
// root a deterministic function of the (key, hash) set regardless of
// insertion order.
func rootOf(t *btree.BTree) types.Hash {
	if t.Len() == 0 {
		return emptyRoot
	}
	buf := make([]byte, 0, t.Len()*types.HashLength*2)
	t.Ascend(func(i btree.Item) bool {
		l := i.(*leaf)
		buf = append(buf, l.key[:]...)
		buf = append(buf, l.hash[:]...)
		return true
	})
	return types.HashBytes(buf)
}
