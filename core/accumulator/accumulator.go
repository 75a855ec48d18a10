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

// Package accumulator implements C3: an append-only Merkle accumulator
// over transaction-info (or event) hashes. It keeps a frozen-subtree
// representation (a Merkle mountain range) so NewInMemoryAccumulator can
// resume appending from a prior root's frozen subtree roots plus a leaf
// count alone, and so two peers with the same append history always
// produce byte-identical roots (P1).
package accumulator

import (
	"crypto/sha256"
	"math/bits"

	merkle "github.com/xsleonard/go-merkle"

	"github.com/chainbft/blockexec/core/types"
)

// Accumulator is an append-only Merkle mountain range over leaf hashes.
// Its state decomposes exactly into one perfect-subtree "peak" per set bit
// of numLeaves — the binary representation of the leaf count — so there is
// never a partial, not-yet-perfect remainder to track separately. Peaks
// are kept largest (leftmost) first. Accumulator is immutable: Append
// returns a new Accumulator and never mutates the receiver, which is what
// lets every ExecutedTrees descendant share a parent's accumulator safely.
type Accumulator struct {
	numLeaves uint64
	frozen    []types.Hash // perfect-subtree peaks, largest (leftmost) first
}

// NewEmpty returns the accumulator with zero leaves.
func NewEmpty() *Accumulator {
	return &Accumulator{}
}

// NewInMemoryAccumulator reconstructs an accumulator from a prior root's
// frozen subtree roots (peaks) and leaf count — sufficient state to append
// further leaves and, for the chunk executor, to verify I8 (the frozen
// subtrees plus any verified left-siblings reconstruct the committed
// root).
func NewInMemoryAccumulator(frozenSubtreeRoots []types.Hash, numLeaves uint64) *Accumulator {
	return &Accumulator{
		numLeaves: numLeaves,
		frozen:    append([]types.Hash(nil), frozenSubtreeRoots...),
	}
}

// NumLeaves reports the total number of leaves ever appended.
func (a *Accumulator) NumLeaves() uint64 { return a.numLeaves }

// FrozenSubtreeRoots returns the roots of the maximal perfect subtrees
// that make up the accumulator, largest first — exactly one per set bit
// of NumLeaves(). This is the representation NewInMemoryAccumulator
// consumes.
func (a *Accumulator) FrozenSubtreeRoots() []types.Hash {
	return append([]types.Hash(nil), a.frozen...)
}

// RootHash folds every peak down to a single root, bagging them
// right-to-left (smallest peak first) the way a Merkle mountain range
// does, so the root is a deterministic function of numLeaves and the leaf
// content alone.
func (a *Accumulator) RootHash() types.Hash {
	roots := a.frozen
	if len(roots) == 0 {
		return types.HashBytes(nil)
	}
	acc := roots[len(roots)-1]
	for i := len(roots) - 2; i >= 0; i-- {
		acc = bag(roots[i], acc)
	}
	return acc
}

// Append adds leafHashes (in order) and returns the resulting
// accumulator; the receiver is left unchanged. Each leaf starts as its
// own size-1 peak and carries into larger peaks exactly the way binary
// addition carries a bit, so the final peak sizes always match the set
// bits of the new leaf count regardless of how the leaves were batched
// across Append calls (P1).
func (a *Accumulator) Append(leafHashes []types.Hash) *Accumulator {
	if len(leafHashes) == 0 {
		return a
	}
	next := &Accumulator{
		numLeaves: a.numLeaves,
		frozen:    append([]types.Hash(nil), a.frozen...),
	}
	for _, h := range leafHashes {
		next.carryIn(h)
	}
	return next
}

// carryIn adds a single leaf as a new size-1 peak and then merges it with
// existing peaks for as long as the low-order bits of numLeaves (before
// this leaf) are set — the classic Merkle-mountain-range carry: appending
// leaf number n triggers exactly popcount(trailing ones of n) merges,
// each combining the two smallest remaining equal-size peaks into one
// twice their size.
func (a *Accumulator) carryIn(h types.Hash) {
	merges := bits.TrailingZeros64(^a.numLeaves)
	if merges > len(a.frozen) {
		// Only reachable when the accumulator was seeded via
		// NewInMemoryAccumulator with a frozen list that does not actually
		// match numLeaves's bit pattern (e.g. a chunk proof carrying a
		// forged or truncated LeftSiblings). Clamping keeps the result
		// merely wrong rather than panicking, so callers like C8's fork
		// detection still get a RootHash to compare against instead of a
		// crash.
		merges = len(a.frozen)
	}
	cur := h
	for i := 0; i < merges; i++ {
		last := len(a.frozen) - 1
		cur = bag(a.frozen[last], cur)
		a.frozen = a.frozen[:last]
	}
	a.frozen = append(a.frozen, cur)
	a.numLeaves++
}

// bag combines a left and right subtree root into their parent root,
// using xsleonard/go-merkle over the two-hash leaf pair so every merge
// goes through the same Merkle construction the rest of the package uses.
func bag(left, right types.Hash) types.Hash {
	tree := merkle.NewTree()
	if err := tree.Generate([][]byte{append([]byte(nil), left[:]...), append([]byte(nil), right[:]...)}, sha256.New()); err != nil {
		panic(err) // two non-empty leaves can never fail to generate
	}
	var root types.Hash
	copy(root[:], tree.Root().Hash)
	return root
}

// EventAccumulator builds a one-shot accumulator over a single
// transaction's event hashes, used by C5 to derive each txn's event_root.
func EventAccumulator(events []types.ContractEvent) types.Hash {
	if len(events) == 0 {
		return types.HashBytes(nil)
	}
	hashes := make([]types.Hash, len(events))
	for i, e := range events {
		hashes[i] = hashEvent(e)
	}
	return NewEmpty().Append(hashes).RootHash()
}

func hashEvent(e types.ContractEvent) types.Hash {
	buf := make([]byte, 0, len(e.Key)+8+len(e.Data)+len(e.TypeTag))
	buf = append(buf, e.Key[:]...)
	var seq [8]byte
	for i := 0; i < 8; i++ {
		seq[i] = byte(e.Sequence >> (8 * (7 - i)))
	}
	buf = append(buf, seq[:]...)
	buf = append(buf, e.TypeTag...)
	buf = append(buf, e.Data...)
	return types.HashBytes(buf)
}
