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

// Package speculation implements C6, the speculation cache: a rooted
// fork-tree of executed-but-not-yet-committed blocks, plus the committed
// and synced ExecutedTrees frontiers.
package speculation

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
)

// treesCacheSize bounds the fronting LRU of ExecutedTrees snapshots for
// blocks deep in the fork tree that are unlikely to be queried again
// before commit or prune (SPEC_FULL.md §2 domain-stack wiring).
const treesCacheSize = 256

// Cache is the arena-backed speculative fork tree. It is mutated only by
// its owner (the facade); no internal locking is required for
// correctness under the single-owner scheduling model (spec §5), but a
// mutex still guards it so the LRU's own bookkeeping stays consistent
// under concurrent reads from CommittedTrees()/SyncedTrees() callers.
type Cache struct {
	mu sync.Mutex

	nodes map[types.Hash]*node

	committedID    types.Hash
	committedTrees *trees.ExecutedTrees
	syncedTrees    *trees.ExecutedTrees

	treesCache *lru.Cache[types.Hash, *trees.ExecutedTrees]
}

// NewWithStartup builds a cache whose committed (and initially synced)
// root is committedID/committedTrees, as returned by the store's
// get_startup_info (spec §6).
func NewWithStartup(committedID types.Hash, committedTrees *trees.ExecutedTrees) *Cache {
	treesCache, err := lru.New[types.Hash, *trees.ExecutedTrees](treesCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size, which treesCacheSize never is
	}
	c := &Cache{
		nodes:          make(map[types.Hash]*node),
		committedID:    committedID,
		committedTrees: committedTrees,
		syncedTrees:    committedTrees,
		treesCache:     treesCache,
	}
	c.nodes[committedID] = &node{id: committedID}
	return c
}

// CommittedBlockID returns the id of the most recently committed block.
func (c *Cache) CommittedBlockID() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committedID
}

// CommittedTrees returns the ExecutedTrees at the committed frontier.
func (c *Cache) CommittedTrees() *trees.ExecutedTrees {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committedTrees
}

// SyncedTrees returns the ExecutedTrees at the chunk-sync frontier, which
// may advance independently of the committed frontier (spec §4.6).
func (c *Cache) SyncedTrees() *trees.ExecutedTrees {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncedTrees
}

// AddBlockSlot inserts id as a child of parentID with the given slot.
// Fails if the parent is absent or id is already present.
func (c *Cache) AddBlockSlot(parentID, id types.Hash, slot *BlockSlot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", execerr.ErrBlockNotFound, parentID)
	}
	if _, exists := c.nodes[id]; exists {
		return fmt.Errorf("speculation: block %s already present", id)
	}
	n := &node{id: id, parent: parentID, slot: slot}
	c.nodes[id] = n
	parent.children = append(parent.children, id)
	c.treesCache.Add(id, slot.Output.ExecutedTrees)
	return nil
}

// GetBlock returns the slot for id, or ErrBlockNotFound.
func (c *Cache) GetBlock(id types.Hash) (*BlockSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	if !ok || n.slot == nil {
		return nil, fmt.Errorf("%w: %s", execerr.ErrBlockNotFound, id)
	}
	return n.slot, nil
}

// GetExecutedTrees resolves id's ExecutedTrees, preferring the committed
// frontier and the fronting LRU before falling back to the arena.
func (c *Cache) GetExecutedTrees(id types.Hash) (*trees.ExecutedTrees, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.committedID {
		return c.committedTrees, nil
	}
	if t, ok := c.treesCache.Get(id); ok {
		return t, nil
	}
	n, ok := c.nodes[id]
	if !ok || n.slot == nil {
		return nil, fmt.Errorf("%w: %s", execerr.ErrBlockNotFound, id)
	}
	t := n.slot.Output.ExecutedTrees
	c.treesCache.Add(id, t)
	return t, nil
}

// AncestorBlobs walks from id back up to the committed root, merging every
// speculative ancestor's (and id's own, if id already has a slot) touched
// account blobs with nearer blocks overriding farther ones. The facade uses
// this to seed a VerifiedStateView's overlay before falling back to the
// store for accounts no speculative ancestor has touched yet — blobs for
// not-yet-committed blocks live only in C6's arena (trees.ExecutedTrees
// retains leaf hashes, not blobs).
func (c *Cache) AncestorBlobs(id types.Hash) (map[types.AccountAddress]types.AccountStateBlob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", execerr.ErrBlockNotFound, id)
	}

	var chain []*node // chain[0] is id (nearest), last entry is nearest-to-committed
	for n.id != c.committedID {
		chain = append(chain, n)
		p, ok := c.nodes[n.parent]
		if !ok {
			break
		}
		n = p
	}

	merged := make(map[types.AccountAddress]types.AccountStateBlob)
	for i := len(chain) - 1; i >= 0; i-- {
		slot := chain[i].slot
		if slot == nil || slot.Output == nil {
			continue
		}
		for _, td := range slot.Output.PerTxnData {
			for addr, blob := range td.Blobs {
				merged[addr] = blob
			}
		}
	}
	return merged, nil
}

// UpdateBlockTreeRoot sets the new committed root after a successful
// commit_blocks call.
func (c *Cache) UpdateBlockTreeRoot(newCommittedID types.Hash, newTrees *trees.ExecutedTrees) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committedID = newCommittedID
	c.committedTrees = newTrees
	if newTrees.Version() >= c.syncedTrees.Version() {
		c.syncedTrees = newTrees
	}
}

// UpdateSyncedTrees advances the chunk-sync frontier independently of the
// committed frontier (C8 does not touch the fork tree).
func (c *Cache) UpdateSyncedTrees(t *trees.ExecutedTrees) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncedTrees = t
}

// Prune keeps the path from the old committed root to newCommittedID plus
// every descendant of newCommittedID, discards every other block
// (releasing memory for abandoned forks), and advances the committed root.
func (c *Cache) Prune(newCommittedID types.Hash, newTrees *trees.ExecutedTrees) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newRoot, ok := c.nodes[newCommittedID]
	if !ok {
		return fmt.Errorf("%w: %s", execerr.ErrBlockNotFound, newCommittedID)
	}

	keep := make(map[types.Hash]bool)
	for n := newRoot; ; {
		keep[n.id] = true
		if n.id == c.committedID {
			break
		}
		p, ok := c.nodes[n.parent]
		if !ok {
			break
		}
		n = p
	}

	var collectDescendants func(id types.Hash)
	collectDescendants = func(id types.Hash) {
		n, ok := c.nodes[id]
		if !ok {
			return
		}
		for _, child := range n.children {
			keep[child] = true
			collectDescendants(child)
		}
	}
	collectDescendants(newCommittedID)

	for id := range c.nodes {
		if !keep[id] {
			delete(c.nodes, id)
			c.treesCache.Remove(id)
		}
	}

	if root, ok := c.nodes[newCommittedID]; ok {
		root.parent = types.Hash{}
	}

	c.committedID = newCommittedID
	c.committedTrees = newTrees
	if newTrees.Version() >= c.syncedTrees.Version() {
		c.syncedTrees = newTrees
	}
	return nil
}

// Reset drops every speculative branch, keeping only the committed root —
// used after an error, or to reload from storage (spec §7).
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = map[types.Hash]*node{c.committedID: {id: c.committedID}}
	c.treesCache.Purge()
	c.syncedTrees = c.committedTrees
}

// ReplaceCommitted reloads the cache wholesale from a freshly read
// startup state (used by the facade's reset(), which reloads
// SpeculationCache from get_startup_info per spec §4.7).
func (c *Cache) ReplaceCommitted(committedID types.Hash, committedTrees *trees.ExecutedTrees) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = map[types.Hash]*node{committedID: {id: committedID}}
	c.committedID = committedID
	c.committedTrees = committedTrees
	c.syncedTrees = committedTrees
	c.treesCache.Purge()
}
