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

// Package testhook implements the named failure-injection points from
// spec §9: executor::vm_execute_chunk, executor::commit_chunk,
// executor::vm_execute_block, executor::commit_blocks. Production builds
// run with an empty Registry, so Trigger is always a no-op; tests install
// one hook at a time to force a named code path to fail.
package testhook

import (
	"fmt"
	"sync"

	"github.com/go-stack/stack"

	"github.com/chainbft/blockexec/core/execerr"
)

// Name identifies one failure-injection point.
type Name string

const (
	VMExecuteChunk Name = "executor::vm_execute_chunk"
	CommitChunk    Name = "executor::commit_chunk"
	VMExecuteBlock Name = "executor::vm_execute_block"
	CommitBlocks   Name = "executor::commit_blocks"
)

// Registry holds the currently armed hooks. The zero value is a usable,
// empty registry.
type Registry struct {
	mu    sync.Mutex
	armed map[Name]bool
	sites map[Name]stack.Call
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{armed: make(map[Name]bool), sites: make(map[Name]stack.Call)}
}

// Arm marks name to fail on its next Trigger call.
func (r *Registry) Arm(name Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armed == nil {
		r.armed = make(map[Name]bool)
	}
	if r.sites == nil {
		r.sites = make(map[Name]stack.Call)
	}
	r.armed[name] = true
}

// Disarm clears a previously armed hook without triggering it.
func (r *Registry) Disarm(name Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.armed, name)
}

// Trigger returns execerr.ErrInjectedFailure if name is armed, recording
// the caller's call site for diagnostics, and disarms it (one-shot).
// Call with a nil receiver to make production code unconditionally safe:
// Trigger on a nil *Registry always returns nil.
func (r *Registry) Trigger(name Name) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed[name] {
		return nil
	}
	delete(r.armed, name)
	call := stack.Caller(1)
	r.sites[name] = call
	return fmt.Errorf("%w: %s (triggered at %+v)", execerr.ErrInjectedFailure, name, call)
}

// LastSite returns the call site of the most recent trigger of name, for
// test diagnostics.
func (r *Registry) LastSite(name Name) (stack.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sites[name]
	return c, ok
}
