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

// Package execerr collects the executor's error taxonomy (spec §7) as
// sentinel errors, shared across components so callers can classify a
// failure with errors.Is regardless of which layer raised it.
package execerr

import "errors"

var (
	// ErrDbNotBootstrapped is fatal at node startup: the store has no
	// committed genesis to build a SpeculationCache from.
	ErrDbNotBootstrapped = errors.New("executor: db not bootstrapped")
	// ErrBlockNotFound is raised by the speculation cache when a lookup
	// misses.
	ErrBlockNotFound = errors.New("executor: block not found")
	// ErrFork is raised by the chunk executor when the reconstructed
	// pre-chunk accumulator root disagrees with the locally persisted
	// root (I8).
	ErrFork = errors.New("executor: fork detected")
	// ErrVmDiscardDuringSync is raised when a transaction chunk being
	// replayed contains a Discard status: peers have already committed
	// these transactions, so a local discard means local disagreement.
	ErrVmDiscardDuringSync = errors.New("executor: vm discarded transaction during sync")
	// ErrInfoMismatch is raised when a locally recomputed TransactionInfo
	// disagrees with the one carried by a chunk's proof.
	ErrInfoMismatch = errors.New("executor: transaction info mismatch")
	// ErrPivotInvalid is raised when a block's new pivot decision fails
	// validate_proposal_pivot_decision, or when a block carries staking
	// events without ever selecting a pivot (I4, I6).
	ErrPivotInvalid = errors.New("executor: invalid pivot decision")
	// ErrStakingEventMismatch is raised in non-catch-up mode when the
	// packed register/update_voting_power events disagree with the PoW
	// bridge's staking event window (I5).
	ErrStakingEventMismatch = errors.New("executor: staking event mismatch")
	// ErrMultiplePivots is raised when a block carries more than one
	// pivot_select event (I3).
	ErrMultiplePivots = errors.New("executor: multiple pivot decisions in one block")
	// ErrVersionStaleOrOverflow is raised by the facade or replayer when a
	// version computation would be stale or overflow.
	ErrVersionStaleOrOverflow = errors.New("executor: version stale or overflow")
	// ErrStorageFailure wraps a failure returned by the store contract;
	// callers must Reset() before retrying.
	ErrStorageFailure = errors.New("executor: storage failure")
	// ErrInjectedFailure is raised by a named test hook (spec §9).
	ErrInjectedFailure = errors.New("executor: injected failure")
)
