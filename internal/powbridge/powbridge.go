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

// Package powbridge provides the PoW bridge client consumed by C5 (spec
// §6): validate_proposal_pivot_decision and get_staking_events. The real
// bridge talks to the PoW chain's RPC; StubClient is a deterministic,
// catch-up-mode-friendly stand-in used by tests and by nodes that have
// not yet connected the bridge.
package powbridge

import (
	"sync"

	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/types"
)

// Client is the PoW bridge contract (spec §6).
type Client interface {
	ValidateProposalPivotDecision(parentHash, newHash types.Hash) bool
	GetStakingEvents(parentHash, newHash types.Hash) ([]pos.StakingEvent, error)
}

// StubClient is a PoW bridge that always validates pivot transitions and
// returns events from a pre-seeded, range-keyed table. It stands in for
// the real client "may stub it" case catch-up mode allows (spec §4.4),
// and is also the natural fixture for unit tests driving C5 directly.
type StubClient struct {
	mu     sync.Mutex
	events map[rangeKey][]pos.StakingEvent
	reject map[rangeKey]bool
}

type rangeKey struct {
	parent types.Hash
	new    types.Hash
}

// NewStub returns an empty stub: every pivot transition validates, and
// every staking-event window is empty unless seeded with SetStakingEvents.
func NewStub() *StubClient {
	return &StubClient{
		events: make(map[rangeKey][]pos.StakingEvent),
		reject: make(map[rangeKey]bool),
	}
}

// SetStakingEvents seeds the ordered staking events for the (parent, new]
// pivot range.
func (s *StubClient) SetStakingEvents(parentHash, newHash types.Hash, events []pos.StakingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[rangeKey{parentHash, newHash}] = events
}

// RejectPivot marks a (parent, new) transition as invalid, so
// ValidateProposalPivotDecision returns false for it.
func (s *StubClient) RejectPivot(parentHash, newHash types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[rangeKey{parentHash, newHash}] = true
}

func (s *StubClient) ValidateProposalPivotDecision(parentHash, newHash types.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.reject[rangeKey{parentHash, newHash}]
}

func (s *StubClient) GetStakingEvents(parentHash, newHash types.Hash) ([]pos.StakingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.events[rangeKey{parentHash, newHash}]
	if !ok {
		return nil, nil
	}
	return append([]pos.StakingEvent(nil), events...), nil
}
