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

package pos

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/holiman/uint256"

	"github.com/chainbft/blockexec/core/types"
)

var (
	// ErrNotRegistered is raised when an election, retirement, or voting
	// power update references a node that was never registered.
	ErrNotRegistered = errors.New("pos: node not registered")
	// ErrAlreadyRetired is raised when retire_node or new_node_elected
	// references a node already in the retirement set.
	ErrAlreadyRetired = errors.New("pos: node already retired")
	// ErrAlreadyRegistered is raised by register_node for a node already
	// holding a validator index.
	ErrAlreadyRegistered = errors.New("pos: node already registered")
)

// PosState is the authoritative PoS ledger (spec §3): current validator
// registrations, the voting-power map, the elected roster, the retirement
// set, the last pivot decision, the catch-up flag, and the epoch counter
// that NextView advances. It is cloned on write: each speculative block
// owns its own PosState, built by cloning its parent's (spec §4.4, §9).
type PosState struct {
	nextIndex   uint32
	indexOf     map[NodeID]uint32
	nodeOf      map[uint32]NodeID
	votingPower map[uint32]*uint256.Int
	elected     *roaring.Bitmap
	retired     *roaring.Bitmap

	pivot      types.PivotBlockDecision
	catchUp    bool
	epoch      uint64
	termVotes  uint64 // accumulated elections since the last epoch boundary
	termLength uint64 // elections required to close an epoch
	vrfSeed    []byte
}

// NewGenesis returns the PosState for the synthetic pre-genesis parent:
// no validators, epoch 0, catch-up mode on (matching the original's
// PosState::new(..., true) used while bootstrapping an unbootstrapped DB).
func NewGenesis(termLength uint64) *PosState {
	if termLength == 0 {
		termLength = 1
	}
	return &PosState{
		indexOf:     make(map[NodeID]uint32),
		nodeOf:      make(map[uint32]NodeID),
		votingPower: make(map[uint32]*uint256.Int),
		elected:     roaring.New(),
		retired:     roaring.New(),
		catchUp:     true,
		termLength:  termLength,
	}
}

// Clone returns a deep, independent copy: mutating the clone never
// affects the receiver, which is what lets every speculative descendant
// hold its own post-state while sharing nothing but immutable backbone
// data (spec §5, §9).
func (s *PosState) Clone() *PosState {
	out := &PosState{
		nextIndex:  s.nextIndex,
		indexOf:    make(map[NodeID]uint32, len(s.indexOf)),
		nodeOf:     make(map[uint32]NodeID, len(s.nodeOf)),
		votingPower: make(map[uint32]*uint256.Int, len(s.votingPower)),
		elected:    s.elected.Clone(),
		retired:    s.retired.Clone(),
		pivot:      s.pivot,
		catchUp:    s.catchUp,
		epoch:      s.epoch,
		termVotes:  s.termVotes,
		termLength: s.termLength,
		vrfSeed:    append([]byte(nil), s.vrfSeed...),
	}
	for k, v := range s.indexOf {
		out.indexOf[k] = v
	}
	for k, v := range s.nodeOf {
		out.nodeOf[k] = v
	}
	for k, v := range s.votingPower {
		out.votingPower[k] = new(uint256.Int).Set(v)
	}
	return out
}

// SetCatchUpMode threads the catch-up flag through to the cloned state,
// stored for downstream callers rather than carried as a global (spec §9).
func (s *PosState) SetCatchUpMode(catchUp bool) { s.catchUp = catchUp }

// CatchUpMode reports whether s was built with staking cross-validation
// relaxed.
func (s *PosState) CatchUpMode() bool { return s.catchUp }

// PivotDecision returns the last pivot block this state anchors on.
func (s *PosState) PivotDecision() types.PivotBlockDecision { return s.pivot }

// SetPivotDecision records the block's (possibly inherited) pivot.
func (s *PosState) SetPivotDecision(p types.PivotBlockDecision) { s.pivot = p }

// Epoch reports the current closed epoch number.
func (s *PosState) Epoch() uint64 { return s.epoch }

// IsRegistered reports whether node currently holds a validator index.
func (s *PosState) IsRegistered(node NodeID) bool {
	_, ok := s.indexOf[node]
	return ok
}

// IsRetired reports whether node is in the retirement set.
func (s *PosState) IsRetired(node NodeID) bool {
	idx, ok := s.indexOf[node]
	return ok && s.retired.Contains(idx)
}

// IsElected reports whether node is in the elected roster.
func (s *PosState) IsElected(node NodeID) bool {
	idx, ok := s.indexOf[node]
	return ok && s.elected.Contains(idx)
}

// VotingPower returns node's current voting power, or zero if unset.
func (s *PosState) VotingPower(node NodeID) *uint256.Int {
	idx, ok := s.indexOf[node]
	if !ok {
		return new(uint256.Int)
	}
	if vp, ok := s.votingPower[idx]; ok {
		return new(uint256.Int).Set(vp)
	}
	return new(uint256.Int)
}

// RegisterNode adds node to the validator set, assigning it a fresh
// index. Cross-validation against the expected PoW staking event and the
// "pivot_select seen earlier in this block" ordering rule are the
// caller's responsibility (spec §4.5 step 2) — this method only performs
// the unconditional registration.
func (s *PosState) RegisterNode(node NodeID) error {
	if _, ok := s.indexOf[node]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, node)
	}
	idx := s.nextIndex
	s.nextIndex++
	s.indexOf[node] = idx
	s.nodeOf[idx] = node
	s.votingPower[idx] = new(uint256.Int)
	return nil
}

// UpdateVotingPower sets node's voting power to votingPower.
func (s *PosState) UpdateVotingPower(node NodeID, votingPower uint64) error {
	idx, ok := s.indexOf[node]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, node)
	}
	s.votingPower[idx] = new(uint256.Int).SetUint64(votingPower)
	return nil
}

// NewNodeElected adds node to the elected roster (spec §4.4: "must
// reference a registered node, not retired").
func (s *PosState) NewNodeElected(node NodeID) error {
	idx, ok := s.indexOf[node]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, node)
	}
	if s.retired.Contains(idx) {
		return fmt.Errorf("%w: %s", ErrAlreadyRetired, node)
	}
	s.elected.Add(idx)
	s.termVotes++
	return nil
}

// RetireNode adds node to the retirement set (spec §4.4: "must reference
// registered, not already retired").
func (s *PosState) RetireNode(node NodeID) error {
	idx, ok := s.indexOf[node]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, node)
	}
	if s.retired.Contains(idx) {
		return fmt.Errorf("%w: %s", ErrAlreadyRetired, node)
	}
	s.retired.Add(idx)
	s.elected.Remove(idx)
	return nil
}

// NextView closes the epoch once termVotes (elections accumulated since
// the last boundary) reaches termLength, returning the EpochState for the
// new epoch and its term seed. The term seed and the EpochState's VRFSeed
// are both the closing pivot's block hash bytes (P10). Outside of an
// epoch boundary it returns ok=false and s is left untouched beyond the
// bookkeeping NewNodeElected already performed.
func (s *PosState) NextView() (epochState EpochState, termSeed []byte, ok bool) {
	if s.termVotes < s.termLength {
		return EpochState{}, nil, false
	}
	s.termVotes = 0
	s.epoch++
	seed := append([]byte(nil), s.pivot.BlockHash.Bytes()...)
	s.vrfSeed = seed

	verifier := s.buildVerifier()
	epochState = EpochState{
		EpochNumber: s.epoch,
		Verifier:    verifier,
		VRFSeed:     append([]byte(nil), seed...),
	}
	return epochState, seed, true
}

// buildVerifier snapshots the active (registered, non-retired) validator
// set and voting powers into the verifier carried by an EpochState.
func (s *PosState) buildVerifier() *ValidatorVerifier {
	v := &ValidatorVerifier{Power: make(map[NodeID]uint64, len(s.indexOf))}
	for node, idx := range s.indexOf {
		if s.retired.Contains(idx) {
			continue
		}
		v.Power[node] = s.votingPower[idx].Uint64()
	}
	return v
}
