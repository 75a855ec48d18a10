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

// Package pos implements C4, the PoS state machine: decoding the event
// vocabulary recognized from a block's ContractEvents and folding it into
// a PosState (validator registration, election, retirement, voting power,
// pivot selection, and epoch transitions).
package pos

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chainbft/blockexec/core/types"
)

// NodeID identifies a validator node; it is opaque to the executor beyond
// equality comparison, matching the "opaque tag" design recommended for
// event keys in spec §9.
type NodeID = types.Hash

// PivotSelectPayload is the decoded body of an EventKeyPivotSelect event.
type PivotSelectPayload struct {
	BlockHash types.Hash
	Height    uint64
}

// ElectionPayload is the decoded body of an EventKeyElection event.
type ElectionPayload struct {
	Node NodeID
}

// RetirePayload is the decoded body of an EventKeyRetire event.
type RetirePayload struct {
	Node NodeID
}

// RegisterPayload is the decoded body of an EventKeyRegister event.
type RegisterPayload struct {
	Node NodeID
}

// UpdateVotingPowerPayload is the decoded body of an
// EventKeyUpdateVotingPower event.
type UpdateVotingPowerPayload struct {
	Node        NodeID
	VotingPower uint64
}

var errTruncatedPayload = errors.New("pos: truncated event payload")

func encodePivotSelect(p PivotSelectPayload) []byte {
	buf := make([]byte, 0, types.HashLength+8)
	buf = append(buf, p.BlockHash[:]...)
	return binary.BigEndian.AppendUint64(buf, p.Height)
}

func decodePivotSelect(data []byte) (PivotSelectPayload, error) {
	if len(data) != types.HashLength+8 {
		return PivotSelectPayload{}, fmt.Errorf("%w: pivot_select", errTruncatedPayload)
	}
	var p PivotSelectPayload
	copy(p.BlockHash[:], data[:types.HashLength])
	p.Height = binary.BigEndian.Uint64(data[types.HashLength:])
	return p, nil
}

func encodeNodeOnly(n NodeID) []byte {
	return append([]byte(nil), n[:]...)
}

func decodeNodeOnly(data []byte) (NodeID, error) {
	var n NodeID
	if len(data) != types.HashLength {
		return n, fmt.Errorf("%w: node id", errTruncatedPayload)
	}
	copy(n[:], data)
	return n, nil
}

func encodeUpdateVotingPower(p UpdateVotingPowerPayload) []byte {
	buf := make([]byte, 0, types.HashLength+8)
	buf = append(buf, p.Node[:]...)
	return binary.BigEndian.AppendUint64(buf, p.VotingPower)
}

func decodeUpdateVotingPower(data []byte) (UpdateVotingPowerPayload, error) {
	if len(data) != types.HashLength+8 {
		return UpdateVotingPowerPayload{}, fmt.Errorf("%w: update_voting_power", errTruncatedPayload)
	}
	var p UpdateVotingPowerPayload
	copy(p.Node[:], data[:types.HashLength])
	p.VotingPower = binary.BigEndian.Uint64(data[types.HashLength:])
	return p, nil
}

// EncodePivotSelect, EncodeElection, EncodeRetire, EncodeRegister and
// EncodeUpdateVotingPower produce the canonical event payload bytes a VM
// would emit for the corresponding recognized event key (spec §6: "a
// single self-describing binary format; round-trip lossless"). Exported
// so VM adapters and tests can construct fixture events without reaching
// into package internals.
func EncodePivotSelect(p PivotSelectPayload) []byte            { return encodePivotSelect(p) }
func EncodeElection(p ElectionPayload) []byte                  { return encodeNodeOnly(p.Node) }
func EncodeRetire(p RetirePayload) []byte                      { return encodeNodeOnly(p.Node) }
func EncodeRegister(p RegisterPayload) []byte                  { return encodeNodeOnly(p.Node) }
func EncodeUpdateVotingPower(p UpdateVotingPowerPayload) []byte { return encodeUpdateVotingPower(p) }

// StakingEvent is one PoW staking event as returned by the PoW bridge's
// get_staking_events call (spec §6). Register events carry no voting
// power delta; UpdateVotingPower events do.
type StakingEvent struct {
	Node        NodeID
	IsRegister  bool // false means UpdateVotingPower
	VotingPower uint64
}

// MatchesRegister reports whether a decoded RegisterPayload corresponds to
// this staking event (spec §4.4 I5 cross-check).
func (s StakingEvent) MatchesRegister(p RegisterPayload) bool {
	return s.IsRegister && s.Node == p.Node
}

// MatchesUpdateVotingPower reports whether a decoded
// UpdateVotingPowerPayload corresponds to this staking event.
func (s StakingEvent) MatchesUpdateVotingPower(p UpdateVotingPowerPayload) bool {
	return !s.IsRegister && s.Node == p.Node && s.VotingPower == p.VotingPower
}
