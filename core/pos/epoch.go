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

// ValidatorVerifier snapshots the active validator set and voting powers
// at an epoch boundary — the verifier consensus uses to check quorum
// certificates for the new epoch. BLS aggregate-signature verification
// itself is out of scope (spec §1); this type only carries the roster.
type ValidatorVerifier struct {
	Power map[NodeID]uint64
}

// TotalVotingPower sums the voting power of every validator in the set.
func (v *ValidatorVerifier) TotalVotingPower() uint64 {
	var total uint64
	for _, p := range v.Power {
		total += p
	}
	return total
}

// EpochState is `{epoch_number, validator_verifier, vrf_seed}` (spec §3).
// vrf_seed is the bytes of the closing pivot block's hash.
type EpochState struct {
	EpochNumber uint64
	Verifier    *ValidatorVerifier
	VRFSeed     []byte
}
