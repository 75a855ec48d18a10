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

// Package vmoutput implements C5, the VM output processor: it orchestrates
// C1 (write-set application), C2 (state tree update), C3 (accumulators)
// and C4 (the PoS state machine) over one block's VM outputs, producing a
// ProcessedVMOutput.
package vmoutput

import (
	"encoding/binary"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/chainbft/blockexec/core/accumulator"
	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/state"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
)

// PowBridge is the PoW bridge contract this processor consumes (spec §6).
type PowBridge interface {
	ValidateProposalPivotDecision(parentHash, newHash types.Hash) bool
	GetStakingEvents(parentHash, newHash types.Hash) ([]pos.StakingEvent, error)
}

// Metrics is the narrow collaborator C5 reports discard anomalies to;
// logging/metrics are external collaborators per spec §1.
type Metrics interface {
	IncDiscardWithEffects()
}

type noopMetrics struct{}

func (noopMetrics) IncDiscardWithEffects() {}

// TransactionData is one transaction's contribution to a
// ProcessedVMOutput: its touched blobs, events, status, derived roots,
// and (for Keep) the TransactionInfo hash that became an accumulator
// leaf.
type TransactionData struct {
	Blobs        map[types.AccountAddress]types.AccountStateBlob
	Events       []types.ContractEvent
	Status       types.Status
	StateRoot    types.Hash
	EventRoot    types.Hash
	GasUsed      uint64
	TxnInfoHash  *types.Hash
}

// ProcessedVMOutput is C5's product (spec §3): per-transaction data, the
// new ExecutedTrees, and the block's epoch/pivot outcome, if any.
type ProcessedVMOutput struct {
	PerTxnData     []TransactionData
	ExecutedTrees  *trees.ExecutedTrees
	NextEpochState *pos.EpochState
	PivotDecision  *types.PivotBlockDecision
}

// HasReconfiguration reports whether this block produced a new epoch
// state, which per I7 forces its direct child to be empty.
func (o *ProcessedVMOutput) HasReconfiguration() bool { return o.NextEpochState != nil }

// Options tunes processor behavior for the documented open questions
// (spec §9, SPEC_FULL.md §3).
type Options struct {
	// GenesisZeroRootCompat preserves the original's historical behavior
	// of storing a zero per-txn state root when the parent accumulator
	// has zero leaves (spec §4.5 edge-case policy; open question a).
	GenesisZeroRootCompat bool
}

// DefaultOptions is the historically compatible default.
func DefaultOptions() Options { return Options{GenesisZeroRootCompat: true} }

// touchApplier is implemented by state views that need each transaction's
// writes folded back in before the next transaction reads the account.
type touchApplier interface {
	ApplyTouched(map[types.AccountAddress]types.AccountStateBlob) error
}

type flatEvent struct {
	pos  int
	key  types.Hash
	data []byte
}

// Process runs C5 over one block. parentBlockID is compared against
// types.PreGenesisBlockID to detect the synthetic root parent, which
// skips pivot/staking validation and the no-pivot rejection rule
// entirely (mirrors the original's genesis special-casing).
func Process(
	parentTrees *trees.ExecutedTrees,
	parentBlockID types.Hash,
	txns []types.Transaction,
	vmOutputs []types.TransactionOutput,
	accountToState state.AccountStore,
	proofReader smt.ProofAttester,
	catchUpMode bool,
	pow PowBridge,
	metrics Metrics,
	opts Options,
) (*ProcessedVMOutput, error) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if len(txns) != len(vmOutputs) {
		return nil, fmt.Errorf("vmoutput: %d transactions but %d vm outputs", len(txns), len(vmOutputs))
	}

	newPos := parentTrees.PosState.Clone()
	newPos.SetCatchUpMode(catchUpMode)
	parentPivot := newPos.PivotDecision()

	flat := flatten(vmOutputs)

	// Step 1: collect at most one pivot decision; apply election/retire.
	var pivotDecision *pos.PivotSelectPayload
	pivotIdx := -1
	for _, fe := range flat {
		switch fe.key {
		case types.EventKeyPivotSelect:
			if pivotDecision != nil {
				return nil, execerr.ErrMultiplePivots
			}
			p, err := decodePivotSelectEvent(fe.data)
			if err != nil {
				return nil, fmt.Errorf("vmoutput: decoding pivot_select: %w", err)
			}
			pivotDecision = &p
			pivotIdx = fe.pos
		case types.EventKeyElection:
			node, err := decodeNodeEvent(fe.data)
			if err != nil {
				return nil, fmt.Errorf("vmoutput: decoding election: %w", err)
			}
			if err := newPos.NewNodeElected(node); err != nil {
				return nil, fmt.Errorf("vmoutput: %w", err)
			}
		case types.EventKeyRetire:
			node, err := decodeNodeEvent(fe.data)
			if err != nil {
				return nil, fmt.Errorf("vmoutput: decoding retire: %w", err)
			}
			if err := newPos.RetireNode(node); err != nil {
				return nil, fmt.Errorf("vmoutput: %w", err)
			}
		}
	}

	isGenesis := parentBlockID == types.PreGenesisBlockID
	var effectivePivot types.PivotBlockDecision

	if !isGenesis {
		if pivotDecision != nil {
			newPivot := types.PivotBlockDecision{BlockHash: pivotDecision.BlockHash, Height: pivotDecision.Height}
			if !pow.ValidateProposalPivotDecision(parentPivot.BlockHash, newPivot.BlockHash) {
				return nil, fmt.Errorf("%w: validate_proposal_pivot_decision rejected block", execerr.ErrPivotInvalid)
			}
			if err := applyStakingEvents(newPos, flat, pivotIdx, parentPivot, newPivot, catchUpMode, pow); err != nil {
				return nil, err
			}
			effectivePivot = newPivot
		} else {
			for _, fe := range flat {
				if fe.key == types.EventKeyRetire || fe.key == types.EventKeyUpdateVotingPower {
					return nil, fmt.Errorf("%w: block has no new pivot decision but packs staking-related events", execerr.ErrPivotInvalid)
				}
			}
			effectivePivot = parentPivot
			pd := pos.PivotSelectPayload{BlockHash: effectivePivot.BlockHash, Height: effectivePivot.Height}
			pivotDecision = &pd
		}
		newPos.SetPivotDecision(effectivePivot)
	} else if pivotDecision != nil {
		effectivePivot = types.PivotBlockDecision{BlockHash: pivotDecision.BlockHash, Height: pivotDecision.Height}
		newPos.SetPivotDecision(effectivePivot)
	}

	nextEpochState, _, hasNext := newPos.NextView()

	// Step 3: C1 over every transaction, folding writes back into the view
	// so later transactions observe earlier ones' writes.
	txnBlobs := make([]map[types.AccountAddress]types.AccountStateBlob, len(txns))
	for i, txn := range txns {
		blobs, err := state.Apply(txn, accountToState, vmOutputs[i].WriteSet)
		if err != nil {
			return nil, err
		}
		txnBlobs[i] = blobs
		if applier, ok := accountToState.(touchApplier); ok {
			if err := applier.ApplyTouched(blobs); err != nil {
				return nil, fmt.Errorf("vmoutput: %w", err)
			}
		}
	}

	// Step 4: C2 over all per-txn blob batches.
	perTxnUpdates := make([]smt.PerTxnUpdate, len(txnBlobs))
	for i, blobs := range txnBlobs {
		upd := smt.PerTxnUpdate{Keys: make([]types.Hash, 0, len(blobs)), Hashes: make([]types.Hash, 0, len(blobs))}
		for addr, blob := range blobs {
			upd.Keys = append(upd.Keys, types.HashAddress(addr))
			upd.Hashes = append(upd.Hashes, types.HashBlob(blob))
		}
		perTxnUpdates[i] = upd
	}
	txnStateRoots, newTree, err := smt.BatchUpdate(parentTrees.StateTree, perTxnUpdates, proofReader)
	if err != nil {
		return nil, err
	}

	// Step 5: per-transaction TransactionInfo / accumulator leaves.
	perTxnData := make([]TransactionData, len(txns))
	txnInfoHashes := make([]types.Hash, 0, len(txns))
	genesisZeroRoot := opts.GenesisZeroRootCompat && parentTrees.Accu.NumLeaves() == 0
	for i := range txns {
		stateRoot := txnStateRoots[i]
		if genesisZeroRoot {
			stateRoot = types.Hash{}
		}
		eventRoot := accumulator.EventAccumulator(vmOutputs[i].Events)

		td := TransactionData{
			Blobs:     txnBlobs[i],
			Events:    vmOutputs[i].Events,
			Status:    vmOutputs[i].Status,
			StateRoot: stateRoot,
			EventRoot: eventRoot,
			GasUsed:   vmOutputs[i].GasUsed,
		}

		switch vmOutputs[i].Status.Kind {
		case types.StatusKeep:
			info := types.TransactionInfo{
				TxnHash:    txns[i].Hash,
				StateRoot:  stateRoot,
				EventRoot:  eventRoot,
				GasUsed:    vmOutputs[i].GasUsed,
				StatusCode: vmOutputs[i].Status.Code,
			}
			h := info.Hash()
			td.TxnInfoHash = &h
			txnInfoHashes = append(txnInfoHashes, h)
		case types.StatusDiscard:
			if len(vmOutputs[i].WriteSet) != 0 || len(vmOutputs[i].Events) != 0 {
				metrics.IncDiscardWithEffects()
			}
		case types.StatusRetry:
			// contributes no hash and no further data.
		}
		perTxnData[i] = td
	}

	// Step 7: genesis epoch synthesis, before accumulator append so it
	// never disturbs txnInfoHashes.
	if isGenesis {
		if verifier, gerr := decodeGenesisValidatorSet(accountToState); gerr == nil {
			seed := append([]byte(nil), effectivePivot.BlockHash.Bytes()...)
			// epoch 1 is wired in at genesis; FIXME if multi-genesis chains show up
			es := pos.EpochState{EpochNumber: 1, Verifier: verifier, VRFSeed: seed}
			nextEpochState = es
			hasNext = true
		}
	}

	newAccu := parentTrees.Accu.Append(txnInfoHashes)

	output := &ProcessedVMOutput{
		PerTxnData: perTxnData,
		ExecutedTrees: &trees.ExecutedTrees{
			StateTree: newTree,
			Accu:      newAccu,
			PosState:  newPos,
		},
	}
	if hasNext {
		es := nextEpochState
		output.NextEpochState = &es
	}
	if pivotDecision != nil {
		pd := types.PivotBlockDecision{BlockHash: pivotDecision.BlockHash, Height: pivotDecision.Height}
		output.PivotDecision = &pd
	}
	return output, nil
}

// applyStakingEvents walks the flattened event list in order, cross-
// validating register/update_voting_power events against the PoW
// bridge's staking event window unless catchUpMode relaxes the check
// (spec §4.4, §4.5 step 2, I5).
func applyStakingEvents(newPos *pos.PosState, flat []flatEvent, pivotIdx int, parentPivot types.PivotBlockDecision, newPivot types.PivotBlockDecision, catchUpMode bool, pow PowBridge) error {
	var stakingEvents []pos.StakingEvent
	var nextStaking int
	pending := mapset.NewThreadUnsafeSet[int]()
	if !catchUpMode {
		var err error
		stakingEvents, err = pow.GetStakingEvents(parentPivot.BlockHash, newPivot.BlockHash)
		if err != nil {
			return fmt.Errorf("vmoutput: get_staking_events: %w", err)
		}
		for i := range stakingEvents {
			pending.Add(i)
		}
	}

	for _, fe := range flat {
		switch fe.key {
		case types.EventKeyRegister:
			if pivotIdx < 0 || fe.pos < pivotIdx {
				return fmt.Errorf("%w: register event before any pivot_select in block", execerr.ErrPivotInvalid)
			}
			node, err := decodeNodeEvent(fe.data)
			if err != nil {
				return fmt.Errorf("vmoutput: decoding register: %w", err)
			}
			if !catchUpMode {
				if nextStaking >= len(stakingEvents) {
					return fmt.Errorf("%w: more staking transactions packed than actual pow events", execerr.ErrStakingEventMismatch)
				}
				se := stakingEvents[nextStaking]
				pending.Remove(nextStaking)
				nextStaking++
				if !se.MatchesRegister(pos.RegisterPayload{Node: node}) {
					return fmt.Errorf("%w: packed register does not match pow event", execerr.ErrStakingEventMismatch)
				}
			}
			if err := newPos.RegisterNode(node); err != nil {
				return fmt.Errorf("vmoutput: %w", err)
			}
		case types.EventKeyUpdateVotingPower:
			if pivotIdx < 0 || fe.pos < pivotIdx {
				return fmt.Errorf("%w: update_voting_power event before any pivot_select in block", execerr.ErrPivotInvalid)
			}
			payload, err := decodeUpdateVotingPowerEvent(fe.data)
			if err != nil {
				return fmt.Errorf("vmoutput: decoding update_voting_power: %w", err)
			}
			if !catchUpMode {
				if nextStaking >= len(stakingEvents) {
					return fmt.Errorf("%w: more staking transactions packed than actual pow events", execerr.ErrStakingEventMismatch)
				}
				se := stakingEvents[nextStaking]
				pending.Remove(nextStaking)
				nextStaking++
				if !se.MatchesUpdateVotingPower(payload) {
					return fmt.Errorf("%w: packed update_voting_power does not match pow event", execerr.ErrStakingEventMismatch)
				}
			}
			if err := newPos.UpdateVotingPower(payload.Node, payload.VotingPower); err != nil {
				return fmt.Errorf("vmoutput: %w", err)
			}
		}
	}
	if !catchUpMode && !pending.IsEmpty() {
		return fmt.Errorf("%w: not all PoW staking events are packed (%d unconsumed)", execerr.ErrStakingEventMismatch, pending.Cardinality())
	}
	return nil
}

func flatten(vmOutputs []types.TransactionOutput) []flatEvent {
	var out []flatEvent
	n := 0
	for _, o := range vmOutputs {
		for _, e := range o.Events {
			out = append(out, flatEvent{pos: n, key: e.Key, data: e.Data})
			n++
		}
	}
	return out
}

func decodePivotSelectEvent(data []byte) (pos.PivotSelectPayload, error) {
	if len(data) != types.HashLength+8 {
		return pos.PivotSelectPayload{}, errors.New("vmoutput: malformed pivot_select payload")
	}
	var p pos.PivotSelectPayload
	copy(p.BlockHash[:], data[:types.HashLength])
	p.Height = binary.BigEndian.Uint64(data[types.HashLength:])
	return p, nil
}

func decodeNodeEvent(data []byte) (pos.NodeID, error) {
	var n pos.NodeID
	if len(data) != types.HashLength {
		return n, errors.New("vmoutput: malformed node event payload")
	}
	copy(n[:], data)
	return n, nil
}

func decodeUpdateVotingPowerEvent(data []byte) (pos.UpdateVotingPowerPayload, error) {
	if len(data) != types.HashLength+8 {
		return pos.UpdateVotingPowerPayload{}, errors.New("vmoutput: malformed update_voting_power payload")
	}
	var p pos.UpdateVotingPowerPayload
	copy(p.Node[:], data[:types.HashLength])
	p.VotingPower = binary.BigEndian.Uint64(data[types.HashLength:])
	return p, nil
}

// genesisValidatorSetPath names the resource the genesis write set stores
// the initial validator roster under, read from types.ConfigAddress.
var genesisValidatorSetPath = []byte("validator_set")

// decodeGenesisValidatorSet reads the on-chain ValidatorSet resource
// written by genesis (spec §4.5 step 7). The resource is a flat run of
// (32-byte NodeID, 8-byte big-endian voting power) records.
func decodeGenesisValidatorSet(accountToState state.AccountStore) (*pos.ValidatorVerifier, error) {
	acct, ok := accountToState.AccountState(types.ConfigAddress)
	if !ok {
		return nil, errors.New("vmoutput: config account not present")
	}
	raw, ok := acct.Get(genesisValidatorSetPath)
	if !ok {
		return nil, errors.New("vmoutput: validator_set resource does not exist")
	}
	const recLen = types.HashLength + 8
	if len(raw)%recLen != 0 {
		return nil, errors.New("vmoutput: malformed validator_set resource")
	}
	v := &pos.ValidatorVerifier{Power: make(map[pos.NodeID]uint64, len(raw)/recLen)}
	for off := 0; off < len(raw); off += recLen {
		var node pos.NodeID
		copy(node[:], raw[off:off+types.HashLength])
		power := binary.BigEndian.Uint64(raw[off+types.HashLength : off+recLen])
		v.Power[node] = power
	}
	return v, nil
}
