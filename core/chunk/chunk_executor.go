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

package chunk

import (
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/chainbft/blockexec/core/accumulator"
	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/speculation"
	"github.com/chainbft/blockexec/core/state"
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/core/vmoutput"
	"github.com/chainbft/blockexec/internal/store"
	"github.com/chainbft/blockexec/internal/testhook"
	"github.com/chainbft/blockexec/internal/vm"
)

// Metrics is the narrow collaborator C8 reports retries to.
type Metrics interface {
	vmoutput.Metrics
	IncChunkReplayRetries()
}

type noopMetrics struct{}

func (noopMetrics) IncDiscardWithEffects()  {}
func (noopMetrics) IncChunkReplayRetries()  {}

// storeProofReader mirrors executor.storeProofReader (unexported, so C7
// and C8 each keep their own trivial adapter rather than sharing an
// internal type across packages).
type storeProofReader struct {
	s store.Store
}

func (r storeProofReader) Proof(key types.Hash) (types.AccountStateBlob, bool, error) {
	return r.s.GetStateWithProof(key)
}

// Executor is C8: it verifies proof-bearing transaction chunks against the
// synced frontier and replays historical chunks during bulk catch-up,
// independent of C6's fork tree (spec §4.8).
type Executor struct {
	store   store.Store
	vm      vm.Executor
	metrics Metrics
	hooks   *testhook.Registry
	opts    vmoutput.Options
	logger  log.Logger

	cache *speculation.Cache
}

// New constructs a chunk Executor sharing the facade's underlying store;
// it reloads its own view of the synced frontier from get_startup_info.
// A nil logger defaults to log.Root().
func New(s store.Store, vmExec vm.Executor, metrics Metrics, hooks *testhook.Registry, opts vmoutput.Options, logger log.Logger) (*Executor, error) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = log.Root()
	}
	startup, err := s.GetStartupInfo()
	if err != nil {
		return nil, fmt.Errorf("chunk: get_startup_info: %w", err)
	}
	if startup == nil {
		return nil, execerr.ErrDbNotBootstrapped
	}
	return &Executor{
		store:   s,
		vm:      vmExec,
		metrics: metrics,
		hooks:   hooks,
		opts:    opts,
		logger:  logger,
		cache:   speculation.NewWithStartup(startup.CommittedBlockID, startup.CommittedTrees),
	}, nil
}

// ExpectingVersion returns the next version the replayer will accept
// (spec §4.8, TransactionReplayer::expecting_version).
func (e *Executor) ExpectingVersion() uint64 {
	return e.cache.SyncedTrees().Version()
}

func (e *Executor) resetFromStorage() error {
	startup, err := e.store.GetStartupInfo()
	if err != nil {
		return fmt.Errorf("%w: %v", execerr.ErrStorageFailure, err)
	}
	if startup == nil {
		return execerr.ErrDbNotBootstrapped
	}
	e.cache.ReplaceCommitted(startup.CommittedBlockID, startup.CommittedTrees)
	return nil
}

// verifyChunk implements spec §4.8 step 2–4: skip already-persisted
// transactions, reconstruct the pre-chunk accumulator from the proof's
// left siblings plus the skipped infos, and require it matches the synced
// frontier's current root (I8, fork detection).
func (e *Executor) verifyChunk(list TransactionListWithProof) ([]types.Transaction, []types.TransactionInfo, error) {
	if len(list.Transactions) == 0 {
		return nil, nil, nil
	}
	numCommitted := e.cache.SyncedTrees().Version()
	if list.FirstVersion > numCommitted {
		return nil, nil, fmt.Errorf("chunk: transaction list too new: synced version %d, first version %d", numCommitted, list.FirstVersion)
	}
	numToSkip := numCommitted - list.FirstVersion
	if uint64(len(list.Transactions)) <= numToSkip {
		return nil, nil, nil // everything in this chunk is already persisted
	}

	skippedInfos := list.Infos[:numToSkip]
	hashes := make([]types.Hash, len(skippedInfos))
	for i, info := range skippedInfos {
		hashes[i] = info.Hash()
	}
	reconstructed := accumulator.NewInMemoryAccumulator(list.LeftSiblings, list.FirstVersion).Append(hashes)
	if reconstructed.RootHash() != e.cache.SyncedTrees().Accu.RootHash() {
		return nil, nil, fmt.Errorf("%w: reconstructed pre-chunk root disagrees with synced frontier", execerr.ErrFork)
	}

	return list.Transactions[numToSkip:], list.Infos[numToSkip:], nil
}

// replayTransactionsImpl runs txns through the VM and C5 against the
// synced frontier, rejecting any Discard status outright (peers have
// already committed these), then splits the per-txn data into what is
// ready to commit versus what must be retried (spec §4.8 steps 5–6).
func (e *Executor) replayTransactionsImpl(firstVersion uint64, txns []types.Transaction, infos []types.TransactionInfo) (
	output *vmoutput.ProcessedVMOutput,
	txnsToCommit []store.TransactionToCommit,
	reconfigEvents []types.ContractEvent,
	txnsToRetry []types.Transaction,
	infosToRetry []types.TransactionInfo,
	err error,
) {
	parentTrees := e.cache.SyncedTrees()
	reader := storeProofReader{s: e.store}
	base := func(addr types.AccountAddress) (types.AccountStateBlob, bool) { return nil, false }
	view := state.NewVerifiedStateView(base, reader)

	if err := e.hooks.Trigger(testhook.VMExecuteChunk); err != nil {
		return nil, nil, nil, nil, nil, err
	}

	vmOutputs, verr := e.vm.ExecuteBlock(txns, view, true)
	if verr != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("chunk: vm execute_block: %w", verr)
	}
	for _, o := range vmOutputs {
		if o.Status.Kind == types.StatusDiscard {
			return nil, nil, nil, nil, nil, execerr.ErrVmDiscardDuringSync
		}
	}

	output, perr := vmoutput.Process(parentTrees, types.Hash{}, txns, vmOutputs, view, smt.NewBlobAttester(reader), true, stubPowBridge{}, e.metrics, e.opts)
	if perr != nil {
		return nil, nil, nil, nil, nil, perr
	}

	for i, txn := range txns {
		td := output.PerTxnData[i]
		switch td.Status.Kind {
		case types.StatusKeep:
			generated := types.TransactionInfo{
				TxnHash:    txn.Hash,
				StateRoot:  td.StateRoot,
				EventRoot:  td.EventRoot,
				GasUsed:    td.GasUsed,
				StatusCode: td.Status.Code,
			}
			if generated.Hash() != infos[i].Hash() {
				return nil, nil, nil, nil, nil, fmt.Errorf("%w: transaction at version %d", execerr.ErrInfoMismatch, firstVersion+uint64(i))
			}
			tc := store.TransactionToCommit{Txn: txn, AccountBlobs: td.Blobs, Events: td.Events, GasUsed: td.GasUsed, Status: td.Status}
			txnsToCommit = append(txnsToCommit, tc)
			for _, ev := range td.Events {
				if ev.Key == types.EventKeyNewEpoch {
					reconfigEvents = append(reconfigEvents, ev)
				}
			}
		case types.StatusRetry:
			e.metrics.IncChunkReplayRetries()
			txnsToRetry = append(txnsToRetry, txn)
			infosToRetry = append(infosToRetry, infos[i])
		}
	}

	return output, txnsToCommit, reconfigEvents, txnsToRetry, infosToRetry, nil
}

// stubPowBridge satisfies vmoutput.PowBridge for chunk replay. The PoW
// bridge is never actually consulted: replayTransactionsImpl passes the
// pre-genesis parent id (types.Hash{}) to vmoutput.Process, which skips
// pivot and staking-event validation for it, and catch_up_mode is forced
// true throughout C8. The stub accepts every pivot and reports no events.
type stubPowBridge struct{}

func (stubPowBridge) ValidateProposalPivotDecision(types.Hash, types.Hash) bool { return true }
func (stubPowBridge) GetStakingEvents(types.Hash, types.Hash) ([]pos.StakingEvent, error) {
	return nil, nil
}

// executeChunk runs one non-looping pass (spec's execute_chunk): any
// leftover Retry is an error, unlike ReplayChunk which loops until none
// remain.
func (e *Executor) executeChunk(firstVersion uint64, txns []types.Transaction, infos []types.TransactionInfo) (*vmoutput.ProcessedVMOutput, []store.TransactionToCommit, []types.ContractEvent, error) {
	output, txnsToCommit, events, txnsToRetry, _, err := e.replayTransactionsImpl(firstVersion, txns, infos)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(txnsToRetry) != 0 {
		return nil, nil, nil, fmt.Errorf("chunk: transaction at version %d got status Retry", firstVersion+uint64(len(txns)-len(txnsToRetry)))
	}
	return output, txnsToCommit, events, nil
}

// findChunkLedgerInfo implements spec §4.8 step 7: decide which, if any,
// LedgerInfo to persist alongside this chunk.
func findChunkLedgerInfo(targetLI *store.LedgerInfoWithSignatures, epochChangeLI *store.LedgerInfoWithSignatures, output *vmoutput.ProcessedVMOutput) (*store.LedgerInfoWithSignatures, error) {
	newVersion := output.ExecutedTrees.Version()
	if newVersion > 0 {
		newVersion--
	}
	if targetLI.LedgerInfo.Version == newVersion {
		if targetLI.LedgerInfo.TransactionAccumulatorHash != output.ExecutedTrees.Accu.RootHash() {
			return nil, fmt.Errorf("chunk: target ledger info root disagrees with local computation")
		}
		return targetLI, nil
	}
	if epochChangeLI != nil {
		if epochChangeLI.LedgerInfo.TransactionAccumulatorHash != output.ExecutedTrees.Accu.RootHash() {
			return nil, fmt.Errorf("chunk: epoch-change ledger info root disagrees with local computation")
		}
		if epochChangeLI.LedgerInfo.Version != newVersion {
			return nil, fmt.Errorf("chunk: epoch-change ledger info version disagrees with local computation")
		}
		if !epochChangeLI.LedgerInfo.EndsEpoch {
			return nil, fmt.Errorf("chunk: epoch-change ledger info does not carry a validator set")
		}
		if output.NextEpochState == nil || epochChangeLI.LedgerInfo.NextEpochState == nil ||
			epochChangeLI.LedgerInfo.NextEpochState.EpochNumber != output.NextEpochState.EpochNumber {
			return nil, fmt.Errorf("chunk: epoch-change ledger info's validator set disagrees with local computation")
		}
		return epochChangeLI, nil
	}
	if output.NextEpochState != nil {
		return nil, fmt.Errorf("chunk: end-of-epoch chunk based on local computation but no epoch-change ledger info provided")
	}
	return nil, nil
}

// ExecuteAndCommitChunk runs C8's execute_and_commit_chunk (spec §4.8).
func (e *Executor) ExecuteAndCommitChunk(list TransactionListWithProof, verifiedTargetLI *store.LedgerInfoWithSignatures, epochChangeLI *store.LedgerInfoWithSignatures) ([]types.ContractEvent, error) {
	if err := e.resetFromStorage(); err != nil {
		return nil, err
	}

	txns, infos, err := e.verifyChunk(list)
	if err != nil {
		return nil, err
	}

	firstVersion := e.cache.SyncedTrees().Version()
	output, txnsToCommit, reconfigEvents, err := e.executeChunk(firstVersion, txns, infos)
	if err != nil {
		return nil, err
	}

	ledgerInfoToCommit, err := findChunkLedgerInfo(verifiedTargetLI, epochChangeLI, output)
	if err != nil {
		return nil, err
	}
	if ledgerInfoToCommit == nil && len(txnsToCommit) == 0 {
		return reconfigEvents, nil
	}

	if err := e.hooks.Trigger(testhook.CommitChunk); err != nil {
		return nil, err
	}
	if err := e.store.SaveTransactions(txnsToCommit, firstVersion, ledgerInfoToCommit, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", execerr.ErrStorageFailure, err)
	}

	if ledgerInfoToCommit != nil {
		newID := ledgerInfoToCommit.LedgerInfo.ConsensusBlockID
		e.cache.UpdateBlockTreeRoot(newID, output.ExecutedTrees)
	} else {
		e.cache.UpdateSyncedTrees(output.ExecutedTrees)
	}
	e.cache.Reset()

	return reconfigEvents, nil
}

