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

// Package executor implements C7, the block executor facade: execute_block,
// commit_blocks, reset, and the reconfiguration-suffix rule, tying C1–C6
// together behind the surface consensus actually drives.
package executor

import (
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/speculation"
	"github.com/chainbft/blockexec/core/state"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/core/vmoutput"
	"github.com/chainbft/blockexec/internal/store"
	"github.com/chainbft/blockexec/internal/testhook"
	"github.com/chainbft/blockexec/internal/vm"
)

// Metrics is the narrow collaborator the facade reports to.
type Metrics interface {
	vmoutput.Metrics
	IncBlocksExecuted()
	IncBlocksCommitted()
	ObserveCommitBatchSize(n int)
}

type noopMetrics struct{}

func (noopMetrics) IncDiscardWithEffects()         {}
func (noopMetrics) IncBlocksExecuted()             {}
func (noopMetrics) IncBlocksCommitted()            {}
func (noopMetrics) ObserveCommitBatchSize(int)     {}

// StateComputeResult is what execute_block hands back to consensus: the
// final (possibly reconfiguration-truncated) transaction list, each
// transaction's status, the new state root, the accumulator's frozen
// subtree representation, and the epoch outcome, if any.
type StateComputeResult struct {
	Transactions       []types.Transaction
	PerTxnStatus       []types.Status
	StateRoot          types.Hash
	NumLeaves          uint64
	FrozenSubtreeRoots []types.Hash
	NextEpochState     *pos.EpochState
	PivotDecision      *types.PivotBlockDecision
}

// storeProofReader adapts a store.Store to both state.ProofReader and
// smt.BlobProofReader (the two interfaces happen to share a shape: supply
// an AccountStateBlob for a key, or report it provably absent).
type storeProofReader struct {
	s store.Store
}

func (r storeProofReader) Proof(key types.Hash) (types.AccountStateBlob, bool, error) {
	return r.s.GetStateWithProof(key)
}

// BlockExecutor is C7: the facade gluing C6's speculation cache to the VM,
// C5's output processor, the PoW bridge, and the ledger store.
type BlockExecutor struct {
	store   store.Store
	vm      vm.Executor
	pow     vmoutput.PowBridge
	metrics Metrics
	hooks   *testhook.Registry
	opts    vmoutput.Options
	logger  log.Logger

	cache *speculation.Cache
}

// New constructs a BlockExecutor from the store's current startup state.
// Returns execerr.ErrDbNotBootstrapped if the store has never seen a
// genesis commit. A nil logger defaults to log.Root(), matching the
// teacher's own injected-logger convention.
func New(s store.Store, vmExec vm.Executor, pow vmoutput.PowBridge, metrics Metrics, hooks *testhook.Registry, opts vmoutput.Options, logger log.Logger) (*BlockExecutor, error) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = log.Root()
	}
	startup, err := s.GetStartupInfo()
	if err != nil {
		return nil, fmt.Errorf("executor: get_startup_info: %w", err)
	}
	if startup == nil {
		return nil, execerr.ErrDbNotBootstrapped
	}
	return &BlockExecutor{
		store:   s,
		vm:      vmExec,
		pow:     pow,
		metrics: metrics,
		hooks:   hooks,
		opts:    opts,
		logger:  logger,
		cache:   speculation.NewWithStartup(startup.CommittedBlockID, startup.CommittedTrees),
	}, nil
}

// CommittedBlockID returns C6's current committed frontier.
func (e *BlockExecutor) CommittedBlockID() types.Hash { return e.cache.CommittedBlockID() }

// Reset reloads the speculation cache from get_startup_info, discarding
// every speculative branch (spec §4.7, required after any error from
// ExecuteBlock/CommitBlocks before retrying).
func (e *BlockExecutor) Reset() error {
	startup, err := e.store.GetStartupInfo()
	if err != nil {
		return fmt.Errorf("%w: %v", execerr.ErrStorageFailure, err)
	}
	if startup == nil {
		return execerr.ErrDbNotBootstrapped
	}
	e.cache.ReplaceCommitted(startup.CommittedBlockID, startup.CommittedTrees)
	e.logger.Warn("executor: speculation cache reset from storage", "committed", startup.CommittedBlockID)
	return nil
}

func (e *BlockExecutor) parentReconfiguring(parentID types.Hash) bool {
	slot, err := e.cache.GetBlock(parentID)
	if err != nil {
		return false // parent is the committed root; no retained output to inspect
	}
	return slot.Output.HasReconfiguration()
}

// ExecuteBlock runs C7's execute_block: the reconfiguration-suffix rule,
// then (absent that) a VM call routed through C5, registering the result
// in C6 (spec §4.7).
func (e *BlockExecutor) ExecuteBlock(blockID, parentID types.Hash, txns []types.Transaction, catchUpMode bool) (*StateComputeResult, error) {
	if err := e.hooks.Trigger(testhook.VMExecuteBlock); err != nil {
		return nil, err
	}

	parentTrees, err := e.cache.GetExecutedTrees(parentID)
	if err != nil {
		return nil, err
	}

	var output *vmoutput.ProcessedVMOutput
	if e.parentReconfiguring(parentID) {
		txns = nil
		output = &vmoutput.ProcessedVMOutput{ExecutedTrees: parentTrees}
	} else {
		ancestorBlobs, err := e.cache.AncestorBlobs(parentID)
		if err != nil {
			return nil, err
		}
		reader := storeProofReader{s: e.store}
		base := func(addr types.AccountAddress) (types.AccountStateBlob, bool) {
			blob, ok := ancestorBlobs[addr]
			return blob, ok
		}
		view := state.NewVerifiedStateView(base, reader)

		vmOutputs, err := e.vm.ExecuteBlock(txns, view, catchUpMode)
		if err != nil {
			return nil, fmt.Errorf("executor: vm execute_block: %w", err)
		}

		output, err = vmoutput.Process(parentTrees, parentID, txns, vmOutputs, view, smt.NewBlobAttester(reader), catchUpMode, e.pow, e.metrics, e.opts)
		if err != nil {
			return nil, err
		}
	}

	slot := &speculation.BlockSlot{Transactions: txns, Output: output}
	if err := e.cache.AddBlockSlot(parentID, blockID, slot); err != nil {
		return nil, err
	}
	e.metrics.IncBlocksExecuted()

	return toStateComputeResult(txns, output), nil
}

func toStateComputeResult(txns []types.Transaction, output *vmoutput.ProcessedVMOutput) *StateComputeResult {
	statuses := make([]types.Status, len(output.PerTxnData))
	for i, td := range output.PerTxnData {
		statuses[i] = td.Status
	}
	return &StateComputeResult{
		Transactions:       txns,
		PerTxnStatus:       statuses,
		StateRoot:          output.ExecutedTrees.StateRoot(),
		NumLeaves:          output.ExecutedTrees.Accu.NumLeaves(),
		FrozenSubtreeRoots: output.ExecutedTrees.Accu.FrozenSubtreeRoots(),
		NextEpochState:     output.NextEpochState,
		PivotDecision:      output.PivotDecision,
	}
}

// CommitBlocks runs C7's commit_blocks: collects every Keep transaction
// across blockIDs (in order), trims the idempotent re-commit prefix,
// hands the batch, the ledger info and the tip PosState to
// Store.SaveTransactions, prunes C6 to
// the new root, and returns the kept transactions plus the new_epoch
// subset of their events (spec §4.7).
func (e *BlockExecutor) CommitBlocks(blockIDs []types.Hash, ledgerInfo *store.LedgerInfoWithSignatures) ([]types.Transaction, []types.ContractEvent, error) {
	if len(blockIDs) == 0 {
		return nil, nil, fmt.Errorf("executor: commit_blocks called with no blocks")
	}
	if err := e.hooks.Trigger(testhook.CommitBlocks); err != nil {
		return nil, nil, err
	}

	var txnsToCommit []store.TransactionToCommit
	var lastSlot *speculation.BlockSlot
	for _, id := range blockIDs {
		slot, err := e.cache.GetBlock(id)
		if err != nil {
			return nil, nil, err
		}
		lastSlot = slot
		for i, txn := range slot.Transactions {
			td := slot.Output.PerTxnData[i]
			if td.Status.Kind != types.StatusKeep {
				continue
			}
			txnsToCommit = append(txnsToCommit, store.TransactionToCommit{
				Txn:          txn,
				AccountBlobs: td.Blobs,
				Events:       td.Events,
				GasUsed:      td.GasUsed,
				Status:       td.Status,
			})
		}
	}

	lastVersion := lastSlot.Output.ExecutedTrees.Accu.NumLeaves()
	if lastVersion != ledgerInfo.LedgerInfo.Version+1 {
		return nil, nil, fmt.Errorf("%w: last block has %d leaves, ledger info wants version %d",
			execerr.ErrVersionStaleOrOverflow, lastVersion, ledgerInfo.LedgerInfo.Version)
	}

	startup, err := e.store.GetStartupInfo()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", execerr.ErrStorageFailure, err)
	}
	persistedVersion := startup.CommittedTrees.Version()
	firstVersionToKeep := e.cache.CommittedTrees().Version()
	if persistedVersion < firstVersionToKeep {
		return nil, nil, fmt.Errorf("%w: store persisted version %d behind cache's committed version %d",
			execerr.ErrVersionStaleOrOverflow, persistedVersion, firstVersionToKeep)
	}
	numToSkip := persistedVersion - firstVersionToKeep
	if numToSkip > uint64(len(txnsToCommit)) {
		return nil, nil, fmt.Errorf("%w: store is %d versions ahead of the %d transactions being committed",
			execerr.ErrVersionStaleOrOverflow, numToSkip, len(txnsToCommit))
	}
	txnsToCommit = txnsToCommit[numToSkip:]
	firstVersionToCommit := firstVersionToKeep + numToSkip

	newTrees := lastSlot.Output.ExecutedTrees
	if err := e.store.SaveTransactions(txnsToCommit, firstVersionToCommit, ledgerInfo, newTrees.PosState); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", execerr.ErrStorageFailure, err)
	}

	newCommittedID := blockIDs[len(blockIDs)-1]
	// Some Store implementations (MemStore, tests) cache get_startup_info's
	// CommittedTrees in-process rather than replaying the transaction log on
	// every call; give them a chance to advance that cache so the next
	// commit_blocks sees a persisted version consistent with what was just
	// written, mirroring the touchApplier optional-capability pattern in
	// vmoutput.
	if setter, ok := e.store.(interface {
		SetCommittedTrees(types.Hash, *trees.ExecutedTrees)
	}); ok {
		setter.SetCommittedTrees(newCommittedID, newTrees)
	}
	if err := e.cache.Prune(newCommittedID, newTrees); err != nil {
		return nil, nil, err
	}

	e.metrics.IncBlocksCommitted()
	e.metrics.ObserveCommitBatchSize(len(txnsToCommit))
	e.logger.Info("executor: committed blocks", "count", len(blockIDs), "txns", len(txnsToCommit), "version", ledgerInfo.LedgerInfo.Version)

	committedTxns := make([]types.Transaction, len(txnsToCommit))
	var reconfigEvents []types.ContractEvent
	for i, t := range txnsToCommit {
		committedTxns[i] = t.Txn
		for _, ev := range t.Events {
			if ev.Key == types.EventKeyNewEpoch {
				reconfigEvents = append(reconfigEvents, ev)
			}
		}
	}
	return committedTxns, reconfigEvents, nil
}
