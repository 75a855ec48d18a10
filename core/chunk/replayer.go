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

	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/types"
)

// ReplayChunk runs C8's replay_chunk (spec §4.8): commits successive
// batches until no Retry remains, persisting without a ledger info (used
// during bulk historical replay, e.g. chain-of-custody verification
// tools). Like ExecuteAndCommitChunk it replays on top of the synced
// frontier's ExecutedTrees, PosState included, rather than an empty
// PosState. A pass in which every remaining transaction is a Retry makes
// no progress and returns an error instead of looping.
func (e *Executor) ReplayChunk(firstVersion uint64, txns []types.Transaction, infos []types.TransactionInfo) error {
	if firstVersion != e.cache.SyncedTrees().Version() {
		return fmt.Errorf("%w: expected version %d, got %d", execerr.ErrVersionStaleOrOverflow, e.cache.SyncedTrees().Version(), firstVersion)
	}
	for len(txns) > 0 {
		numTxns := len(txns)
		output, txnsToCommit, _, txnsToRetry, infosToRetry, err := e.replayTransactionsImpl(firstVersion, txns, infos)
		if err != nil {
			return err
		}
		if len(txnsToRetry) >= numTxns {
			return fmt.Errorf("chunk: replay made no progress at version %d", firstVersion)
		}

		if err := e.store.SaveTransactions(txnsToCommit, firstVersion, nil, nil); err != nil {
			return fmt.Errorf("%w: %v", execerr.ErrStorageFailure, err)
		}
		e.cache.UpdateSyncedTrees(output.ExecutedTrees)

		firstVersion += uint64(len(txnsToCommit))
		txns = txnsToRetry
		infos = infosToRetry
		if len(txns) > 0 {
			e.logger.Warn("chunk: replay batch left transactions to retry", "remaining", len(txns), "next_version", firstVersion)
		}
	}
	return nil
}
