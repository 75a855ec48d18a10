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

package rpcapi

import (
	"github.com/chainbft/blockexec/core/chunk"
	"github.com/chainbft/blockexec/core/executor"
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/internal/store"
)

// ExecuteBlockRequest wraps the arguments to BlockExecutor.ExecuteBlock.
type ExecuteBlockRequest struct {
	BlockID     types.Hash          `json:"block_id"`
	ParentID    types.Hash          `json:"parent_id"`
	Txns        []types.Transaction `json:"txns"`
	CatchUpMode bool                `json:"catch_up_mode"`
}

// ExecuteBlockResponse wraps executor.StateComputeResult.
type ExecuteBlockResponse struct {
	Result *executor.StateComputeResult `json:"result"`
}

// CommitBlocksRequest wraps the arguments to BlockExecutor.CommitBlocks.
type CommitBlocksRequest struct {
	BlockIDs   []types.Hash                    `json:"block_ids"`
	LedgerInfo *store.LedgerInfoWithSignatures `json:"ledger_info"`
}

// CommitBlocksResponse wraps the (committed transactions, reconfig
// events) pair CommitBlocks returns.
type CommitBlocksResponse struct {
	CommittedTxns  []types.Transaction  `json:"committed_txns"`
	ReconfigEvents []types.ContractEvent `json:"reconfig_events"`
}

// CommittedBlockIDRequest takes no arguments; it exists so the RPC has a
// message type to negotiate, matching every other call in this service.
type CommittedBlockIDRequest struct{}

// CommittedBlockIDResponse wraps BlockExecutor.CommittedBlockID.
type CommittedBlockIDResponse struct {
	BlockID types.Hash `json:"block_id"`
}

// ResetRequest takes no arguments.
type ResetRequest struct{}

// ResetResponse is empty on success; errors surface as a gRPC status.
type ResetResponse struct{}

// ExecuteAndCommitChunkRequest wraps the arguments to
// ChunkExecutor.ExecuteAndCommitChunk.
type ExecuteAndCommitChunkRequest struct {
	List              chunk.TransactionListWithProof   `json:"list"`
	VerifiedTargetLI  *store.LedgerInfoWithSignatures  `json:"verified_target_li"`
	EpochChangeLI     *store.LedgerInfoWithSignatures  `json:"epoch_change_li,omitempty"`
}

// ExecuteAndCommitChunkResponse wraps the reconfig events the chunk
// committed.
type ExecuteAndCommitChunkResponse struct {
	ReconfigEvents []types.ContractEvent `json:"reconfig_events"`
}

// ExpectingVersionRequest takes no arguments.
type ExpectingVersionRequest struct{}

// ExpectingVersionResponse wraps Executor.ExpectingVersion.
type ExpectingVersionResponse struct {
	Version uint64 `json:"version"`
}
