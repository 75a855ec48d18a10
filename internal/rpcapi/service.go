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
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chainbft/blockexec/core/chunk"
	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/executor"
)

// Server adapts a BlockExecutor and a ChunkExecutor to the two gRPC
// services described by rpcapi.proto. Both dependencies are exported so
// blockexecd can wire them at construction, matching the teacher's
// convention of passing already-built collaborators into a grpc server
// rather than having the server build its own.
type Server struct {
	Block *executor.BlockExecutor
	Chunk *chunk.Executor
}

// statusFromErr classifies execerr sentinels into gRPC status codes so
// clients can branch without string-matching error text.
func statusFromErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, execerr.ErrBlockNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, execerr.ErrFork), errors.Is(err, execerr.ErrStakingEventMismatch),
		errors.Is(err, execerr.ErrPivotInvalid), errors.Is(err, execerr.ErrMultiplePivots),
		errors.Is(err, execerr.ErrInfoMismatch), errors.Is(err, execerr.ErrVmDiscardDuringSync):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, execerr.ErrDbNotBootstrapped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, execerr.ErrStorageFailure):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

func (s *Server) executeBlock(ctx context.Context, req *ExecuteBlockRequest) (*ExecuteBlockResponse, error) {
	res, err := s.Block.ExecuteBlock(req.BlockID, req.ParentID, req.Txns, req.CatchUpMode)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return &ExecuteBlockResponse{Result: res}, nil
}

func (s *Server) commitBlocks(ctx context.Context, req *CommitBlocksRequest) (*CommitBlocksResponse, error) {
	txns, events, err := s.Block.CommitBlocks(req.BlockIDs, req.LedgerInfo)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return &CommitBlocksResponse{CommittedTxns: txns, ReconfigEvents: events}, nil
}

func (s *Server) committedBlockID(ctx context.Context, _ *CommittedBlockIDRequest) (*CommittedBlockIDResponse, error) {
	return &CommittedBlockIDResponse{BlockID: s.Block.CommittedBlockID()}, nil
}

func (s *Server) reset(ctx context.Context, _ *ResetRequest) (*ResetResponse, error) {
	if err := s.Block.Reset(); err != nil {
		return nil, statusFromErr(err)
	}
	return &ResetResponse{}, nil
}

func (s *Server) executeAndCommitChunk(ctx context.Context, req *ExecuteAndCommitChunkRequest) (*ExecuteAndCommitChunkResponse, error) {
	events, err := s.Chunk.ExecuteAndCommitChunk(req.List, req.VerifiedTargetLI, req.EpochChangeLI)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return &ExecuteAndCommitChunkResponse{ReconfigEvents: events}, nil
}

func (s *Server) expectingVersion(ctx context.Context, _ *ExpectingVersionRequest) (*ExpectingVersionResponse, error) {
	return &ExpectingVersionResponse{Version: s.Chunk.ExpectingVersion()}, nil
}

// unaryHandler adapts one of Server's methods to grpc.MethodDesc's
// Handler signature for a request of type Req.
func unaryHandler[Req any, Resp any](fn func(*Server, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		s, ok := srv.(*Server)
		if !ok {
			return nil, fmt.Errorf("rpcapi: handler bound to wrong server type %T", srv)
		}
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(s, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// BlockExecutorServiceDesc is the hand-written equivalent of a
// protoc-gen-go-grpc _ServiceDesc for the BlockExecutor service in
// rpcapi.proto.
var BlockExecutorServiceDesc = grpc.ServiceDesc{
	ServiceName: "chainbft.blockexec.rpcapi.v1.BlockExecutor",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteBlock", Handler: unaryHandler((*Server).executeBlock)},
		{MethodName: "CommitBlocks", Handler: unaryHandler((*Server).commitBlocks)},
		{MethodName: "CommittedBlockID", Handler: unaryHandler((*Server).committedBlockID)},
		{MethodName: "Reset", Handler: unaryHandler((*Server).reset)},
	},
	Metadata: "rpcapi.proto",
}

// ChunkExecutorServiceDesc is the hand-written equivalent for the
// ChunkExecutor service.
var ChunkExecutorServiceDesc = grpc.ServiceDesc{
	ServiceName: "chainbft.blockexec.rpcapi.v1.ChunkExecutor",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteAndCommitChunk", Handler: unaryHandler((*Server).executeAndCommitChunk)},
		{MethodName: "ExpectingVersion", Handler: unaryHandler((*Server).expectingVersion)},
	},
	Metadata: "rpcapi.proto",
}

// Register attaches both service descriptors to gs, bound to s.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&BlockExecutorServiceDesc, s)
	gs.RegisterService(&ChunkExecutorServiceDesc, s)
}
