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

	"google.golang.org/grpc"
)

// Client is a thin wrapper over a grpc.ClientConn that invokes the two
// services by their fully-qualified method names, using the json codec
// registered in codec.go for every call.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(codecName))
}

func (c *Client) ExecuteBlock(ctx context.Context, req *ExecuteBlockRequest) (*ExecuteBlockResponse, error) {
	resp := new(ExecuteBlockResponse)
	if err := c.invoke(ctx, "/chainbft.blockexec.rpcapi.v1.BlockExecutor/ExecuteBlock", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CommitBlocks(ctx context.Context, req *CommitBlocksRequest) (*CommitBlocksResponse, error) {
	resp := new(CommitBlocksResponse)
	if err := c.invoke(ctx, "/chainbft.blockexec.rpcapi.v1.BlockExecutor/CommitBlocks", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CommittedBlockID(ctx context.Context) (*CommittedBlockIDResponse, error) {
	resp := new(CommittedBlockIDResponse)
	if err := c.invoke(ctx, "/chainbft.blockexec.rpcapi.v1.BlockExecutor/CommittedBlockID", &CommittedBlockIDRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Reset(ctx context.Context) error {
	return c.invoke(ctx, "/chainbft.blockexec.rpcapi.v1.BlockExecutor/Reset", &ResetRequest{}, new(ResetResponse))
}

func (c *Client) ExecuteAndCommitChunk(ctx context.Context, req *ExecuteAndCommitChunkRequest) (*ExecuteAndCommitChunkResponse, error) {
	resp := new(ExecuteAndCommitChunkResponse)
	if err := c.invoke(ctx, "/chainbft.blockexec.rpcapi.v1.ChunkExecutor/ExecuteAndCommitChunk", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ExpectingVersion(ctx context.Context) (*ExpectingVersionResponse, error) {
	resp := new(ExpectingVersionResponse)
	if err := c.invoke(ctx, "/chainbft.blockexec.rpcapi.v1.ChunkExecutor/ExpectingVersion", &ExpectingVersionRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
