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

// Command blockexecctl is an operator CLI against a running blockexecd:
// inspecting the committed frontier and forcing a speculation-cache reset
// (spec §7: callers must reset() after a storage error before retrying).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chainbft/blockexec/internal/rpcapi"
)

var addr string

func main() {
	root := &cobra.Command{Use: "blockexecctl"}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:9090", "blockexecd gRPC listen address")

	root.AddCommand(committedCmd(), resetCmd(), expectingVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dial() (*rpcapi.Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("blockexecctl: dialing %s: %w", addr, err)
	}
	return rpcapi.NewClient(conn), conn, nil
}

func withClient(fn func(ctx context.Context, c *rpcapi.Client) error) error {
	c, conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx, c)
}

func committedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "committed",
		Short: "Print the currently committed block id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *rpcapi.Client) error {
				resp, err := c.CommittedBlockID(ctx)
				if err != nil {
					return err
				}
				fmt.Println(resp.BlockID.String())
				return nil
			})
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reload the speculation cache from storage, discarding every speculative branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *rpcapi.Client) error {
				return c.Reset(ctx)
			})
		},
	}
}

func expectingVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expecting-version",
		Short: "Print the next version the chunk replayer will accept",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *rpcapi.Client) error {
				resp, err := c.ExpectingVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Println(resp.Version)
				return nil
			})
		},
	}
}
