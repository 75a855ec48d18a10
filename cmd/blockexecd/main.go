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

// Command blockexecd is the long-running daemon wiring C7 (BlockExecutor)
// and C8 (ChunkExecutor) behind a gRPC listener for the consensus layer
// to drive.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chainbft/blockexec/core/chunk"
	"github.com/chainbft/blockexec/core/executor"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/core/vmoutput"
	"github.com/chainbft/blockexec/internal/config"
	"github.com/chainbft/blockexec/internal/metrics"
	"github.com/chainbft/blockexec/internal/powbridge"
	"github.com/chainbft/blockexec/internal/rpcapi"
	"github.com/chainbft/blockexec/internal/store"
	"github.com/chainbft/blockexec/internal/testhook"
	"github.com/chainbft/blockexec/internal/vm"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "blockexecd",
		Short: "Runs the hybrid PoW/PoS block executor as a gRPC daemon",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "blockexecd.yaml", "path to the daemon's YAML config file")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()
	cfg, err := loadOrInit(fs, configPath)
	if err != nil {
		return fmt.Errorf("blockexecd: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("blockexecd: starting", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

	reg := prometheus.NewRegistry()
	m := metrics.NewExecutor(reg)

	s, err := openOrBootstrapStore(cfg)
	if err != nil {
		return fmt.Errorf("blockexecd: opening store: %w", err)
	}

	hooks := testhook.NewRegistry()
	opts := vmoutput.Options{GenesisZeroRootCompat: cfg.GenesisZeroRootCompat}
	pow := powbridge.NewStub()
	vmExec := vm.NewScriptedOutputs(nil)

	blockExec, err := executor.New(s, vmExec, pow, m, hooks, opts, logger)
	if err != nil {
		return fmt.Errorf("blockexecd: constructing block executor: %w", err)
	}
	chunkExec, err := chunk.New(s, vmExec, m, hooks, opts, logger)
	if err != nil {
		return fmt.Errorf("blockexecd: constructing chunk executor: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, logger)
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("blockexecd: listening on %s: %w", cfg.ListenAddr, err)
	}
	gs := grpc.NewServer()
	rpcapi.Register(gs, &rpcapi.Server{Block: blockExec, Chunk: chunkExec})

	logger.Info("blockexecd: serving", "addr", lis.Addr())
	return gs.Serve(lis)
}

func loadOrInit(fs afero.Fs, path string) (config.Config, error) {
	if exists, _ := afero.Exists(fs, path); !exists {
		cfg := config.Default()
		if err := config.Save(fs, path, cfg); err != nil {
			return config.Config{}, err
		}
		return cfg, nil
	}
	return config.Load(fs, path)
}

func newLogger(cfg config.Config) log.Logger {
	logger := log.New()
	if cfg.LogFile == "" {
		return logger
	}
	sink := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: 100, MaxBackups: 5, MaxAge: 28}
	logger.SetHandler(log.StreamHandler(sink, log.JSONFormat()))
	return logger
}

func openOrBootstrapStore(cfg config.Config) (store.Store, error) {
	s, err := store.OpenMDBXStore(cfg.DataDir, types.PreGenesisBlockID, trees.NewGenesis(cfg.TermLength))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("blockexecd: metrics server stopped", "err", err)
	}
}
