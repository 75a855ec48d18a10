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

// Package metrics holds the executor's prometheus collectors. Metrics are
// an injected collaborator (spec §1, §5: "global state... the only
// process-wide handles are metric counters and log sinks, injected at
// construction"), never package-global state reached for directly by the
// core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Executor bundles every collector the executor core reports to. Callers
// construct one with NewExecutor and pass it (or the narrower interfaces
// it satisfies, e.g. vmoutput.Metrics) into the facade/processor/chunk
// executor.
type Executor struct {
	DiscardWithEffects prometheus.Counter
	BlocksExecuted      prometheus.Counter
	BlocksCommitted     prometheus.Counter
	CommitBatchSize     prometheus.Histogram
	AccumulatorAppend   prometheus.Histogram
	ChunkReplayRetries  prometheus.Counter
}

// NewExecutor registers the executor's collectors against reg and returns
// the bundle. Passing a nil registry (e.g. in tests) skips registration
// but still returns usable collectors.
func NewExecutor(reg prometheus.Registerer) *Executor {
	e := &Executor{
		DiscardWithEffects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockexec",
			Subsystem: "vmoutput",
			Name:      "discard_with_effects_total",
			Help:      "Discarded transactions that carried a non-empty write set or events.",
		}),
		BlocksExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockexec",
			Subsystem: "executor",
			Name:      "blocks_executed_total",
			Help:      "Blocks successfully run through execute_block.",
		}),
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockexec",
			Subsystem: "executor",
			Name:      "blocks_committed_total",
			Help:      "Blocks successfully committed.",
		}),
		CommitBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blockexec",
			Subsystem: "executor",
			Name:      "commit_batch_size",
			Help:      "Number of transactions committed per commit_blocks call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
		AccumulatorAppend: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blockexec",
			Subsystem: "accumulator",
			Name:      "append_latency_seconds",
			Help:      "Latency of C3 accumulator append calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		ChunkReplayRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockexec",
			Subsystem: "chunk",
			Name:      "replay_retries_total",
			Help:      "Retry-status transactions re-queued by the chunk replayer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			e.DiscardWithEffects,
			e.BlocksExecuted,
			e.BlocksCommitted,
			e.CommitBatchSize,
			e.AccumulatorAppend,
			e.ChunkReplayRetries,
		)
	}
	return e
}

// IncDiscardWithEffects implements vmoutput.Metrics.
func (e *Executor) IncDiscardWithEffects() { e.DiscardWithEffects.Inc() }

// IncBlocksExecuted implements executor.Metrics.
func (e *Executor) IncBlocksExecuted() { e.BlocksExecuted.Inc() }

// IncBlocksCommitted implements executor.Metrics.
func (e *Executor) IncBlocksCommitted() { e.BlocksCommitted.Inc() }

// ObserveCommitBatchSize implements executor.Metrics.
func (e *Executor) ObserveCommitBatchSize(n int) { e.CommitBatchSize.Observe(float64(n)) }

// ObserveAccumulatorAppend records one accumulator append latency sample.
// It is not part of executor.Metrics, and the core does not call it.
func (e *Executor) ObserveAccumulatorAppend(seconds float64) { e.AccumulatorAppend.Observe(seconds) }

// IncChunkReplayRetries implements chunk.Metrics.
func (e *Executor) IncChunkReplayRetries() { e.ChunkReplayRetries.Inc() }
