package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/internal/metrics"
)

func TestNewExecutorRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := metrics.NewExecutor(reg)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"blockexec_vmoutput_discard_with_effects_total",
		"blockexec_executor_blocks_executed_total",
		"blockexec_executor_blocks_committed_total",
		"blockexec_executor_commit_batch_size",
		"blockexec_accumulator_append_latency_seconds",
		"blockexec_chunk_replay_retries_total",
	} {
		require.True(t, names[want], "expected %s to be registered", want)
	}
	require.NotNil(t, e)
}

func TestNewExecutorWithNilRegistrySkipsRegistrationButStaysUsable(t *testing.T) {
	e := metrics.NewExecutor(nil)

	e.IncBlocksExecuted()
	e.IncBlocksCommitted()
	e.IncDiscardWithEffects()
	e.IncChunkReplayRetries()
	e.ObserveCommitBatchSize(3)
	e.ObserveAccumulatorAppend(0.05)

	require.Equal(t, float64(1), testutil.ToFloat64(e.BlocksExecuted))
	require.Equal(t, float64(1), testutil.ToFloat64(e.BlocksCommitted))
	require.Equal(t, float64(1), testutil.ToFloat64(e.DiscardWithEffects))
	require.Equal(t, float64(1), testutil.ToFloat64(e.ChunkReplayRetries))
}

func TestCountersIncrementIndependently(t *testing.T) {
	e := metrics.NewExecutor(nil)

	e.IncBlocksExecuted()
	e.IncBlocksExecuted()
	e.IncBlocksExecuted()
	e.IncBlocksCommitted()

	require.Equal(t, float64(3), testutil.ToFloat64(e.BlocksExecuted))
	require.Equal(t, float64(1), testutil.ToFloat64(e.BlocksCommitted))
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewExecutor(reg)

	require.Panics(t, func() {
		metrics.NewExecutor(reg)
	}, "MustRegister must fail loudly on a duplicate collector rather than silently share state")
}
