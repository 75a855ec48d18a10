package accumulator_test

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/core/accumulator"
	"github.com/chainbft/blockexec/core/types"
)

func leaves(labels ...string) []types.Hash {
	out := make([]types.Hash, len(labels))
	for i, l := range labels {
		out[i] = types.HashBytes([]byte(l))
	}
	return out
}

func TestAppendIsDeterministic(t *testing.T) {
	a := accumulator.NewEmpty().Append(leaves("a", "b", "c"))
	b := accumulator.NewEmpty().Append(leaves("a")).Append(leaves("b")).Append(leaves("c"))

	require.Equal(t, a.NumLeaves(), b.NumLeaves())
	require.Equal(t, a.RootHash(), b.RootHash(), "P1: same append history yields a byte-identical root regardless of batching")
	require.Equal(t, a.FrozenSubtreeRoots(), b.FrozenSubtreeRoots())
}

func TestAppendIsImmutable(t *testing.T) {
	base := accumulator.NewEmpty().Append(leaves("a", "b"))
	baseRoot := base.RootHash()

	_ = base.Append(leaves("c"))

	require.Equal(t, baseRoot, base.RootHash(), "Append must not mutate the receiver")
}

func TestRootChangesWithNewLeaves(t *testing.T) {
	a := accumulator.NewEmpty().Append(leaves("a"))
	b := a.Append(leaves("b"))
	require.NotEqual(t, a.RootHash(), b.RootHash())
	require.Equal(t, uint64(1), a.NumLeaves())
	require.Equal(t, uint64(2), b.NumLeaves())
}

func TestNewInMemoryAccumulatorReconstructsRoot(t *testing.T) {
	a := accumulator.NewEmpty().Append(leaves("a", "b", "c", "d", "e"))

	reconstructed := accumulator.NewInMemoryAccumulator(a.FrozenSubtreeRoots(), a.NumLeaves())

	require.Equal(t, a.RootHash(), reconstructed.RootHash(), "I8: frozen subtree roots plus leaf count reconstruct the committed root")
	require.Equal(t, a.NumLeaves(), reconstructed.NumLeaves())
}

func TestAppendFromReconstructedContinuesHistory(t *testing.T) {
	a := accumulator.NewEmpty().Append(leaves("a", "b", "c"))
	reconstructed := accumulator.NewInMemoryAccumulator(a.FrozenSubtreeRoots(), a.NumLeaves())

	full := a.Append(leaves("d"))
	resumed := reconstructed.Append(leaves("d"))

	require.Equal(t, full.NumLeaves(), resumed.NumLeaves())
	require.Equal(t, full.RootHash(), resumed.RootHash())
}

func TestEventAccumulatorEmptyIsStable(t *testing.T) {
	h1 := accumulator.EventAccumulator(nil)
	h2 := accumulator.EventAccumulator([]types.ContractEvent{})
	require.Equal(t, h1, h2)
}

func TestFrozenSubtreeRootsFoldsIntoPerfectSubtrees(t *testing.T) {
	a := accumulator.NewEmpty().Append(leaves("a", "b", "c"))

	require.Less(t, len(a.FrozenSubtreeRoots()), int(a.NumLeaves()),
		"3 appended leaves must fold into fewer than 3 peaks, or the accumulator has degenerated into a linear hash chain")
	require.Len(t, a.FrozenSubtreeRoots(), 2, "3 leaves (0b11) decompose into one size-2 and one size-1 peak")
}

func TestFrozenSubtreeRootsCountMatchesPopcountOfNumLeaves(t *testing.T) {
	a := accumulator.NewEmpty()
	for n := 1; n <= 16; n++ {
		a = a.Append(leaves(string(rune('a' + n))))
		require.Equal(t, bits.OnesCount64(uint64(n)), len(a.FrozenSubtreeRoots()),
			"after %d leaves the peak count must equal popcount(%d)", n, n)
	}
}

func TestEventAccumulatorSensitiveToContent(t *testing.T) {
	e1 := []types.ContractEvent{{Key: types.HashBytes([]byte("k")), Sequence: 0, Data: []byte("v1")}}
	e2 := []types.ContractEvent{{Key: types.HashBytes([]byte("k")), Sequence: 0, Data: []byte("v2")}}
	require.NotEqual(t, accumulator.EventAccumulator(e1), accumulator.EventAccumulator(e2))
}
