package smt_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/types"
)

type fakeAttester struct {
	known map[types.Hash]types.Hash
}

func (f *fakeAttester) Attest(key types.Hash) (types.Hash, bool, error) {
	h, ok := f.known[key]
	return h, ok, nil
}

func key(s string) types.Hash  { return types.HashAddress(types.AccountAddress(types.HashBytes([]byte(s)))) }
func blob(s string) types.Hash { return types.HashBytes([]byte(s)) }

func TestBatchUpdateMaterializesNewKeys(t *testing.T) {
	base := smt.NewEmpty()
	k1, k2 := key("alice"), key("bob")

	roots, tree, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{k1}, Hashes: []types.Hash{blob("v1")}},
		{Keys: []types.Hash{k2}, Hashes: []types.Hash{blob("v2")}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	require.NotEqual(t, roots[0], roots[1], "root after txn 2 must differ from root after txn 1")

	got, ok := tree.Get(k1)
	require.True(t, ok)
	require.Equal(t, blob("v1"), got)
}

func TestBatchUpdateLeavesBaseUntouched(t *testing.T) {
	base := smt.NewEmpty()
	baseRoot := base.RootHash()

	_, _, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{key("alice")}, Hashes: []types.Hash{blob("v1")}},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, baseRoot, base.RootHash(), "BatchUpdate must not mutate the receiver")
}

func TestBatchUpdateFailsWithoutProofForUnmaterializedKey(t *testing.T) {
	base := smt.NewEmpty()
	_, _, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{key("alice")}, Hashes: []types.Hash{types.Hash{}}},
	}, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, smt.ErrProofMissing), "failure to supply a required proof must be fatal (ProofMissing)")
}

func TestBatchUpdateConsultsProofReaderForUnseenKeys(t *testing.T) {
	base := smt.NewEmpty()
	k := key("alice")
	attester := &fakeAttester{known: map[types.Hash]types.Hash{k: blob("existing")}}

	// Delete a key the tree has never materialized; the attester confirms
	// it exists so the delete is well-formed, and the fold must remove it.
	_, tree, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{k}, Hashes: []types.Hash{types.Hash{}}},
	}, attester)
	require.NoError(t, err)
	_, ok := tree.Get(k)
	require.False(t, ok)
}

func TestBatchUpdateTieBreakWithinOneTxn(t *testing.T) {
	base := smt.NewEmpty()
	k := key("alice")

	_, tree, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{k, k}, Hashes: []types.Hash{blob("first"), blob("second")}},
	}, nil)
	require.NoError(t, err)
	got, ok := tree.Get(k)
	require.True(t, ok)
	require.Equal(t, blob("second"), got, "later update in the same txn's batch wins")
}

func TestRootOrderIndependent(t *testing.T) {
	base := smt.NewEmpty()
	k1, k2 := key("alice"), key("bob")

	_, t1, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{k1, k2}, Hashes: []types.Hash{blob("v1"), blob("v2")}},
	}, nil)
	require.NoError(t, err)

	_, t2, err := smt.BatchUpdate(base, []smt.PerTxnUpdate{
		{Keys: []types.Hash{k2, k1}, Hashes: []types.Hash{blob("v2"), blob("v1")}},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, t1.RootHash(), t2.RootHash(), "root is a function of the materialized (key, hash) set, not insertion order")
}

func TestNewBlobAttesterHashesProofBlob(t *testing.T) {
	reader := stubBlobReader{blob: types.AccountStateBlob("blob-bytes"), ok: true}
	attester := smt.NewBlobAttester(reader)

	h, ok, err := attester.Attest(key("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.HashBlob(reader.blob), h)
}

type stubBlobReader struct {
	blob types.AccountStateBlob
	ok   bool
}

func (s stubBlobReader) Proof(types.Hash) (types.AccountStateBlob, bool, error) {
	return s.blob, s.ok, nil
}
