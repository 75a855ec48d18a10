package chunk_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/core/accumulator"
	"github.com/chainbft/blockexec/core/chunk"
	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/smt"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/core/vmoutput"
	"github.com/chainbft/blockexec/internal/store"
	"github.com/chainbft/blockexec/internal/vm"
)

var emptyStateRoot = smt.NewEmpty().RootHash()
var emptyEventRoot = types.HashBytes(nil)

func chunkTxnHash(i int) types.Hash { return types.HashBytes([]byte(fmt.Sprintf("chunk-txn-%d", i))) }

func chunkInfo(i int) types.TransactionInfo {
	return types.TransactionInfo{TxnHash: chunkTxnHash(i), StateRoot: emptyStateRoot, EventRoot: emptyEventRoot}
}

// seedLedger builds n already-persisted no-op Keep transactions (empty
// write set, no events) and returns the resulting committed ExecutedTrees
// plus every TransactionInfo, so tests can slice out a verifiable
// TransactionListWithProof against a chosen FirstVersion.
func seedLedger(n int, termLength uint64) (*trees.ExecutedTrees, []types.TransactionInfo) {
	infos := make([]types.TransactionInfo, n)
	hashes := make([]types.Hash, n)
	for i := 0; i < n; i++ {
		infos[i] = chunkInfo(i)
		hashes[i] = infos[i].Hash()
	}
	acc := accumulator.NewEmpty().Append(hashes)
	return &trees.ExecutedTrees{StateTree: smt.NewEmpty(), Accu: acc, PosState: pos.NewGenesis(termLength)}, infos
}

func leftSiblingsAt(infos []types.TransactionInfo, upTo int) []types.Hash {
	hashes := make([]types.Hash, upTo)
	for i := 0; i < upTo; i++ {
		hashes[i] = infos[i].Hash()
	}
	return accumulator.NewEmpty().Append(hashes).FrozenSubtreeRoots()
}

func chunkTxn(i int) types.Transaction {
	return types.Transaction{Kind: types.TxUser, Payload: types.PayloadScript, Hash: chunkTxnHash(i)}
}

func noopKeepOutputs(from, to int) map[types.Hash]types.TransactionOutput {
	out := make(map[types.Hash]types.TransactionOutput, to-from)
	for i := from; i < to; i++ {
		out[chunkTxnHash(i)] = types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}
	}
	return out
}

func newChunkExecutor(t *testing.T, committed *trees.ExecutedTrees, vmExec *vm.ScriptedOutputs) *chunk.Executor {
	t.Helper()
	s := store.NewMemStore(types.HashBytes([]byte("seed-root")), committed)
	e, err := chunk.New(s, vmExec, nil, nil, vmoutput.DefaultOptions(), nil)
	require.NoError(t, err)
	return e
}

func TestExecuteAndCommitChunkSkipsAlreadyPersistedPrefix(t *testing.T) {
	const persisted = 5
	const chunkLen = 7
	committed, infos := seedLedger(persisted, 10)

	list := chunk.TransactionListWithProof{
		FirstVersion: 3,
		Transactions: make([]types.Transaction, chunkLen-3),
		Infos:        append([]types.TransactionInfo(nil), infos[3:]...),
		LeftSiblings: leftSiblingsAt(infos, 3),
	}
	for i := range list.Transactions {
		list.Transactions[i] = chunkTxn(i + 3)
	}
	for i := persisted; i < chunkLen; i++ {
		list.Infos = append(list.Infos, chunkInfo(i))
	}

	vmExec := vm.NewScriptedOutputs(noopKeepOutputs(persisted, chunkLen))
	e := newChunkExecutor(t, committed, vmExec)
	require.Equal(t, uint64(persisted), e.ExpectingVersion())

	fullAcc := accumulator.NewEmpty()
	allHashes := make([]types.Hash, chunkLen)
	for i := 0; i < chunkLen; i++ {
		allHashes[i] = chunkInfo(i).Hash()
	}
	fullAcc = fullAcc.Append(allHashes)

	target := &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{
		Version:                    chunkLen - 1,
		ConsensusBlockID:           types.HashBytes([]byte("chunk-tip")),
		TransactionAccumulatorHash: fullAcc.RootHash(),
	}}

	_, err := e.ExecuteAndCommitChunk(list, target, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(chunkLen), e.ExpectingVersion(), "only the 2 truly-new transactions (versions 5,6) should have been replayed and committed")
}

func TestExecuteAndCommitChunkDetectsFork(t *testing.T) {
	const persisted = 5
	committed, infos := seedLedger(persisted, 10)

	list := chunk.TransactionListWithProof{
		FirstVersion: 3,
		Transactions: []types.Transaction{chunkTxn(3), chunkTxn(4), chunkTxn(5)},
		Infos:        append(append([]types.TransactionInfo(nil), infos[3:]...), chunkInfo(5)),
		LeftSiblings: []types.Hash{types.HashBytes([]byte("wrong-sibling"))},
	}

	vmExec := vm.NewScriptedOutputs(nil)
	e := newChunkExecutor(t, committed, vmExec)

	_, err := e.ExecuteAndCommitChunk(list, nil, nil)
	require.ErrorIs(t, err, execerr.ErrFork)
	require.Equal(t, uint64(persisted), e.ExpectingVersion(), "a rejected fork must not advance num_persistent")
}

func TestExecuteAndCommitChunkEntirelyPersistedIsNoop(t *testing.T) {
	const persisted = 5
	committed, infos := seedLedger(persisted, 10)

	list := chunk.TransactionListWithProof{
		FirstVersion: 0,
		Transactions: []types.Transaction{chunkTxn(0), chunkTxn(1)},
		Infos:        append([]types.TransactionInfo(nil), infos[:2]...),
		LeftSiblings: nil,
	}

	vmExec := vm.NewScriptedOutputs(nil)
	e := newChunkExecutor(t, committed, vmExec)

	// Even though every transaction in the list is already persisted, the
	// caller still supplies the target ledger info its sync source signed;
	// the executor must re-verify it without replaying any transactions.
	target := &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{
		Version:                    persisted - 1,
		ConsensusBlockID:           types.HashBytes([]byte("same-tip")),
		TransactionAccumulatorHash: committed.Accu.RootHash(),
	}}

	events, err := e.ExecuteAndCommitChunk(list, target, nil)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, uint64(persisted), e.ExpectingVersion())
}

func TestReplayChunkCommitsSequentially(t *testing.T) {
	committed, _ := seedLedger(0, 10)
	vmExec := vm.NewScriptedOutputs(noopKeepOutputs(0, 4))
	e := newChunkExecutor(t, committed, vmExec)

	// Replaying straight off an empty parent accumulator hits C5's
	// GenesisZeroRootCompat path (NumLeaves()==0), which stores a zero
	// per-txn state root rather than the empty tree's real root hash.
	txns := []types.Transaction{chunkTxn(0), chunkTxn(1), chunkTxn(2), chunkTxn(3)}
	infos := make([]types.TransactionInfo, 4)
	for i := range infos {
		info := chunkInfo(i)
		info.StateRoot = types.Hash{}
		infos[i] = info
	}

	require.NoError(t, e.ReplayChunk(0, txns, infos))
	require.Equal(t, uint64(4), e.ExpectingVersion())
}

func TestReplayChunkStopsWhenRetryNeverClears(t *testing.T) {
	committed, _ := seedLedger(3, 10)
	retryOut := types.TransactionOutput{Status: types.Status{Kind: types.StatusRetry}}
	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{
		chunkTxnHash(3): retryOut,
	})
	e := newChunkExecutor(t, committed, vmExec)

	txns := []types.Transaction{chunkTxn(3)}
	infos := []types.TransactionInfo{chunkInfo(3)}

	err := e.ReplayChunk(3, txns, infos)
	require.Error(t, err, "a Retry that never clears must not loop forever; replay reports no progress")
}

func TestReplayChunkRejectsWrongStartVersion(t *testing.T) {
	committed, _ := seedLedger(2, 10)
	vmExec := vm.NewScriptedOutputs(nil)
	e := newChunkExecutor(t, committed, vmExec)

	err := e.ReplayChunk(0, []types.Transaction{chunkTxn(0)}, []types.TransactionInfo{chunkInfo(0)})
	require.ErrorIs(t, err, execerr.ErrVersionStaleOrOverflow)
}
