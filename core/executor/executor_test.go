package executor_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/core/execerr"
	"github.com/chainbft/blockexec/core/executor"
	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/trees"
	"github.com/chainbft/blockexec/core/types"
	"github.com/chainbft/blockexec/core/vmoutput"
	"github.com/chainbft/blockexec/internal/powbridge"
	"github.com/chainbft/blockexec/internal/store"
	"github.com/chainbft/blockexec/internal/testhook"
	"github.com/chainbft/blockexec/internal/vm"
)

func blkHash(s string) types.Hash { return types.HashBytes([]byte(s)) }

func nodeID(s string) pos.NodeID { return types.HashBytes([]byte(s)) }

// encodeValidatorSet builds the flat (NodeID || BE uint64 power) resource
// genesis writes under types.ConfigAddress, matching decodeGenesisValidatorSet.
func encodeValidatorSet(powers map[pos.NodeID]uint64) []byte {
	out := make([]byte, 0, len(powers)*(types.HashLength+8))
	for node, power := range powers {
		var p [8]byte
		binary.BigEndian.PutUint64(p[:], power)
		out = append(out, node[:]...)
		out = append(out, p[:]...)
	}
	return out
}

// genesisTxn returns a TxGenesis transaction whose scripted output writes
// the validator_set resource, sufficient to trigger genesis epoch synthesis.
func genesisTxn(hash types.Hash, powers map[pos.NodeID]uint64) (types.Transaction, types.TransactionOutput) {
	txn := types.Transaction{Kind: types.TxGenesis, Hash: hash}
	ws := types.WriteSet{{
		Path: types.AccessPath{Address: types.ConfigAddress, Path: []byte("validator_set")},
		Op:   types.WriteOp{Kind: types.WriteOpValue, Value: encodeValidatorSet(powers)},
	}}
	out := types.TransactionOutput{WriteSet: ws, Status: types.Status{Kind: types.StatusKeep}}
	return txn, out
}

func newTestExecutor(t *testing.T, genesisTrees *trees.ExecutedTrees, vmExec vm.Executor, pow vmoutput.PowBridge, hooks *testhook.Registry) (*executor.BlockExecutor, *store.MemStore) {
	t.Helper()
	s := store.NewMemStore(types.PreGenesisBlockID, genesisTrees)
	e, err := executor.New(s, vmExec, pow, nil, hooks, vmoutput.DefaultOptions(), nil)
	require.NoError(t, err)
	return e, s
}

type unbootstrappedStore struct{}

func (unbootstrappedStore) GetStartupInfo() (*store.StartupInfo, error) { return nil, nil }
func (unbootstrappedStore) SaveTransactions([]store.TransactionToCommit, uint64, *store.LedgerInfoWithSignatures, *pos.PosState) error {
	return nil
}
func (unbootstrappedStore) GetStateWithProof(types.Hash) (types.AccountStateBlob, bool, error) {
	return nil, false, nil
}

func TestNewFailsWithoutBootstrap(t *testing.T) {
	_, err := executor.New(unbootstrappedStore{}, vm.NewScriptedOutputs(nil), powbridge.NewStub(), nil, nil, vmoutput.DefaultOptions(), nil)
	require.True(t, errors.Is(err, execerr.ErrDbNotBootstrapped))
}

func TestExecuteBlockAndCommitGenesis(t *testing.T) {
	genesis := trees.NewGenesis(2)
	alice := nodeID("alice")
	txnHash := blkHash("genesis-txn")
	txn, out := genesisTxn(txnHash, map[pos.NodeID]uint64{alice: 100})

	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{txnHash: out})
	e, s := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), nil)

	blockID := blkHash("genesis-block")
	result, err := e.ExecuteBlock(blockID, types.PreGenesisBlockID, []types.Transaction{txn}, false)
	require.NoError(t, err)
	require.Len(t, result.PerTxnStatus, 1)
	require.Equal(t, types.StatusKeep, result.PerTxnStatus[0].Kind)
	require.NotNil(t, result.NextEpochState, "genesis validator_set resource must synthesize epoch 1")
	require.Equal(t, uint64(1), result.NumLeaves)

	li := &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{
		Version:          0,
		ConsensusBlockID: blockID,
	}}
	committed, reconfigEvents, err := e.CommitBlocks([]types.Hash{blockID}, li)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	require.Empty(t, reconfigEvents, "genesis epoch synthesis bypasses the new_epoch event path")
	require.Equal(t, blockID, e.CommittedBlockID())

	startup, err := s.GetStartupInfo()
	require.NoError(t, err)
	require.Equal(t, blockID, startup.CommittedBlockID)
	require.Equal(t, uint64(1), startup.CommittedTrees.Version(), "SetCommittedTrees must advance the store's cached tip")
}

func TestCommitBlocksSuccessiveBatchesStayConsistent(t *testing.T) {
	genesis := trees.NewGenesis(10)
	aliceHash := blkHash("txn-a")
	bobHash := blkHash("txn-b")
	outA := types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}
	outB := types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}

	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{aliceHash: outA, bobHash: outB})
	e, _ := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), nil)

	blockA := blkHash("block-a")
	_, err := e.ExecuteBlock(blockA, types.PreGenesisBlockID, []types.Transaction{{Kind: types.TxUser, Payload: types.PayloadScript, Hash: aliceHash}}, false)
	require.NoError(t, err)
	_, _, err = e.CommitBlocks([]types.Hash{blockA}, &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{Version: 0, ConsensusBlockID: blockA}})
	require.NoError(t, err)

	blockB := blkHash("block-b")
	_, err = e.ExecuteBlock(blockB, blockA, []types.Transaction{{Kind: types.TxUser, Payload: types.PayloadScript, Hash: bobHash}}, false)
	require.NoError(t, err)
	_, _, err = e.CommitBlocks([]types.Hash{blockB}, &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{Version: 1, ConsensusBlockID: blockB}})
	require.NoError(t, err, "a second commit_blocks must see a store whose cached committed version matches what the first commit wrote")

	require.Equal(t, blockB, e.CommittedBlockID())
}

func TestReconfigurationSuffixForcesEmptyBlock(t *testing.T) {
	genesis := trees.NewGenesis(1)
	alice := nodeID("alice")
	txnHash := blkHash("genesis-txn")
	txn, out := genesisTxn(txnHash, map[pos.NodeID]uint64{alice: 100})

	childHash := blkHash("child-txn")
	childOut := types.TransactionOutput{
		WriteSet: types.WriteSet{{
			Path: types.AccessPath{Address: types.AccountAddress{9}, Path: []byte("k")},
			Op:   types.WriteOp{Kind: types.WriteOpValue, Value: []byte("v")},
		}},
		Status: types.Status{Kind: types.StatusKeep},
	}

	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{txnHash: out, childHash: childOut})
	e, _ := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), nil)

	genesisBlock := blkHash("genesis-block")
	genResult, err := e.ExecuteBlock(genesisBlock, types.PreGenesisBlockID, []types.Transaction{txn}, false)
	require.NoError(t, err)
	require.NotNil(t, genResult.NextEpochState)

	childBlock := blkHash("child-block")
	childResult, err := e.ExecuteBlock(childBlock, genesisBlock, []types.Transaction{{Kind: types.TxUser, Payload: types.PayloadScript, Hash: childHash}}, false)
	require.NoError(t, err)

	require.Empty(t, childResult.Transactions, "I7: a block following a reconfiguring parent must be forced empty")
	require.Empty(t, childResult.PerTxnStatus)
	require.Equal(t, genResult.StateRoot, childResult.StateRoot, "an empty block changes no state")
	require.Equal(t, genResult.NumLeaves, childResult.NumLeaves, "an empty block appends no accumulator leaves")
}

func TestResetDiscardsSpeculativeBranches(t *testing.T) {
	genesis := trees.NewGenesis(10)
	txnHash := blkHash("t")
	out := types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}
	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{txnHash: out})
	e, _ := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), nil)

	speculative := blkHash("speculative")
	_, err := e.ExecuteBlock(speculative, types.PreGenesisBlockID, []types.Transaction{{Kind: types.TxUser, Payload: types.PayloadScript, Hash: txnHash}}, false)
	require.NoError(t, err)

	require.NoError(t, e.Reset())
	require.Equal(t, types.PreGenesisBlockID, e.CommittedBlockID())

	_, err = e.ExecuteBlock(blkHash("reexecute"), speculative, nil, false)
	require.True(t, errors.Is(err, execerr.ErrBlockNotFound), "reset must discard every speculative block not yet committed")
}

func TestCommitBlocksRejectsStaleVersion(t *testing.T) {
	genesis := trees.NewGenesis(10)
	txnHash := blkHash("t")
	out := types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}
	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{txnHash: out})
	e, _ := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), nil)

	blockID := blkHash("block")
	_, err := e.ExecuteBlock(blockID, types.PreGenesisBlockID, []types.Transaction{{Kind: types.TxUser, Payload: types.PayloadScript, Hash: txnHash}}, false)
	require.NoError(t, err)

	_, _, err = e.CommitBlocks([]types.Hash{blockID}, &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{Version: 5, ConsensusBlockID: blockID}})
	require.True(t, errors.Is(err, execerr.ErrVersionStaleOrOverflow))
}

func TestExecuteBlockHookInjection(t *testing.T) {
	genesis := trees.NewGenesis(10)
	hooks := testhook.NewRegistry()
	vmExec := vm.NewScriptedOutputs(nil)
	e, _ := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), hooks)

	hooks.Arm(testhook.VMExecuteBlock)
	_, err := e.ExecuteBlock(blkHash("b"), types.PreGenesisBlockID, nil, false)
	require.True(t, errors.Is(err, execerr.ErrInjectedFailure))

	_, err = e.ExecuteBlock(blkHash("b2"), types.PreGenesisBlockID, nil, false)
	require.NoError(t, err, "Trigger disarms after firing once")
}

func TestCommitBlocksHookInjection(t *testing.T) {
	genesis := trees.NewGenesis(10)
	hooks := testhook.NewRegistry()
	txnHash := blkHash("t")
	out := types.TransactionOutput{Status: types.Status{Kind: types.StatusKeep}}
	vmExec := vm.NewScriptedOutputs(map[types.Hash]types.TransactionOutput{txnHash: out})
	e, _ := newTestExecutor(t, genesis, vmExec, powbridge.NewStub(), hooks)

	blockID := blkHash("block")
	_, err := e.ExecuteBlock(blockID, types.PreGenesisBlockID, []types.Transaction{{Kind: types.TxUser, Payload: types.PayloadScript, Hash: txnHash}}, false)
	require.NoError(t, err)

	hooks.Arm(testhook.CommitBlocks)
	_, _, err = e.CommitBlocks([]types.Hash{blockID}, &store.LedgerInfoWithSignatures{LedgerInfo: store.LedgerInfo{Version: 0, ConsensusBlockID: blockID}})
	require.True(t, errors.Is(err, execerr.ErrInjectedFailure))
}
