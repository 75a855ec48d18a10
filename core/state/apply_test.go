package state_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/core/state"
	"github.com/chainbft/blockexec/core/types"
)

type fixedStore struct {
	accounts map[types.AccountAddress]*types.AccountState
}

func (f fixedStore) AccountState(addr types.AccountAddress) (*types.AccountState, bool) {
	a, ok := f.accounts[addr]
	return a, ok
}

func addr(b byte) types.AccountAddress {
	var a types.AccountAddress
	a[len(a)-1] = b
	return a
}

func TestApplyRejectsBlindWriteForScriptTxn(t *testing.T) {
	ws := types.WriteSet{
		{Path: types.AccessPath{Address: addr(1), Path: []byte("balance")}, Op: types.WriteOp{Kind: types.WriteOpValue, Value: []byte("1")}},
	}
	_, err := state.Apply(types.Transaction{Kind: types.TxUser, Payload: types.PayloadScript}, fixedStore{accounts: map[types.AccountAddress]*types.AccountState{}}, ws)
	require.Error(t, err)
	require.True(t, errors.Is(err, state.ErrReadSetViolation))
}

func TestApplyAllowsBlindWriteForWriteSetPayload(t *testing.T) {
	ws := types.WriteSet{
		{Path: types.AccessPath{Address: addr(1), Path: []byte("balance")}, Op: types.WriteOp{Kind: types.WriteOpValue, Value: []byte("1")}},
	}
	touched, err := state.Apply(types.Transaction{Kind: types.TxUser, Payload: types.PayloadWriteSet}, fixedStore{accounts: map[types.AccountAddress]*types.AccountState{}}, ws)
	require.NoError(t, err)
	require.Contains(t, touched, addr(1))
}

func TestApplyDoesNotMutateOriginalSnapshot(t *testing.T) {
	original := types.NewAccountState()
	original.Set([]byte("balance"), []byte("100"))
	store := fixedStore{accounts: map[types.AccountAddress]*types.AccountState{addr(1): original}}

	ws := types.WriteSet{
		{Path: types.AccessPath{Address: addr(1), Path: []byte("balance")}, Op: types.WriteOp{Kind: types.WriteOpValue, Value: []byte("200")}},
	}
	_, err := state.Apply(types.Transaction{Kind: types.TxGenesis}, store, ws)
	require.NoError(t, err)

	v, _ := original.Get([]byte("balance"))
	require.Equal(t, []byte("100"), v, "Apply must clone before mutating; the caller's snapshot is immutable")
}

func TestApplyDeletion(t *testing.T) {
	original := types.NewAccountState()
	original.Set([]byte("balance"), []byte("100"))
	store := fixedStore{accounts: map[types.AccountAddress]*types.AccountState{addr(1): original}}

	ws := types.WriteSet{
		{Path: types.AccessPath{Address: addr(1), Path: []byte("balance")}, Op: types.WriteOp{Kind: types.WriteOpDeletion}},
	}
	touched, err := state.Apply(types.Transaction{Kind: types.TxGenesis}, store, ws)
	require.NoError(t, err)
	require.NotNil(t, touched[addr(1)])
	require.NotContains(t, string(touched[addr(1)]), "balance")
}

func TestApplyUntouchedAccountsOmitted(t *testing.T) {
	store := fixedStore{accounts: map[types.AccountAddress]*types.AccountState{
		addr(1): types.NewAccountState(),
		addr(2): types.NewAccountState(),
	}}
	ws := types.WriteSet{
		{Path: types.AccessPath{Address: addr(1), Path: []byte("k")}, Op: types.WriteOp{Kind: types.WriteOpValue, Value: []byte("v")}},
	}
	touched, err := state.Apply(types.Transaction{Kind: types.TxGenesis}, store, ws)
	require.NoError(t, err)
	require.Len(t, touched, 1)
	require.Contains(t, touched, addr(1))
}
