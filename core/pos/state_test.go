package pos_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainbft/blockexec/core/pos"
	"github.com/chainbft/blockexec/core/types"
)

func node(s string) pos.NodeID { return types.HashBytes([]byte(s)) }

func TestRegisterNodeRejectsDuplicate(t *testing.T) {
	s := pos.NewGenesis(1)
	alice := node("alice")
	require.NoError(t, s.RegisterNode(alice))
	require.True(t, s.IsRegistered(alice))

	err := s.RegisterNode(alice)
	require.Error(t, err)
	require.True(t, errors.Is(err, pos.ErrAlreadyRegistered))
}

func TestElectionRequiresRegisteredNotRetired(t *testing.T) {
	s := pos.NewGenesis(10)
	alice := node("alice")

	err := s.NewNodeElected(alice)
	require.True(t, errors.Is(err, pos.ErrNotRegistered))

	require.NoError(t, s.RegisterNode(alice))
	require.NoError(t, s.NewNodeElected(alice))
	require.True(t, s.IsElected(alice))

	require.NoError(t, s.RetireNode(alice))
	require.True(t, s.IsRetired(alice))

	err = s.NewNodeElected(alice)
	require.True(t, errors.Is(err, pos.ErrAlreadyRetired), "a retired node cannot be (re-)elected")
}

func TestRetireNodeRejectsDoubleRetire(t *testing.T) {
	s := pos.NewGenesis(10)
	alice := node("alice")
	require.NoError(t, s.RegisterNode(alice))
	require.NoError(t, s.RetireNode(alice))

	err := s.RetireNode(alice)
	require.True(t, errors.Is(err, pos.ErrAlreadyRetired))
}

func TestUpdateVotingPowerRequiresRegistration(t *testing.T) {
	s := pos.NewGenesis(10)
	alice := node("alice")

	err := s.UpdateVotingPower(alice, 100)
	require.True(t, errors.Is(err, pos.ErrNotRegistered))

	require.NoError(t, s.RegisterNode(alice))
	require.NoError(t, s.UpdateVotingPower(alice, 100))
	require.Equal(t, uint64(100), s.VotingPower(alice).Uint64())
}

func TestCloneIsIndependent(t *testing.T) {
	s := pos.NewGenesis(10)
	alice := node("alice")
	require.NoError(t, s.RegisterNode(alice))
	require.NoError(t, s.UpdateVotingPower(alice, 5))

	clone := s.Clone()
	bob := node("bob")
	require.NoError(t, clone.RegisterNode(bob))
	require.NoError(t, clone.UpdateVotingPower(alice, 50))

	require.False(t, s.IsRegistered(bob), "P8: mutating a clone must never affect the parent state")
	require.Equal(t, uint64(5), s.VotingPower(alice).Uint64())
	require.Equal(t, uint64(50), clone.VotingPower(alice).Uint64())
}

func TestNextViewClosesEpochAtTermLength(t *testing.T) {
	s := pos.NewGenesis(2)
	alice, bob := node("alice"), node("bob")
	require.NoError(t, s.RegisterNode(alice))
	require.NoError(t, s.RegisterNode(bob))
	require.NoError(t, s.UpdateVotingPower(alice, 10))
	require.NoError(t, s.UpdateVotingPower(bob, 20))

	s.SetPivotDecision(types.PivotBlockDecision{BlockHash: types.HashBytes([]byte("pivot")), Height: 7})

	require.NoError(t, s.NewNodeElected(alice))
	_, _, ok := s.NextView()
	require.False(t, ok, "epoch must not close before termVotes reaches termLength")

	require.NoError(t, s.NewNodeElected(bob))
	epochState, seed, ok := s.NextView()
	require.True(t, ok)
	require.Equal(t, uint64(1), epochState.EpochNumber)
	require.Equal(t, uint64(1), s.Epoch())
	require.Equal(t, types.HashBytes([]byte("pivot")).Bytes(), seed, "P10: term seed is the closing pivot's block hash")
	require.Equal(t, seed, epochState.VRFSeed)
	require.Equal(t, uint64(30), epochState.Verifier.TotalVotingPower())
}

func TestNextViewExcludesRetiredFromVerifier(t *testing.T) {
	s := pos.NewGenesis(1)
	alice, bob := node("alice"), node("bob")
	require.NoError(t, s.RegisterNode(alice))
	require.NoError(t, s.RegisterNode(bob))
	require.NoError(t, s.UpdateVotingPower(alice, 10))
	require.NoError(t, s.UpdateVotingPower(bob, 20))
	require.NoError(t, s.RetireNode(bob))

	require.NoError(t, s.NewNodeElected(alice))
	epochState, _, ok := s.NextView()
	require.True(t, ok)
	_, present := epochState.Verifier.Power[bob]
	require.False(t, present, "a retired validator must not appear in the closing epoch's verifier")
	require.Equal(t, uint64(10), epochState.Verifier.TotalVotingPower())
}

func TestCatchUpModeDefaultsOnGenesis(t *testing.T) {
	s := pos.NewGenesis(1)
	require.True(t, s.CatchUpMode())
	s.SetCatchUpMode(false)
	require.False(t, s.CatchUpMode())
}
