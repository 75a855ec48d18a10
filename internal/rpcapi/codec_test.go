package rpcapi_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/chainbft/blockexec/core/types"
	_ "github.com/chainbft/blockexec/internal/rpcapi"
)

func TestJSONCodecRegisteredUnderJSONSubtype(t *testing.T) {
	codec := encoding.GetCodec("json")
	require.NotNil(t, codec, "importing rpcapi must register the json codec via its init()")

	want := types.Hash{1, 2, 3}
	data, err := codec.Marshal(want)
	require.NoError(t, err)

	var got types.Hash
	require.NoError(t, codec.Unmarshal(data, &got))
	require.Equal(t, want, got)
}
