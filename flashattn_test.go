package flashattn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ml/flashattn/internal/attention"
	"github.com/tessellate-ml/flashattn/internal/tensor"
)

func batchedReq(t *testing.T) *BatchedRequest {
	t.Helper()
	mk := func() *tensor.RawTensor {
		r, err := tensor.NewRaw(tensor.Shape{2, 4, 2, 8}, tensor.Float16, tensor.CPU)
		require.NoError(t, err)
		return r
	}
	return &BatchedRequest{Q: mk(), K: mk(), V: mk(), IsTest: true}
}

// TestRegistryDispatch drives the registered-operation surface end to end.
// Ordering matters: the process-wide registry is package state, so the
// unavailable path is checked before anything registers.
func TestRegistryDispatch(t *testing.T) {
	gen := NewGenerator(7)

	_, err := Forward(gen, DefaultConfig(), batchedReq(t))
	assert.ErrorIs(t, err, ErrUnavailable, "no backend registered yet")

	stub := &attention.StubPrimitive{}
	require.NoError(t, RegisterPrimitive(FlashAttn, stub))
	require.NoError(t, RegisterPrimitive(FlashAttnUnpadded, stub))
	assert.ElementsMatch(t, []string{FlashAttn, FlashAttnUnpadded}, Ops())

	res, err := Forward(gen, DefaultConfig(), batchedReq(t))
	require.NoError(t, err)
	assert.True(t, tensor.Shape{2, 4, 2, 8}.Equal(res.Out.Shape()))

	q, err := tensor.NewRaw(tensor.Shape{8, 2, 8}, tensor.Float16, tensor.CPU)
	require.NoError(t, err)
	k, err := tensor.NewRaw(tensor.Shape{8, 2, 8}, tensor.Float16, tensor.CPU)
	require.NoError(t, err)
	v, err := tensor.NewRaw(tensor.Shape{8, 2, 8}, tensor.Float16, tensor.CPU)
	require.NoError(t, err)
	cu, err := tensor.FromInt32([]int32{0, 4, 8}, tensor.CPU)
	require.NoError(t, err)

	res, err = ForwardUnpadded(gen, DefaultConfig(), &UnpaddedRequest{
		Q: q, K: k, V: v,
		CuSeqlensQ: cu, CuSeqlensK: cu,
		MaxSeqlenQ: 4, MaxSeqlenK: 4,
		Scale:  0.35,
		IsTest: true,
	})
	require.NoError(t, err)
	assert.True(t, tensor.Shape{2, 2, 16}.Equal(res.SoftmaxLSE.Shape()))
}

func TestDirectForwardBypassesRegistry(t *testing.T) {
	stub := &attention.StubPrimitive{WorkspaceSize: 256}
	res, err := BatchedForward(stub, NewGenerator(1), DefaultConfig(), batchedReq(t))
	require.NoError(t, err)
	assert.Equal(t, 2, res.SeedOffset.NumElements())
	assert.Equal(t, uint64(256), stub.ComputeCalls[0].WorkspaceBytes)
}
