package attention

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ml/flashattn/internal/rng"
	"github.com/tessellate-ml/flashattn/internal/tensor"
)

func newTensor(t *testing.T, shape tensor.Shape, dt tensor.DataType) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, dt, tensor.CPU)
	require.NoError(t, err)
	return r
}

func newOffsets(t *testing.T, vals ...int32) *tensor.RawTensor {
	t.Helper()
	cu, err := tensor.FromInt32(vals, tensor.CPU)
	require.NoError(t, err)
	return cu
}

// packedRequest builds a valid unpadded request: batch=2, seqlen=4, heads=2,
// head_dim=8, float16.
func packedRequest(t *testing.T) *UnpaddedRequest {
	t.Helper()
	return &UnpaddedRequest{
		Q:          newTensor(t, tensor.Shape{8, 2, 8}, tensor.Float16),
		K:          newTensor(t, tensor.Shape{8, 2, 8}, tensor.Float16),
		V:          newTensor(t, tensor.Shape{8, 2, 8}, tensor.Float16),
		CuSeqlensQ: newOffsets(t, 0, 4, 8),
		CuSeqlensK: newOffsets(t, 0, 4, 8),
		MaxSeqlenQ: 4,
		MaxSeqlenK: 4,
		Scale:      0.5,
	}
}

func TestUnpaddedForwardHappyPath(t *testing.T) {
	stub := &StubPrimitive{}
	gen := rng.New(1)

	res, err := UnpaddedForward(stub, gen, DefaultConfig(), packedRequest(t))
	require.NoError(t, err)

	assert.True(t, tensor.Shape{8, 2, 8}.Equal(res.Out.Shape()), "output keeps the packed query shape")
	assert.Equal(t, tensor.Float16, res.Out.DType())
	assert.True(t, tensor.Shape{2, 2, 16}.Equal(res.SoftmaxLSE.Shape()), "normalizer rounds seqlen 4 up to 16")
	assert.Equal(t, tensor.Float32, res.SoftmaxLSE.DType())
	assert.Nil(t, res.Softmax, "probabilities not requested")
	assert.Equal(t, 2, res.SeedOffset.NumElements())

	require.Len(t, stub.SizingCalls, 1)
	require.Len(t, stub.ComputeCalls, 1)
}

func TestUnpaddedForwardRejectsNilPrimitive(t *testing.T) {
	_, err := UnpaddedForward(nil, rng.New(1), DefaultConfig(), packedRequest(t))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUnpaddedForwardRejectsWrongRank(t *testing.T) {
	req := packedRequest(t)
	req.Q = newTensor(t, tensor.Shape{2, 4, 2, 8}, tensor.Float16)

	_, err := UnpaddedForward(&StubPrimitive{}, rng.New(1), DefaultConfig(), req)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestUnpaddedForwardRejectsBadDTypes(t *testing.T) {
	req := packedRequest(t)
	req.Q = newTensor(t, tensor.Shape{8, 2, 8}, tensor.Float32)
	req.K = newTensor(t, tensor.Shape{8, 2, 8}, tensor.Float32)
	req.V = newTensor(t, tensor.Shape{8, 2, 8}, tensor.Float32)

	_, err := UnpaddedForward(&StubPrimitive{}, rng.New(1), DefaultConfig(), req)
	assert.ErrorIs(t, err, ErrDType)

	req = packedRequest(t)
	req.K = newTensor(t, tensor.Shape{8, 2, 8}, tensor.BFloat16)
	req.V = newTensor(t, tensor.Shape{8, 2, 8}, tensor.BFloat16)

	_, err = UnpaddedForward(&StubPrimitive{}, rng.New(1), DefaultConfig(), req)
	assert.ErrorIs(t, err, ErrDType)
}

func TestUnpaddedForwardRejectsBadOffsets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UnpaddedRequest, *testing.T)
	}{
		{"missing table", func(r *UnpaddedRequest, t *testing.T) { r.CuSeqlensQ = nil }},
		{"nonzero first", func(r *UnpaddedRequest, t *testing.T) { r.CuSeqlensQ = newOffsets(t, 1, 4, 8) }},
		{"decreasing", func(r *UnpaddedRequest, t *testing.T) { r.CuSeqlensQ = newOffsets(t, 0, 5, 4) }},
		{"wrong total", func(r *UnpaddedRequest, t *testing.T) { r.CuSeqlensQ = newOffsets(t, 0, 4, 7) }},
		{"length mismatch", func(r *UnpaddedRequest, t *testing.T) { r.CuSeqlensK = newOffsets(t, 0, 3, 6, 8) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := packedRequest(t)
			tt.mutate(req, t)
			_, err := UnpaddedForward(&StubPrimitive{}, rng.New(1), DefaultConfig(), req)
			assert.ErrorIs(t, err, ErrInvalidShape)
		})
	}
}

func TestIsTestForcesZeroDropout(t *testing.T) {
	stub := &StubPrimitive{}
	gen := rng.New(1)

	req := packedRequest(t)
	req.Dropout = 0.37
	req.IsTest = true

	res, err := UnpaddedForward(stub, gen, DefaultConfig(), req)
	require.NoError(t, err)

	require.Len(t, stub.ComputeCalls, 1)
	assert.Zero(t, stub.ComputeCalls[0].Dropout)
	// The stub writes a marker derived from the effective dropout: an
	// inference-mode call must be indistinguishable from dropout=0.
	assert.Equal(t, dropoutMarker(0), res.Out.AsUint16()[0])

	// Training-mode calls keep the caller's dropout.
	stub = &StubPrimitive{}
	req = packedRequest(t)
	req.Dropout = 0.37
	res, err = UnpaddedForward(stub, rng.New(1), DefaultConfig(), req)
	require.NoError(t, err)
	assert.InDelta(t, 0.37, stub.ComputeCalls[0].Dropout, 1e-6)
	assert.Equal(t, dropoutMarker(0.37), res.Out.AsUint16()[0])
}

func TestRNGReservationPerCall(t *testing.T) {
	gen := rng.New(1234)
	stub := &StubPrimitive{}

	// batch=2, heads=2: exactly 2*2*32 draws per call.
	res1, err := UnpaddedForward(stub, gen, DefaultConfig(), packedRequest(t))
	require.NoError(t, err)
	res2, err := UnpaddedForward(stub, gen, DefaultConfig(), packedRequest(t))
	require.NoError(t, err)

	state1 := res1.SeedOffset.AsInt64()
	state2 := res2.SeedOffset.AsInt64()

	assert.Equal(t, int64(1234), state1[0])
	assert.Equal(t, int64(0), state1[1])
	assert.Equal(t, int64(1234), state2[0])
	assert.Equal(t, int64(2*2*32), state2[1], "second call starts where the first reservation ended")

	_, offset := gen.State()
	assert.Equal(t, uint64(2*2*32*2), offset)

	// The pair handed to the primitive matches the persisted pair.
	require.Len(t, stub.ComputeCalls, 2)
	assert.Equal(t, uint64(state1[1]), stub.ComputeCalls[0].Offset)
	assert.Equal(t, uint64(state2[1]), stub.ComputeCalls[1].Offset)
}

func TestDeterminismForcesSingleSplit(t *testing.T) {
	stub := &StubPrimitive{}
	_, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), packedRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 0, stub.ComputeCalls[0].NumSplits, "primitive chooses splits by default")

	stub = &StubPrimitive{}
	_, err = UnpaddedForward(stub, rng.New(1), Config{Deterministic: true}, packedRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 1, stub.ComputeCalls[0].NumSplits, "determinism forces a single split")
	assert.Equal(t, 1, stub.SizingCalls[0].NumSplits, "sizing phase sees the same hint")
}

func TestTwoPhaseProtocol(t *testing.T) {
	stub := &StubPrimitive{WorkspaceSize: 4096}
	_, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), packedRequest(t))
	require.NoError(t, err)

	require.Len(t, stub.SizingCalls, 1)
	require.Len(t, stub.ComputeCalls, 1)

	sizing := stub.SizingCalls[0]
	assert.Nil(t, sizing.Out, "sizing phase runs with a nil output buffer")
	assert.Nil(t, sizing.Workspace, "sizing phase runs with a nil workspace")

	compute := stub.ComputeCalls[0]
	require.NotNil(t, compute.Workspace)
	assert.Equal(t, 4096, compute.Workspace.ByteSize())
	assert.Equal(t, uint64(4096), compute.WorkspaceBytes)
	assert.NotNil(t, compute.Out)
}

func TestZeroWorkspaceSkipsAllocation(t *testing.T) {
	stub := &StubPrimitive{WorkspaceSize: 0}
	_, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), packedRequest(t))
	require.NoError(t, err)

	require.Len(t, stub.ComputeCalls, 1)
	assert.Nil(t, stub.ComputeCalls[0].Workspace, "zero-size workspace stays nil in phase 2")
	assert.Zero(t, stub.ComputeCalls[0].WorkspaceBytes)
}

func TestSizingFailureSkipsCompute(t *testing.T) {
	stub := &StubPrimitive{SizingErr: errors.New("device out of memory")}
	_, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), packedRequest(t))

	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, PhaseSizing, extErr.Phase)
	assert.Contains(t, extErr.Error(), "device out of memory", "carries the primitive's own message")
	assert.Empty(t, stub.ComputeCalls, "no compute phase after a sizing failure")
}

func TestComputeFailureSurfacesAsExternal(t *testing.T) {
	cause := errors.New("illegal memory access")
	stub := &StubPrimitive{ComputeErr: cause}
	_, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), packedRequest(t))

	var extErr *ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, PhaseCompute, extErr.Phase)
	assert.ErrorIs(t, err, cause)
}

func TestReturnSoftmaxAllocatesProbabilities(t *testing.T) {
	stub := &StubPrimitive{}
	req := packedRequest(t)
	req.ReturnSoftmax = true

	res, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), req)
	require.NoError(t, err)

	require.NotNil(t, res.Softmax)
	// head_dim=8 <= 64 and seqlen_k=4 <= 128: the small-size shortcut pads
	// the key dimension to 128.
	assert.True(t, tensor.Shape{2, 2, 16, 128}.Equal(res.Softmax.Shape()))
	assert.Equal(t, tensor.Float16, res.Softmax.DType())
}

func TestVariableLengthBatch(t *testing.T) {
	// Genuinely ragged batch: lengths 3 and 5 on the query side, 2 and 6 on
	// the key side.
	stub := &StubPrimitive{}
	req := &UnpaddedRequest{
		Q:          newTensor(t, tensor.Shape{8, 4, 32}, tensor.BFloat16),
		K:          newTensor(t, tensor.Shape{8, 4, 32}, tensor.BFloat16),
		V:          newTensor(t, tensor.Shape{8, 4, 32}, tensor.BFloat16),
		CuSeqlensQ: newOffsets(t, 0, 3, 8),
		CuSeqlensK: newOffsets(t, 0, 2, 8),
		MaxSeqlenQ: 5,
		MaxSeqlenK: 6,
		Scale:      0.176776,
	}

	res, err := UnpaddedForward(stub, rng.New(1), DefaultConfig(), req)
	require.NoError(t, err)

	assert.True(t, tensor.Shape{2, 4, 16}.Equal(res.SoftmaxLSE.Shape()))
	compute := stub.ComputeCalls[0]
	assert.Equal(t, 2, compute.Batch, "batch derived from offset table length")
	assert.Equal(t, 8, compute.TotalQ)
	assert.Equal(t, 8, compute.TotalK)
	assert.True(t, compute.BF16, "bfloat16 inputs set the format flag")
}
