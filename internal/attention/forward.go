package attention

import (
	"fmt"

	"github.com/tessellate-ml/flashattn/internal/rng"
	"github.com/tessellate-ml/flashattn/internal/tensor"
)

// UnpaddedRequest describes one variable-length attention forward call over
// already-packed inputs.
type UnpaddedRequest struct {
	// Q is [total_q, heads, head_dim]; K and V are [total_k, heads, head_dim].
	// All three must share one of the two reduced-precision float formats.
	Q, K, V *tensor.RawTensor

	// Cumulative sequence-length offset tables (Int32, length batch+1,
	// first element 0, last element the packed token count).
	CuSeqlensQ, CuSeqlensK *tensor.RawTensor

	// Longest single sequence on each side, in tokens.
	MaxSeqlenQ, MaxSeqlenK int

	Scale   float32
	Dropout float32
	Causal  bool

	// ReturnSoftmax requests the full attention-probability output in
	// addition to the always-produced log-sum-exp normalizer.
	ReturnSoftmax bool

	// ZeroTensors asks the primitive to zero-fill its outputs before
	// accumulating.
	ZeroTensors bool

	// IsTest marks an inference-only call. Dropout is forced to zero.
	IsTest bool

	Stream Stream
}

// Result holds the outputs of one forward call. Out and SoftmaxLSE are always
// populated, Softmax only when requested, and SeedOffset always carries the
// 2-element (seed, offset) pair a replay pass needs to reproduce the dropout
// mask.
type Result struct {
	Out        *tensor.RawTensor
	Softmax    *tensor.RawTensor
	SoftmaxLSE *tensor.RawTensor
	SeedOffset *tensor.RawTensor
}

// UnpaddedForward performs variable-length attention over packed inputs with
// explicit offset tables.
//
// The call proceeds through a fixed sequence: validate shapes, reserve RNG
// state, size outputs, query the primitive for its workspace size, allocate
// the scratch buffer, compute. Any failure is terminal for the call and all
// outputs must be treated as undefined.
func UnpaddedForward(prim Primitive, gen *rng.Generator, cfg Config, req *UnpaddedRequest) (*Result, error) {
	if prim == nil {
		return nil, ErrUnavailable
	}
	if err := validateUnpadded(req); err != nil {
		return nil, err
	}

	q := req.Q
	heads := q.Shape()[1]
	headDim := q.Shape()[2]
	batch := req.CuSeqlensQ.NumElements() - 1

	// Inference-only calls never apply stochastic masking, whatever the
	// caller passed.
	dropout := req.Dropout
	if req.IsTest {
		dropout = 0
	}

	// Determinism trades work-splitting for bitwise-reproducible results.
	numSplits := 0
	if cfg.Deterministic {
		numSplits = 1
	}

	// Reserve dropout draws before any device work and persist the pair
	// immediately so a later replay can regenerate the identical mask.
	seed, offset := gen.Reserve(uint64(batch*heads) * drawsPerHead)
	seedOffset, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int64, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("allocate seed/offset output: %w", err)
	}
	state := seedOffset.AsInt64()
	state[0] = int64(seed)
	state[1] = int64(offset)

	softmaxLSE, err := tensor.NewRaw(
		tensor.Shape{batch, heads, lseSeqlen(req.MaxSeqlenQ)},
		tensor.Float32, q.Device())
	if err != nil {
		return nil, fmt.Errorf("allocate softmax normalizer: %w", err)
	}

	var softmax *tensor.RawTensor
	if req.ReturnSoftmax {
		softmax, err = tensor.NewRaw(
			tensor.Shape{batch, heads, lseSeqlen(req.MaxSeqlenQ), softmaxSeqlenK(req.MaxSeqlenK, headDim)},
			q.DType(), q.Device())
		if err != nil {
			return nil, fmt.Errorf("allocate attention probabilities: %w", err)
		}
	}

	out, err := tensor.NewRaw(q.Shape(), q.DType(), q.Device())
	if err != nil {
		return nil, fmt.Errorf("allocate output: %w", err)
	}

	params := &Params{
		Q:          q,
		K:          req.K,
		V:          req.V,
		CuSeqlensQ: req.CuSeqlensQ,
		CuSeqlensK: req.CuSeqlensK,

		TotalQ:     q.Shape()[0],
		TotalK:     req.K.Shape()[0],
		Batch:      batch,
		Heads:      heads,
		HeadDim:    headDim,
		MaxSeqlenQ: req.MaxSeqlenQ,
		MaxSeqlenK: req.MaxSeqlenK,

		Dropout:     dropout,
		Scale:       req.Scale,
		ZeroTensors: req.ZeroTensors,
		Causal:      req.Causal,
		BF16:        q.DType() == tensor.BFloat16,
		NumSplits:   numSplits,

		SoftmaxLSE:    softmaxLSE,
		Softmax:       softmax,
		ReturnSoftmax: req.ReturnSoftmax,

		Stream: req.Stream,
		Seed:   seed,
		Offset: offset,
	}

	// Phase 1: dry run with nil output and workspace buffers. The primitive
	// only computes the scratch size it will need; that size depends on its
	// internal algorithm selection and cannot be derived here.
	workspaceBytes, err := prim.EstimateWorkspace(params)
	if err != nil {
		return nil, &ExternalError{Phase: PhaseSizing, Err: err}
	}

	if workspaceBytes > 0 {
		workspace, werr := tensor.NewRaw(tensor.Shape{int(workspaceBytes)}, tensor.Uint8, q.Device())
		if werr != nil {
			return nil, fmt.Errorf("allocate %d-byte workspace: %w", workspaceBytes, werr)
		}
		// Scratch lives for this call only.
		defer workspace.Release()
		params.Workspace = workspace
	}
	params.WorkspaceBytes = workspaceBytes

	// Phase 2: the real computation, on the same stream, gated host-side on
	// the sizing result.
	params.Out = out
	if err := prim.Compute(params); err != nil {
		return nil, &ExternalError{Phase: PhaseCompute, Err: err}
	}

	return &Result{
		Out:        out,
		Softmax:    softmax,
		SoftmaxLSE: softmaxLSE,
		SeedOffset: seedOffset,
	}, nil
}

func validateUnpadded(req *UnpaddedRequest) error {
	if req.Q == nil || req.K == nil || req.V == nil {
		return fmt.Errorf("%w: query, key and value are required", ErrInvalidShape)
	}

	qs, ks, vs := req.Q.Shape(), req.K.Shape(), req.V.Shape()
	if len(qs) != 3 {
		return fmt.Errorf("%w: query must be [total_tokens, heads, head_dim], got %dD %v",
			ErrInvalidShape, len(qs), qs)
	}
	if len(ks) != 3 || len(vs) != 3 {
		return fmt.Errorf("%w: key and value must be [total_tokens, heads, head_dim], got %v and %v",
			ErrInvalidShape, ks, vs)
	}
	if !ks.Equal(vs) {
		return fmt.Errorf("%w: key shape %v and value shape %v differ", ErrInvalidShape, ks, vs)
	}
	if qs[2] != ks[2] {
		return fmt.Errorf("%w: query head_dim %d != key head_dim %d", ErrInvalidShape, qs[2], ks[2])
	}

	if !req.Q.DType().IsReducedFloat() {
		return fmt.Errorf("%w: %s (want float16 or bfloat16)", ErrDType, req.Q.DType())
	}
	if req.K.DType() != req.Q.DType() || req.V.DType() != req.Q.DType() {
		return fmt.Errorf("%w: q/k/v element types differ (%s, %s, %s)",
			ErrDType, req.Q.DType(), req.K.DType(), req.V.DType())
	}

	if req.MaxSeqlenQ <= 0 || req.MaxSeqlenK <= 0 {
		return fmt.Errorf("%w: max sequence lengths must be positive, got q=%d k=%d",
			ErrInvalidShape, req.MaxSeqlenQ, req.MaxSeqlenK)
	}

	if err := validateOffsets("cu_seqlens_q", req.CuSeqlensQ, qs[0]); err != nil {
		return err
	}
	if err := validateOffsets("cu_seqlens_k", req.CuSeqlensK, ks[0]); err != nil {
		return err
	}
	if req.CuSeqlensQ.NumElements() != req.CuSeqlensK.NumElements() {
		return fmt.Errorf("%w: cu_seqlens_q has %d entries but cu_seqlens_k has %d",
			ErrInvalidShape, req.CuSeqlensQ.NumElements(), req.CuSeqlensK.NumElements())
	}
	return nil
}

// validateOffsets checks that a cumulative offset table partitions the packed
// token dimension: length >= 2, first element 0, non-decreasing, last element
// equal to the packed token count.
func validateOffsets(name string, cu *tensor.RawTensor, total int) error {
	if cu == nil {
		return fmt.Errorf("%w: %s is required", ErrInvalidShape, name)
	}
	if len(cu.Shape()) != 1 || cu.NumElements() < 2 {
		return fmt.Errorf("%w: %s must be 1D with at least 2 entries, got %v",
			ErrInvalidShape, name, cu.Shape())
	}
	if cu.DType() != tensor.Int32 {
		return fmt.Errorf("%w: %s must be int32, got %s", ErrDType, name, cu.DType())
	}

	offsets := cu.AsInt32()
	if offsets[0] != 0 {
		return fmt.Errorf("%w: %s must start at 0, got %d", ErrInvalidShape, name, offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: %s decreases at index %d (%d -> %d)",
				ErrInvalidShape, name, i, offsets[i-1], offsets[i])
		}
	}
	if int(offsets[len(offsets)-1]) != total {
		return fmt.Errorf("%w: %s ends at %d but the packed token count is %d",
			ErrInvalidShape, name, offsets[len(offsets)-1], total)
	}
	return nil
}
