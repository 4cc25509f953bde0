package attention

import (
	"fmt"
	"math"

	"github.com/tessellate-ml/flashattn/internal/rng"
	"github.com/tessellate-ml/flashattn/internal/tensor"
)

// BatchedRequest describes one attention forward call over fixed-length
// batched inputs.
type BatchedRequest struct {
	// Q is [batch, seqlen_q, heads, head_dim]; K and V are
	// [batch, seqlen_k, heads, head_dim], all in one of the two
	// reduced-precision float formats.
	Q, K, V *tensor.RawTensor

	Dropout       float32
	Causal        bool
	ReturnSoftmax bool
	ZeroTensors   bool
	IsTest        bool

	Stream Stream
}

// BatchedForward adapts fixed-length batched inputs to the packed layout and
// delegates to UnpaddedForward.
//
// Every sequence in this entry point shares one length per side, so the
// offset tables are synthesized as arithmetic progressions and the batch and
// sequence dimensions are flattened by a zero-copy view. The scale factor is
// derived as 1/sqrt(head_dim).
func BatchedForward(prim Primitive, gen *rng.Generator, cfg Config, req *BatchedRequest) (*Result, error) {
	if prim == nil {
		return nil, ErrUnavailable
	}
	if req.Q == nil || req.K == nil || req.V == nil {
		return nil, fmt.Errorf("%w: query, key and value are required", ErrInvalidShape)
	}

	qs := req.Q.Shape()
	if len(qs) != 4 {
		return nil, fmt.Errorf("%w: query must be [batch, seqlen, heads, head_dim], got %dD %v",
			ErrInvalidShape, len(qs), qs)
	}
	ks := req.K.Shape()
	if len(ks) != 4 {
		return nil, fmt.Errorf("%w: key must be [batch, seqlen, heads, head_dim], got %dD %v",
			ErrInvalidShape, len(ks), ks)
	}

	batch := qs[0]
	seqlenQ := qs[1]
	heads := qs[2]
	headDim := qs[3]
	seqlenK := ks[1]

	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	// Flatten [batch, seqlen, heads, head_dim] into the packed
	// [batch*seqlen, heads, head_dim] layout. Pure stride reinterpretation,
	// no copy; element ordering is already packed because every sequence in
	// the batch has the same length here.
	packedQ, err := req.Q.View(tensor.Shape{batch * seqlenQ, heads, headDim})
	if err != nil {
		return nil, fmt.Errorf("%w: flatten query: %v", ErrInvalidShape, err)
	}
	packedK, err := req.K.View(tensor.Shape{batch * seqlenK, ks[2], ks[3]})
	if err != nil {
		return nil, fmt.Errorf("%w: flatten key: %v", ErrInvalidShape, err)
	}
	packedV, err := req.V.View(tensor.Shape{batch * seqlenK, ks[2], ks[3]})
	if err != nil {
		return nil, fmt.Errorf("%w: flatten value: %v", ErrInvalidShape, err)
	}

	cuSeqlensQ, err := arithmeticOffsets(batch, seqlenQ, req.Q.Device())
	if err != nil {
		return nil, fmt.Errorf("synthesize cu_seqlens_q: %w", err)
	}
	cuSeqlensK, err := arithmeticOffsets(batch, seqlenK, req.K.Device())
	if err != nil {
		return nil, fmt.Errorf("synthesize cu_seqlens_k: %w", err)
	}

	res, err := UnpaddedForward(prim, gen, cfg, &UnpaddedRequest{
		Q:             packedQ,
		K:             packedK,
		V:             packedV,
		CuSeqlensQ:    cuSeqlensQ,
		CuSeqlensK:    cuSeqlensK,
		MaxSeqlenQ:    seqlenQ,
		MaxSeqlenK:    seqlenK,
		Scale:         scale,
		Dropout:       req.Dropout,
		Causal:        req.Causal,
		ReturnSoftmax: req.ReturnSoftmax,
		ZeroTensors:   req.ZeroTensors,
		IsTest:        req.IsTest,
		Stream:        req.Stream,
	})
	if err != nil {
		return nil, err
	}

	// Restore the caller's batched layout on the primary output.
	batched, err := res.Out.View(qs)
	if err != nil {
		return nil, fmt.Errorf("unflatten output: %w", err)
	}
	res.Out = batched
	return res, nil
}

// arithmeticOffsets builds the offset table 0, s, 2s, ..., batch*s for the
// fixed-length entry point.
func arithmeticOffsets(batch, seqlen int, device tensor.Device) (*tensor.RawTensor, error) {
	offsets := make([]int32, batch+1)
	for i := range offsets {
		offsets[i] = int32(i * seqlen)
	}
	return tensor.FromInt32(offsets, device)
}
