package attention

import "github.com/tessellate-ml/flashattn/internal/tensor"

// Stream is an opaque device execution-stream handle. The core issues both
// invocation phases on the same stream and never synchronizes it; overall
// stream synchronization belongs to the caller.
type Stream uintptr

// Params is the full call convention of the attention primitive. One Params
// value is built per forward call and passed to both invocation phases; the
// compute phase sees the same shape and behavior scalars the sizing phase saw,
// plus the real output and workspace buffers.
type Params struct {
	// Inputs (caller-owned, read-only).
	Q *tensor.RawTensor // [total_q, heads, head_dim]
	K *tensor.RawTensor // [total_k, heads, head_dim]
	V *tensor.RawTensor // [total_k, heads, head_dim]

	// Cumulative sequence-length offset tables, Int32, length batch+1.
	CuSeqlensQ *tensor.RawTensor
	CuSeqlensK *tensor.RawTensor

	// Shape scalars.
	TotalQ     int
	TotalK     int
	Batch      int
	Heads      int
	HeadDim    int
	MaxSeqlenQ int
	MaxSeqlenK int

	// Behavior scalars.
	Dropout     float32
	Scale       float32
	ZeroTensors bool
	Causal      bool
	BF16        bool // element format: true for bfloat16, false for float16
	NumSplits   int  // 0 = primitive chooses; 1 = forced single split

	// Outputs. Out is nil during the sizing phase.
	Out           *tensor.RawTensor // same shape/dtype as Q
	SoftmaxLSE    *tensor.RawTensor // [batch, heads, rounded_seqlen_q] float32
	Softmax       *tensor.RawTensor // [batch, heads, rounded_q, rounded_k]; nil unless requested
	ReturnSoftmax bool

	// Workspace scratch. Nil during the sizing phase and when the sizing
	// phase reports zero bytes. WorkspaceBytes carries the sizing result
	// into the compute phase.
	Workspace      *tensor.RawTensor
	WorkspaceBytes uint64

	// Execution context.
	Stream Stream

	// Reproducible dropout state reserved from the generator.
	Seed   uint64
	Offset uint64
}

// Primitive is the black-box variable-length attention compute capability.
// Implementations are accelerated backends; the core depends only on this
// interface and never on a concrete backend.
//
// EstimateWorkspace is the sizing phase: a dry run with nil output and
// workspace buffers that returns the scratch byte count the compute phase
// will need. The size depends on the primitive's internal algorithm choice
// and is not independently computable by the caller, so this call is the
// sole source of truth.
//
// Compute performs the real computation. It must be invoked with the same
// Params the sizing phase saw, with Out/SoftmaxLSE (and Softmax when
// requested) allocated and Workspace populated when WorkspaceBytes > 0.
type Primitive interface {
	EstimateWorkspace(p *Params) (uint64, error)
	Compute(p *Params) error
}
