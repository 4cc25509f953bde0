package attention

// Block-size constants tied to the primitive's hardware tiling. Diagnostic
// output dimensions are padded up to these boundaries; trailing padding is
// implementation-defined garbage.
const (
	// lseBlock is the rounding granularity of the softmax-normalizer
	// (log-sum-exp) query dimension.
	lseBlock = 16

	// Key-dimension tile sizes for the full attention-probability output.
	// Wide heads use the smaller tile.
	keyBlockWideHead   = 128 // head_dim > 64
	keyBlockNarrowHead = 256 // head_dim <= 64

	// headDimTileThreshold separates the two key tile sizes.
	headDimTileThreshold = 64
)

// drawsPerHead is the number of random draws reserved per (batch item, head)
// pair for one forward call's dropout mask.
const drawsPerHead = 32

// roundUp rounds n up to the nearest multiple of m.
func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

// lseSeqlen returns the padded query dimension of the softmax-normalizer
// output: max_seqlen_q rounded up to a 16 boundary.
func lseSeqlen(maxSeqlenQ int) int {
	return roundUp(maxSeqlenQ, lseBlock)
}

// softmaxSeqlenK returns the padded key dimension of the attention-probability
// output. Sequences that fit in one tile take the small-size shortcuts at 128
// and 256 tokens; longer sequences round up to the head-dim-dependent tile.
func softmaxSeqlenK(maxSeqlenK, headDim int) int {
	switch {
	case maxSeqlenK <= 128:
		return 128
	case maxSeqlenK <= 256:
		return 256
	}
	if headDim > headDimTileThreshold {
		return roundUp(maxSeqlenK, keyBlockWideHead)
	}
	return roundUp(maxSeqlenK, keyBlockNarrowHead)
}
