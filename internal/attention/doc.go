// Package attention adapts generic tensor-framework calls to the call
// convention of a variable-length flash-attention primitive.
//
// The package does not implement attention numerics. It owns everything
// around the primitive: layout normalization between fixed-length batched
// tensors and packed variable-length tensors, cumulative sequence-length
// offset synthesis, output and diagnostic buffer sizing, reproducible
// dropout RNG state, and the two-phase workspace-sizing invocation protocol.
//
// Two entry points are exposed: BatchedForward for fixed-shape
// [batch, seq, heads, head_dim] inputs, and UnpaddedForward for packed
// [total_tokens, heads, head_dim] inputs with explicit offset tables.
// BatchedForward is a thin layout adapter over UnpaddedForward.
package attention
