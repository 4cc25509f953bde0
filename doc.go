// Copyright 2026 Tessellate ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package flashattn adapts tensor-framework attention calls to the call
// convention of a variable-length, memory-efficient flash-attention
// primitive.
//
// # Overview
//
// The package owns everything around the attention kernel, not the kernel
// itself: layout normalization between fixed-length batched tensors and
// packed variable-length tensors, cumulative sequence-length offset tables,
// diagnostic output sizing, reproducible dropout RNG state, and the
// two-phase workspace-sizing protocol. The kernel is a pluggable Primitive;
// the WebGPU backend under internal/backend/webgpu provides one, and tests
// substitute a deterministic stub.
//
// # Basic Usage
//
//	gen := flashattn.NewGenerator(seed)
//	res, err := flashattn.BatchedForward(prim, gen, flashattn.DefaultConfig(), &flashattn.BatchedRequest{
//	    Q: q, K: k, V: v,
//	    Dropout: 0.1,
//	    Causal:  true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = res.Out // [batch, seqlen, heads, head_dim]
//
// Frameworks that dispatch by operation name instead register a primitive
// under the "flash_attn" / "flash_attn_unpadded" names and call Forward /
// ForwardUnpadded.
package flashattn
