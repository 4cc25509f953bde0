//go:build windows

package webgpu

// varlenAttentionShader is the variable-length attention kernel.
//
// One invocation handles one query token of one (batch item, head) pair. The
// packed q/k/v buffers hold 16-bit floats two-per-u32 word; the params flag
// selects float16 or bfloat16 unpacking. Online softmax keeps the running
// max/denominator/accumulator in registers, so the kernel needs no device
// scratch. A second pass reconstructs dropout-scaled probabilities from the
// stored log-sum-exp when the caller asked for them.
const varlenAttentionShader = `
struct Params {
    total_q: u32,
    total_k: u32,
    batch: u32,
    heads: u32,
    head_dim: u32,
    max_seqlen_q: u32,
    max_seqlen_k: u32,
    rounded_q: u32,
    rounded_k: u32,
    scale: f32,
    dropout: f32,
    flags: u32,
    num_splits: u32,
    seed_lo: u32,
    seed_hi: u32,
    offset_lo: u32,
    offset_hi: u32,
}

const FLAG_CAUSAL: u32 = 1u;
const FLAG_BF16: u32 = 2u;
const FLAG_ZERO_TENSORS: u32 = 4u;
const FLAG_RETURN_SOFTMAX: u32 = 8u;

const MAX_HEAD_DIM: u32 = 256u;
const NEG_INF: f32 = -3.4e38;

@group(0) @binding(0) var<storage, read> q: array<u32>;
@group(0) @binding(1) var<storage, read> k: array<u32>;
@group(0) @binding(2) var<storage, read> v: array<u32>;
@group(0) @binding(3) var<storage, read> cu_seqlens_q: array<u32>;
@group(0) @binding(4) var<storage, read> cu_seqlens_k: array<u32>;
@group(0) @binding(5) var<storage, read_write> out: array<u32>;
@group(0) @binding(6) var<storage, read_write> softmax_lse: array<f32>;
@group(0) @binding(7) var<storage, read_write> softmax: array<u32>;
@group(0) @binding(8) var<uniform> params: Params;

fn decode_half(h: u32) -> f32 {
    if (params.flags & FLAG_BF16) != 0u {
        return bitcast<f32>(h << 16u);
    }
    return unpack2x16float(h).x;
}

fn encode_pair(a: f32, b: f32) -> u32 {
    if (params.flags & FLAG_BF16) != 0u {
        return (bitcast<u32>(a) >> 16u) | ((bitcast<u32>(b) >> 16u) << 16u);
    }
    return pack2x16float(vec2<f32>(a, b));
}

fn load_q(idx: u32) -> f32 {
    let w = q[idx / 2u];
    return decode_half(select(w & 0xffffu, w >> 16u, (idx & 1u) != 0u));
}

fn load_k(idx: u32) -> f32 {
    let w = k[idx / 2u];
    return decode_half(select(w & 0xffffu, w >> 16u, (idx & 1u) != 0u));
}

fn load_v(idx: u32) -> f32 {
    let w = v[idx / 2u];
    return decode_half(select(w & 0xffffu, w >> 16u, (idx & 1u) != 0u));
}

// Counter-based keep/drop decision so the mask is a pure function of
// (seed, offset, element position) and replays bit-identically.
fn dropout_keep(ctr: u32) -> bool {
    var x = ctr ^ params.seed_lo;
    x = x * 747796405u + params.offset_lo + 2891336453u;
    let word = ((x >> ((x >> 28u) + 4u)) ^ x) * 277803737u;
    let r = (word >> 22u) ^ word;
    return f32(r) * (1.0 / 4294967295.0) >= params.dropout;
}

fn score(q_base: u32, k_base: u32) -> f32 {
    var s = 0.0;
    for (var d = 0u; d < params.head_dim; d = d + 1u) {
        s = s + load_q(q_base + d) * load_k(k_base + d);
    }
    return s * params.scale;
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let qi = gid.x;
    let h = gid.y;
    let b = gid.z;

    let q_start = cu_seqlens_q[b];
    let q_len = cu_seqlens_q[b + 1u] - q_start;
    if qi >= q_len {
        return;
    }
    let k_start = cu_seqlens_k[b];
    let k_len = cu_seqlens_k[b + 1u] - k_start;

    let q_base = ((q_start + qi) * params.heads + h) * params.head_dim;

    // Causal masking aligns the last query token with the last key token.
    // Signed arithmetic: the shift goes negative when the query side is
    // longer than the key side.
    var k_limit = k_len;
    if (params.flags & FLAG_CAUSAL) != 0u {
        let visible = i32(qi) + 1 + i32(k_len) - i32(q_len);
        k_limit = u32(clamp(visible, 0, i32(k_len)));
    }

    let inv_keep = 1.0 / (1.0 - params.dropout);
    let ctr_base = ((b * params.heads + h) * params.max_seqlen_q + qi) * params.max_seqlen_k;

    var m = NEG_INF;
    var l = 0.0;
    var acc: array<f32, MAX_HEAD_DIM>;
    for (var d = 0u; d < params.head_dim; d = d + 1u) {
        acc[d] = 0.0;
    }

    for (var j = 0u; j < k_limit; j = j + 1u) {
        let k_base = ((k_start + j) * params.heads + h) * params.head_dim;
        let s = score(q_base, k_base);

        let m_new = max(m, s);
        let correction = exp(m - m_new);
        let p = exp(s - m_new);
        l = l * correction + p;

        var weight = p;
        if params.dropout > 0.0 {
            if dropout_keep(ctr_base + j) {
                weight = p * inv_keep;
            } else {
                weight = 0.0;
            }
        }

        for (var d = 0u; d < params.head_dim; d = d + 1u) {
            acc[d] = acc[d] * correction + weight * load_v(k_base + d);
        }
        m = m_new;
    }

    let lse_idx = (b * params.heads + h) * params.rounded_q + qi;
    if k_limit == 0u {
        softmax_lse[lse_idx] = NEG_INF;
        for (var d = 0u; d < params.head_dim; d = d + 2u) {
            out[(q_base + d) / 2u] = encode_pair(0.0, 0.0);
        }
        return;
    }

    let lse = m + log(l);
    softmax_lse[lse_idx] = lse;

    let inv_l = 1.0 / l;
    for (var d = 0u; d < params.head_dim; d = d + 2u) {
        out[(q_base + d) / 2u] = encode_pair(acc[d] * inv_l, acc[d + 1u] * inv_l);
    }

    if (params.flags & FLAG_RETURN_SOFTMAX) != 0u {
        let row = ((b * params.heads + h) * params.rounded_q + qi) * params.rounded_k;
        for (var j = 0u; j < k_limit; j = j + 2u) {
            var p0 = 0.0;
            var p1 = 0.0;
            let k_base0 = ((k_start + j) * params.heads + h) * params.head_dim;
            p0 = exp(score(q_base, k_base0) - lse);
            if params.dropout > 0.0 {
                p0 = select(0.0, p0 * inv_keep, dropout_keep(ctr_base + j));
            }
            if j + 1u < k_limit {
                let k_base1 = ((k_start + j + 1u) * params.heads + h) * params.head_dim;
                p1 = exp(score(q_base, k_base1) - lse);
                if params.dropout > 0.0 {
                    p1 = select(0.0, p1 * inv_keep, dropout_keep(ctr_base + j + 1u));
                }
            }
            softmax[(row + j) / 2u] = encode_pair(p0, p1);
        }
    }
}
`
