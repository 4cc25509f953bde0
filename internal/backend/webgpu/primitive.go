//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/tessellate-ml/flashattn/internal/attention"
)

// Verify that Backend implements the attention primitive.
var _ attention.Primitive = (*Backend)(nil)

const (
	flagCausal        = 1 << 0
	flagBF16          = 1 << 1
	flagZeroTensors   = 1 << 2
	flagReturnSoftmax = 1 << 3
)

// maxHeadDim mirrors the accumulator array size in the WGSL kernel.
const maxHeadDim = 256

// uniformSize is the byte size of the Params uniform struct in the shader.
const uniformSize = 68

// EstimateWorkspace implements the sizing phase. The single-pass kernel keeps
// its online-softmax state in registers, so no device scratch is needed
// regardless of the split hint; the hint is still validated so a determinism
// request is never silently ignored by a future multi-pass kernel.
func (b *Backend) EstimateWorkspace(p *attention.Params) (uint64, error) {
	if err := b.checkParams(p); err != nil {
		return 0, err
	}
	return 0, nil
}

// Compute implements the compute phase: upload inputs, dispatch the kernel
// over (query blocks, heads, batch), read results back into the output
// tensors. The caller guarantees the sizing phase ran first.
func (b *Backend) Compute(p *attention.Params) error {
	if err := b.checkParams(p); err != nil {
		return err
	}
	if p.Out == nil || p.SoftmaxLSE == nil {
		return fmt.Errorf("webgpu: compute phase requires allocated outputs")
	}

	shader := b.compileShader("varlen_attention", varlenAttentionShader)
	pipeline := b.getOrCreatePipeline("varlen_attention", shader)

	storageIn := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	storageOut := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc

	bufQ := b.uploadBuffer(p.Q.Data(), storageIn)
	defer bufQ.Release()
	bufK := b.uploadBuffer(p.K.Data(), storageIn)
	defer bufK.Release()
	bufV := b.uploadBuffer(p.V.Data(), storageIn)
	defer bufV.Release()
	bufCuQ := b.uploadBuffer(p.CuSeqlensQ.Data(), storageIn)
	defer bufCuQ.Release()
	bufCuK := b.uploadBuffer(p.CuSeqlensK.Data(), storageIn)
	defer bufCuK.Release()

	outSize := uint64(p.Out.ByteSize())
	bufOut := b.bufferPool.Acquire(outSize, storageOut)
	defer b.bufferPool.Release(bufOut, outSize, storageOut)

	lseSize := uint64(p.SoftmaxLSE.ByteSize())
	bufLSE := b.bufferPool.Acquire(lseSize, storageOut)
	defer b.bufferPool.Release(bufLSE, lseSize, storageOut)

	// The softmax binding must exist even when probabilities were not
	// requested; a minimal dummy stands in.
	softmaxSize := uint64(4)
	if p.Softmax != nil {
		softmaxSize = uint64(p.Softmax.ByteSize())
	}
	bufSoftmax := b.bufferPool.Acquire(softmaxSize, storageOut)
	defer b.bufferPool.Release(bufSoftmax, softmaxSize, storageOut)

	bufParams := b.uploadUniform(b.encodeUniform(p))
	defer bufParams.Release()

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufQ, 0, uint64(p.Q.ByteSize())),
		wgpu.BufferBindingEntry(1, bufK, 0, uint64(p.K.ByteSize())),
		wgpu.BufferBindingEntry(2, bufV, 0, uint64(p.V.ByteSize())),
		wgpu.BufferBindingEntry(3, bufCuQ, 0, uint64(p.CuSeqlensQ.ByteSize())),
		wgpu.BufferBindingEntry(4, bufCuK, 0, uint64(p.CuSeqlensK.ByteSize())),
		wgpu.BufferBindingEntry(5, bufOut, 0, outSize),
		wgpu.BufferBindingEntry(6, bufLSE, 0, lseSize),
		wgpu.BufferBindingEntry(7, bufSoftmax, 0, softmaxSize),
		wgpu.BufferBindingEntry(8, bufParams, 0, (uniformSize+15)&^15),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	const workgroupSize = 64
	qBlocks := (p.MaxSeqlenQ + workgroupSize - 1) / workgroupSize
	computePass.DispatchWorkgroups(uint32(qBlocks), uint32(p.Heads), uint32(p.Batch))
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	outData, err := b.readBuffer(bufOut, outSize)
	if err != nil {
		return fmt.Errorf("webgpu: read attention output: %w", err)
	}
	copy(p.Out.Data(), outData)

	lseData, err := b.readBuffer(bufLSE, lseSize)
	if err != nil {
		return fmt.Errorf("webgpu: read softmax normalizer: %w", err)
	}
	copy(p.SoftmaxLSE.Data(), lseData)

	if p.Softmax != nil {
		softmaxData, err := b.readBuffer(bufSoftmax, softmaxSize)
		if err != nil {
			return fmt.Errorf("webgpu: read attention probabilities: %w", err)
		}
		copy(p.Softmax.Data(), softmaxData)
	}

	return nil
}

func (b *Backend) checkParams(p *attention.Params) error {
	if p.HeadDim > maxHeadDim {
		return fmt.Errorf("webgpu: head_dim %d exceeds kernel maximum %d", p.HeadDim, maxHeadDim)
	}
	if p.HeadDim%8 != 0 {
		return fmt.Errorf("webgpu: head_dim must be a multiple of 8, got %d", p.HeadDim)
	}
	if p.Dropout < 0 || p.Dropout >= 1 {
		return fmt.Errorf("webgpu: dropout must be in [0, 1), got %v", p.Dropout)
	}
	return nil
}

// encodeUniform packs Params into the shader's uniform struct layout.
func (b *Backend) encodeUniform(p *attention.Params) []byte {
	var flags uint32
	if p.Causal {
		flags |= flagCausal
	}
	if p.BF16 {
		flags |= flagBF16
	}
	if p.ZeroTensors {
		flags |= flagZeroTensors
	}
	if p.Softmax != nil {
		flags |= flagReturnSoftmax
	}

	roundedQ := p.SoftmaxLSE.Shape()[2]
	roundedK := 0
	if p.Softmax != nil {
		roundedK = p.Softmax.Shape()[3]
	}

	buf := make([]byte, uniformSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(p.TotalQ))
	le.PutUint32(buf[4:8], uint32(p.TotalK))
	le.PutUint32(buf[8:12], uint32(p.Batch))
	le.PutUint32(buf[12:16], uint32(p.Heads))
	le.PutUint32(buf[16:20], uint32(p.HeadDim))
	le.PutUint32(buf[20:24], uint32(p.MaxSeqlenQ))
	le.PutUint32(buf[24:28], uint32(p.MaxSeqlenK))
	le.PutUint32(buf[28:32], uint32(roundedQ))
	le.PutUint32(buf[32:36], uint32(roundedK))
	le.PutUint32(buf[36:40], math.Float32bits(p.Scale))
	le.PutUint32(buf[40:44], math.Float32bits(p.Dropout))
	le.PutUint32(buf[44:48], flags)
	le.PutUint32(buf[48:52], uint32(p.NumSplits))
	le.PutUint32(buf[52:56], uint32(p.Seed))
	le.PutUint32(buf[56:60], uint32(p.Seed>>32))
	le.PutUint32(buf[60:64], uint32(p.Offset))
	le.PutUint32(buf[64:68], uint32(p.Offset>>32))
	return buf
}
