//go:build windows

package webgpu

import (
	"fmt"

	"github.com/tessellate-ml/flashattn/internal/registry"
)

// Register initializes a WebGPU backend and installs it as the primitive for
// both attention operations. The returned backend must be Released by the
// caller when the process is done with attention.
func Register() (*Backend, error) {
	b, err := New()
	if err != nil {
		return nil, err
	}

	if err := registry.Register(registry.FlashAttn, b); err != nil {
		b.Release()
		return nil, fmt.Errorf("webgpu: %w", err)
	}
	if err := registry.Register(registry.FlashAttnUnpadded, b); err != nil {
		b.Release()
		return nil, fmt.Errorf("webgpu: %w", err)
	}
	return b, nil
}
