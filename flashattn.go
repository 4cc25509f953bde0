// Copyright 2026 Tessellate ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package flashattn

import (
	"github.com/tessellate-ml/flashattn/internal/attention"
	"github.com/tessellate-ml/flashattn/internal/registry"
	"github.com/tessellate-ml/flashattn/internal/rng"
)

// Type aliases for the public API.

// Primitive is the black-box attention compute capability backends implement.
type Primitive = attention.Primitive

// Params is the full primitive call convention.
type Params = attention.Params

// Stream is an opaque device execution-stream handle.
type Stream = attention.Stream

// Config carries the process-wide knobs consulted at call time.
type Config = attention.Config

// BatchedRequest describes a fixed-length batched forward call.
type BatchedRequest = attention.BatchedRequest

// UnpaddedRequest describes a packed variable-length forward call.
type UnpaddedRequest = attention.UnpaddedRequest

// Result holds the outputs of one forward call.
type Result = attention.Result

// ExternalError wraps a failure reported by the primitive itself.
type ExternalError = attention.ExternalError

// Generator is the process-wide deterministic dropout RNG state.
type Generator = rng.Generator

// Errors.
var (
	ErrInvalidShape = attention.ErrInvalidShape
	ErrDType        = attention.ErrDType
	ErrUnavailable  = attention.ErrUnavailable
)

// Registered operation names.
const (
	FlashAttn         = registry.FlashAttn
	FlashAttnUnpadded = registry.FlashAttnUnpadded
)

// NewGenerator creates a dropout RNG generator with the given seed.
func NewGenerator(seed uint64) *Generator {
	return rng.New(seed)
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return attention.DefaultConfig()
}

// LoadConfig reads a Config from a YAML file; a missing file yields defaults.
func LoadConfig(path string) (Config, error) {
	return attention.LoadConfig(path)
}

// BatchedForward runs attention over fixed-length 4D inputs with an explicit
// primitive.
func BatchedForward(prim Primitive, gen *Generator, cfg Config, req *BatchedRequest) (*Result, error) {
	return attention.BatchedForward(prim, gen, cfg, req)
}

// UnpaddedForward runs variable-length attention over packed 3D inputs with
// an explicit primitive.
func UnpaddedForward(prim Primitive, gen *Generator, cfg Config, req *UnpaddedRequest) (*Result, error) {
	return attention.UnpaddedForward(prim, gen, cfg, req)
}

// RegisterPrimitive installs a primitive under an operation name in the
// process-wide registry.
func RegisterPrimitive(name string, prim Primitive) error {
	return registry.Register(name, prim)
}

// Ops lists the operation names with a registered primitive.
func Ops() []string {
	return registry.Names()
}

// Forward dispatches the batched entry point through the process-wide
// registry. Returns ErrUnavailable when no backend registered the operation.
func Forward(gen *Generator, cfg Config, req *BatchedRequest) (*Result, error) {
	prim, err := registry.Lookup(registry.FlashAttn)
	if err != nil {
		return nil, err
	}
	return attention.BatchedForward(prim, gen, cfg, req)
}

// ForwardUnpadded dispatches the variable-length entry point through the
// process-wide registry.
func ForwardUnpadded(gen *Generator, cfg Config, req *UnpaddedRequest) (*Result, error) {
	prim, err := registry.Lookup(registry.FlashAttnUnpadded)
	if err != nil {
		return nil, err
	}
	return attention.UnpaddedForward(prim, gen, cfg, req)
}
