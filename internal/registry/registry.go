// Package registry holds the named-operation surface through which compute
// backends plug their attention primitive into the adapter.
//
// A backend registers its Primitive under the operation names at init time;
// callers look the primitive up by name at call time. Looking up an operation
// no backend registered fails with attention.ErrUnavailable rather than
// silently producing uninitialized outputs.
package registry

import (
	"fmt"
	"sync"

	"github.com/tessellate-ml/flashattn/internal/attention"
)

// Operation names exposed to the surrounding framework.
const (
	// FlashAttn is the batched entry point: 4D fixed-length q/k/v.
	FlashAttn = "flash_attn"

	// FlashAttnUnpadded is the variable-length entry point: packed 3D q/k/v
	// plus explicit offset tables.
	FlashAttnUnpadded = "flash_attn_unpadded"
)

// Registry maps operation names to the primitive serving them.
type Registry struct {
	mu    sync.RWMutex
	prims map[string]attention.Primitive
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{prims: make(map[string]attention.Primitive)}
}

// Register installs a primitive under name. Registering the same name twice
// is a wiring bug and fails.
func (r *Registry) Register(name string, prim attention.Primitive) error {
	if prim == nil {
		return fmt.Errorf("register %q: nil primitive", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.prims[name]; ok {
		return fmt.Errorf("register %q: already registered", name)
	}
	r.prims[name] = prim
	return nil
}

// Lookup returns the primitive registered under name, or
// attention.ErrUnavailable when no backend registered it.
func (r *Registry) Lookup(name string) (attention.Primitive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prim, ok := r.prims[name]
	if !ok {
		return nil, fmt.Errorf("operation %q: %w", name, attention.ErrUnavailable)
	}
	return prim, nil
}

// Names returns the registered operation names, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.prims))
	for name := range r.prims {
		names = append(names, name)
	}
	return names
}

// defaultRegistry is the process-wide registry backends register into from
// their init functions.
var defaultRegistry = New()

// Register installs a primitive into the process-wide registry.
func Register(name string, prim attention.Primitive) error {
	return defaultRegistry.Register(name, prim)
}

// Lookup reads the process-wide registry.
func Lookup(name string) (attention.Primitive, error) {
	return defaultRegistry.Lookup(name)
}

// Names lists the process-wide registry.
func Names() []string {
	return defaultRegistry.Names()
}
