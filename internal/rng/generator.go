// Package rng provides the deterministic counter-based random state used to
// make dropout masks reproducible across forward and replay passes.
//
// The generator itself never produces random numbers here; it only hands out
// (seed, offset) pairs. The attention primitive consumes the pair to seed its
// own counter-based PRNG, so reserving a range of draws up front is enough to
// guarantee that a later replay with the same pair regenerates the identical
// mask.
package rng

import "sync"

// Generator is process-wide deterministic PRNG state shared by all attention
// calls on one device. Reserve is the only mutating operation and is atomic
// with respect to concurrent callers, so concurrently issued calls never
// receive overlapping draw ranges.
type Generator struct {
	mu     sync.Mutex
	seed   uint64
	offset uint64
}

// New creates a Generator with the given seed and a zero offset.
func New(seed uint64) *Generator {
	return &Generator{seed: seed}
}

// Reserve atomically claims n future random draws and returns the seed and
// the pre-advance offset. The caller owns draws [offset, offset+n).
func (g *Generator) Reserve(n uint64) (seed, offset uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seed = g.seed
	offset = g.offset
	g.offset += n
	return seed, offset
}

// Seed resets the generator to a new seed and a zero offset.
func (g *Generator) Seed(seed uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seed = seed
	g.offset = 0
}

// State returns the current (seed, offset) pair without reserving draws.
func (g *Generator) State() (seed, offset uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.seed, g.offset
}
