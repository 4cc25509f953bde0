package rng

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveReturnsPreAdvanceOffset(t *testing.T) {
	g := New(42)

	seed, offset := g.Reserve(128)
	assert.Equal(t, uint64(42), seed)
	assert.Equal(t, uint64(0), offset)

	seed, offset = g.Reserve(64)
	assert.Equal(t, uint64(42), seed)
	assert.Equal(t, uint64(128), offset)

	_, offset = g.Reserve(1)
	assert.Equal(t, uint64(192), offset)
}

func TestSequentialReservationsDoNotOverlap(t *testing.T) {
	g := New(7)

	var prevEnd uint64
	for i := 0; i < 10; i++ {
		_, offset := g.Reserve(32)
		require.Equal(t, prevEnd, offset, "reservation %d must start where the previous ended", i)
		prevEnd = offset + 32
	}
}

func TestSeedResetsOffset(t *testing.T) {
	g := New(1)
	g.Reserve(100)

	g.Seed(2)
	seed, offset := g.Reserve(10)
	assert.Equal(t, uint64(2), seed)
	assert.Equal(t, uint64(0), offset)
}

func TestConcurrentReservationsAreDisjoint(t *testing.T) {
	const (
		goroutines = 16
		perCall    = 32
		calls      = 100
	)

	g := New(99)

	var (
		mu      sync.Mutex
		offsets []uint64
		wg      sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				_, off := g.Reserve(perCall)
				mu.Lock()
				offsets = append(offsets, off)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, len(offsets))
	for _, off := range offsets {
		require.False(t, seen[off], "offset %d handed out twice", off)
		require.Zero(t, off%perCall, "offset %d not aligned to reservation size", off)
		seen[off] = true
	}

	_, final := g.State()
	assert.Equal(t, uint64(goroutines*perCall*calls), final)
}
