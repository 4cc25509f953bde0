package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-ml/flashattn/internal/attention"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	stub := &attention.StubPrimitive{}

	require.NoError(t, r.Register(FlashAttn, stub))
	require.NoError(t, r.Register(FlashAttnUnpadded, stub))

	prim, err := r.Lookup(FlashAttn)
	require.NoError(t, err)
	assert.Same(t, stub, prim)

	assert.ElementsMatch(t, []string{FlashAttn, FlashAttnUnpadded}, r.Names())
}

func TestLookupUnregisteredFailsLoudly(t *testing.T) {
	r := New()

	_, err := r.Lookup(FlashAttn)
	assert.ErrorIs(t, err, attention.ErrUnavailable)
	assert.Contains(t, err.Error(), FlashAttn)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := New()
	stub := &attention.StubPrimitive{}

	require.NoError(t, r.Register(FlashAttn, stub))
	assert.Error(t, r.Register(FlashAttn, stub))
}

func TestNilPrimitiveRejected(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(FlashAttn, nil))
}
