package blockpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFillsCapacity(t *testing.T) {
	p := New[int](4)
	for i := 0; i < 4; i++ {
		_, _, v, ok := p.Alloc()
		require.True(t, ok)
		require.NotNil(t, v)
	}
	_, _, _, ok := p.Alloc()
	assert.False(t, ok, "pool must refuse a fifth allocation at capacity 4")
}

func TestFreeThenReallocReusesSlot(t *testing.T) {
	p := New[int](2)
	i0, g0, v0, ok := p.Alloc()
	require.True(t, ok)
	*v0 = 42
	require.True(t, p.Free(i0, g0))

	i1, g1, v1, ok := p.Alloc()
	require.True(t, ok)
	assert.Equal(t, i0, i1, "freed slot should be reused under a LIFO free list")
	assert.NotEqual(t, g0, g1, "reuse must bump the generation")
	*v1 = 7
	assert.Equal(t, 7, *v0, "v0 and v1 alias the same backing slot")
}

func TestGetRejectsStaleGeneration(t *testing.T) {
	p := New[int](1)
	i0, g0, _, ok := p.Alloc()
	require.True(t, ok)
	require.True(t, p.Free(i0, g0))
	_, _, _, ok = p.Alloc()
	require.True(t, ok)

	_, found := p.Get(i0, g0)
	assert.False(t, found, "a handle from before the free must not resolve after reuse")
}

func TestFreeRejectsStaleGeneration(t *testing.T) {
	p := New[int](1)
	i0, g0, _, ok := p.Alloc()
	require.True(t, ok)
	require.True(t, p.Free(i0, g0))

	assert.False(t, p.Free(i0, g0), "double free with a stale generation must be rejected")
}

func TestFirstAllocationGenerationIsNonZero(t *testing.T) {
	p := New[int](4)
	i0, g0, _, ok := p.Alloc()
	require.True(t, ok)
	assert.Equal(t, uint32(0), i0, "first allocation takes index 0")
	assert.NotZero(t, g0, "index 0's first generation must not be the zero value, or its handle would be indistinguishable from a never-allocated one")
}

func TestPointerStableAcrossAllocations(t *testing.T) {
	p := New[int](8)
	_, _, first, ok := p.Alloc()
	require.True(t, ok)
	*first = 99
	for i := 0; i < 6; i++ {
		p.Alloc()
	}
	assert.Equal(t, 99, *first, "backing slice must never reallocate under the pool's fixed capacity")
}
