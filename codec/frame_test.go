package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudjigames/rprof"
)

func syntheticFrame() *rprof.Frame {
	return &rprof.Frame{
		StartTime:      1000,
		EndTime:        2000,
		PrevFrameTime:  1000,
		CPUFrequency:   1_000_000,
		TimeThreshold:  5,
		LevelThreshold: 0,
		PlatformID:     2,
		Threads: []rprof.ThreadEntry{
			{ThreadID: 1, Name: "main"},
			{ThreadID: 2, Name: "worker"},
			{ThreadID: 3, Name: "render"},
		},
		Scopes: []rprof.Scope{
			{Start: 1000, End: 1900, ThreadID: 1, Name: "P", File: "a.go", Line: 10, Level: 0},
			{Start: 1010, End: 1300, ThreadID: 1, Name: "C1", File: "a.go", Line: 11, Level: 1},
			{Start: 1300, End: 1700, ThreadID: 1, Name: "C2", File: "a.go", Line: 12, Level: 1},
			{Start: 1100, End: 1200, ThreadID: 1, Name: "C1.1", File: "a.go", Line: 13, Level: 2},
			{Start: 1050, End: 1850, ThreadID: 2, Name: "P", File: "b.go", Line: 5, Level: 0},
			{Start: 1060, End: 1400, ThreadID: 2, Name: "C1", File: "b.go", Line: 6, Level: 1},
			{Start: 1400, End: 1800, ThreadID: 2, Name: "C2", File: "b.go", Line: 7, Level: 1},
			{Start: 1200, End: 1900, ThreadID: 3, Name: "Render", File: "c.go", Line: 1, Level: 0},
			{Start: 1300, End: 1600, ThreadID: 3, Name: "Draw", File: "c.go", Line: 2, Level: 1},
			{Start: 1650, End: 1890, ThreadID: 3, Name: "Present", File: "c.go", Line: 3, Level: 1},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	frame := syntheticFrame()
	dst := make([]byte, 32*1024)
	n, err := Save(frame, dst)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	loaded, err := Load(dst[:n])
	require.NoError(t, err)

	require.Len(t, loaded.Scopes, len(frame.Scopes))
	for i, want := range frame.Scopes {
		got := loaded.Scopes[i]
		assert.Equal(t, want.Start, got.Start)
		assert.Equal(t, want.End, got.End)
		assert.Equal(t, want.ThreadID, got.ThreadID)
		assert.Equal(t, want.Line, got.Line)
		assert.Equal(t, want.Level, got.Level)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.File, got.File)
	}
	require.Len(t, loaded.Threads, len(frame.Threads))
	for i, want := range frame.Threads {
		assert.Equal(t, want.ThreadID, loaded.Threads[i].ThreadID)
		assert.Equal(t, want.Name, loaded.Threads[i].Name)
	}
}

func TestSaveBufferTooSmall(t *testing.T) {
	frame := syntheticFrame()
	dst := make([]byte, 4)
	n, err := Save(frame, dst)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestLoadCorruptBufferFails(t *testing.T) {
	_, err := Load([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestExclusiveTimeLaw(t *testing.T) {
	frame := syntheticFrame()
	dst := make([]byte, 32*1024)
	n, err := Save(frame, dst)
	require.NoError(t, err)
	loaded, err := Load(dst[:n])
	require.NoError(t, err)

	byName := map[string]*rprof.Scope{}
	for i := range loaded.Scopes {
		s := &loaded.Scopes[i]
		if s.ThreadID == 1 {
			byName[s.Name] = s
		}
	}

	p := byName["P"]
	c1 := byName["C1"]
	c2 := byName["C2"]
	require.NotNil(t, p)
	require.NotNil(t, c1)
	require.NotNil(t, c2)

	expected := p.Stats.InclusiveTime - c1.Stats.InclusiveTime - c2.Stats.InclusiveTime
	assert.Equal(t, expected, p.Stats.ExclusiveTime)

	// C1.1 is a grandchild of P (level 2), not an immediate child, so it
	// must not be subtracted a second time out of P's exclusive time.
	c11 := byName["C1.1"]
	require.NotNil(t, c11)
	assert.Equal(t, c1.Stats.InclusiveTime-c11.Stats.InclusiveTime, c1.Stats.ExclusiveTime)
}

func TestPerNameAggregation(t *testing.T) {
	frame := &rprof.Frame{
		CPUFrequency: 1000,
		Scopes: []rprof.Scope{
			{Start: 0, End: 10, ThreadID: 1, Name: "x", File: "f.go", Line: 1, Level: 0},
			{Start: 10, End: 25, ThreadID: 1, Name: "x", File: "f.go", Line: 1, Level: 0},
			{Start: 25, End: 33, ThreadID: 1, Name: "x", File: "f.go", Line: 1, Level: 0},
		},
	}
	dst := make([]byte, 4096)
	n, err := Save(frame, dst)
	require.NoError(t, err)
	loaded, err := Load(dst[:n])
	require.NoError(t, err)

	require.Len(t, loaded.Aggregates, 1)
	agg := loaded.Aggregates[0]
	assert.Equal(t, "x", agg.Name)
	assert.Equal(t, uint32(3), agg.Stats.Occurrences)
	assert.Equal(t, uint64(10+15+8), agg.Stats.InclusiveTimeTotal)
	assert.Equal(t, agg.Stats.InclusiveTimeTotal, agg.Stats.ExclusiveTimeTotal, "leaf scopes have no children to subtract")
}

func TestLoadTimeOnly(t *testing.T) {
	frame := syntheticFrame()
	dst := make([]byte, 32*1024)
	n, err := Save(frame, dst)
	require.NoError(t, err)

	ms, err := LoadTimeOnly(dst[:n])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ms, 0.001, "(2000-1000)/1_000_000*1000 == 1ms")
}

func TestReleaseZeroesFrame(t *testing.T) {
	frame := syntheticFrame()
	dst := make([]byte, 32*1024)
	n, err := Save(frame, dst)
	require.NoError(t, err)
	loaded, err := Load(dst[:n])
	require.NoError(t, err)

	Release(loaded)
	assert.Empty(t, loaded.Scopes)
	assert.Empty(t, loaded.Threads)
	assert.Empty(t, loaded.Aggregates)
}

func TestLoadLegacyHeaderlessStream(t *testing.T) {
	frame := syntheticFrame()
	dict := newStringDict()
	for _, s := range frame.Scopes {
		dict.intern(s.Name)
		dict.intern(s.File)
	}
	for _, th := range frame.Threads {
		dict.intern(th.Name)
	}
	e := &encoder{}
	e.u64(frame.StartTime)
	e.u64(frame.EndTime)
	e.u64(frame.PrevFrameTime)
	e.u8(frame.PlatformID)
	e.u64(frame.CPUFrequency)
	e.u32(uint32(len(frame.Scopes)))
	for _, s := range frame.Scopes {
		e.u64(s.Start)
		e.u64(s.End)
		e.u64(s.ThreadID)
		e.u32(dict.index[s.Name])
		e.u32(dict.index[s.File])
		e.u32(s.Line)
		e.u32(s.Level)
	}
	e.u32(uint32(len(frame.Threads)))
	for _, th := range frame.Threads {
		e.u64(th.ThreadID)
		e.u32(dict.index[th.Name])
	}
	e.u32(uint32(len(dict.order)))
	for _, s := range dict.order {
		e.str(s)
	}

	compressed, err := compress(e.buf)
	require.NoError(t, err)

	// No leading uncompressed-size field: this is what a stream from
	// before the sized-header fast path was added looks like on the wire.
	loaded, err := Load(compressed)
	require.NoError(t, err)
	require.Len(t, loaded.Scopes, len(frame.Scopes))
	assert.Equal(t, frame.Scopes[0].Name, loaded.Scopes[0].Name)
}
