package rprof

import (
	"bytes"
	"runtime"

	"github.com/DataDog/gostackparse"
)

// CurrentThread returns the ThreadHandle for the calling goroutine,
// creating one on first use. It exists for callers who want TLS-like
// ergonomics instead of threading an explicit *ThreadHandle through their
// call stack: Go has no portable per-OS-thread storage, so this derives a
// stable key from the current goroutine's ID via gostackparse and caches
// the handle in a sync.Map.
//
// This is not on the zero-overhead hot path — every call captures and
// parses a stack dump to find the goroutine ID, then does a sync.Map
// lookup. Code that can hold
// a *ThreadHandle across calls should do so directly and call
// Context.BeginScope/EndScope/Span instead.
func (c *Context) CurrentThread() *ThreadHandle {
	id := goroutineID()
	if v, ok := c.autoThreads.Load(id); ok {
		return v.(*ThreadHandle)
	}
	th := NewThreadHandle(id)
	actual, _ := c.autoThreads.LoadOrStore(id, th)
	return actual.(*ThreadHandle)
}

// goroutineID extracts the current goroutine's ID from a single-goroutine
// stack dump via gostackparse, the same library DataDog's profiler uses
// to correlate goroutine IDs across runtime.Stack snapshots.
func goroutineID() uint64 {
	buf := make([]byte, 256)
	n := runtime.Stack(buf, false)
	goroutines, _ := gostackparse.Parse(bytes.NewReader(buf[:n]))
	if len(goroutines) == 0 {
		return 0
	}
	return uint64(goroutines[0].ID)
}
