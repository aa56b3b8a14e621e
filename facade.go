package rprof

import "github.com/rudjigames/rprof/platform"

// This file is the C-shaped entry-point layer: package-level functions
// that wrap one process-wide default Context, for applications that want
// drop-in instrumentation without threading a *Context through their call
// stack. Everything here resolves the calling goroutine's ThreadHandle
// via CurrentThread, so it trades the explicit-handle API's zero-overhead
// guarantee for convenience. Libraries should take a *Context instead.
//
// Init and Shutdown must not race with any other call in this file; the
// expected shape is Init once at startup and Shutdown once at exit, the
// same discipline the explicit Context's constructor and abandonment
// imply.

var defaultCtx *Context

// Init creates the process-wide default context the other package-level
// functions operate on. Calling Init again replaces it.
func Init(opts ...Option) {
	defaultCtx = NewContext(opts...)
}

// Shutdown discards the default context. Package-level calls after
// Shutdown are no-ops.
func Shutdown() {
	defaultCtx = nil
}

// SetThreshold configures the default context's publish threshold.
func SetThreshold(ms float64, level uint32) {
	if c := defaultCtx; c != nil {
		c.SetThreshold(ms, level)
	}
}

// RegisterThread records a display name for a thread on the default
// context. With no tid, the calling goroutine's derived identifier is
// used.
func RegisterThread(name string, tid ...uint64) {
	c := defaultCtx
	if c == nil {
		return
	}
	id := uint64(0)
	if len(tid) > 0 {
		id = tid[0]
	} else {
		id = c.CurrentThread().ID()
	}
	c.RegisterThread(id, name)
}

// UnregisterThread removes tid's display name from the default context.
func UnregisterThread(tid uint64) {
	if c := defaultCtx; c != nil {
		c.UnregisterThread(tid)
	}
}

// BeginFrame marks a frame boundary on the default context.
func BeginFrame() {
	if c := defaultCtx; c != nil {
		c.BeginFrame()
	}
}

// BeginScope opens a scope on the default context for the calling
// goroutine. ok is false when the scope was dropped (allocator exhausted
// or no default context); the returned handle is then a valid no-op
// argument to EndScope.
func BeginScope(file string, line int, name string) (ScopeHandle, bool) {
	c := defaultCtx
	if c == nil {
		return ScopeHandle{}, false
	}
	return c.BeginScope(c.CurrentThread(), file, line, name)
}

// EndScope closes a scope opened by the package-level BeginScope. It must
// run on the same goroutine that opened the scope.
func EndScope(h ScopeHandle) {
	c := defaultCtx
	if c == nil || !h.Valid() {
		return
	}
	c.EndScope(c.CurrentThread(), h)
}

// Span opens a scope and returns the closure that closes it:
//
//	defer rprof.Span("main.go", 42, "tick")()
func Span(file string, line int, name string) func() {
	c := defaultCtx
	if c == nil {
		return func() {}
	}
	return c.Span(c.CurrentThread(), file, line, name)
}

// IsPaused reports the default context's pause state.
func IsPaused() bool {
	if c := defaultCtx; c != nil {
		return c.IsPaused()
	}
	return false
}

// WasThresholdCrossed reports whether the default context's last frame
// crossed the configured threshold.
func WasThresholdCrossed() bool {
	if c := defaultCtx; c != nil {
		return c.WasThresholdCrossed()
	}
	return false
}

// SetPaused pauses or resumes the default context.
func SetPaused(paused bool) {
	if c := defaultCtx; c != nil {
		c.SetPaused(paused)
	}
}

// GetFrame returns the default context's most recent display snapshot.
func GetFrame() Frame {
	if c := defaultCtx; c != nil {
		return c.GetFrame()
	}
	return Frame{}
}

// GetClock returns the default context's current monotonic tick, or 0
// before Init.
func GetClock() uint64 {
	if c := defaultCtx; c != nil {
		return c.platform.Now()
	}
	return 0
}

// GetClockFrequency returns the default context's tick frequency, or 0
// before Init.
func GetClockFrequency() uint64 {
	if c := defaultCtx; c != nil {
		return c.platform.Frequency()
	}
	return 0
}

// Clock2Ms converts a tick delta to milliseconds. It re-exports
// platform.Clock2Ms so façade callers need only this package.
func Clock2Ms(ticks, frequency uint64) float64 {
	return platform.Clock2Ms(ticks, frequency)
}

// GetPlatformName returns the human-readable name for a platform tag.
func GetPlatformName(tag byte) string {
	return platform.Name(tag)
}
