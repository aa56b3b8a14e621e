package rprof

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rudjigames/rprof/internal/arena"
	"github.com/rudjigames/rprof/internal/blockpool"
	"github.com/rudjigames/rprof/platform"
)

// openScope is the bookkeeping entry the context keeps per still-tracked
// scope in its open set: enough to look the Scope back up in the pool
// without holding a raw pointer.
type openScope struct {
	index      uint32
	generation uint32
}

// Context is the profiler: it owns the scope allocator, the three name
// arenas, the open set, the display snapshot, and the thread-name map.
// Every field mutation is serialized by mu except the Scope fields
// BeginScope fills in after releasing the lock (ThreadID, File, Line,
// Level) and Scope.End, written by EndScope without the lock — see
// EndScope's comment.
//
// A Context is created once per profiled process (or subsystem) and is
// safe for concurrent use from any number of goroutines/OS threads once
// each has obtained its own *ThreadHandle.
type Context struct {
	mu sync.Mutex

	platform platform.Platform
	logger   zerolog.Logger

	pool *blockpool.Pool[Scope]

	capture *arena.Arena
	display *arena.Arena
	open    *arena.Arena

	openSet []openScope

	displayScopes []Scope
	frameStart    uint64
	frameEnd      uint64

	prevFrameBegin    uint64
	prevFrameBeginSet bool

	thresholdCrossed bool
	timeThresholdMs  float64
	levelThreshold   uint32
	paused           bool

	threadNames    map[uint64]string
	maxDrawThreads int

	autoThreads sync.Map // goroutine id (uint64) -> *ThreadHandle, see CurrentThread
}

// Option configures a Context at construction.
type Option func(*Context)

// WithPlatform injects a non-default clock/platform-tag source, the seam
// tests use to control time deterministically.
func WithPlatform(p platform.Platform) Option {
	return func(c *Context) { c.platform = p }
}

// WithLogger attaches a zerolog.Logger. The context logs only at
// arena/allocator exhaustion (Debug) and configuration changes (Info),
// never on the BeginScope/EndScope hot path. The zero value is
// zerolog.Nop(), which costs nothing at runtime.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithLimits overrides the default resource caps.
func WithLimits(maxScopes uint32, textArenaBytes, maxDrawThreads int) Option {
	return func(c *Context) {
		c.pool = blockpool.New[Scope](maxScopes)
		c.capture = arena.New(textArenaBytes)
		c.display = arena.New(textArenaBytes)
		c.open = arena.New(textArenaBytes)
		c.maxDrawThreads = maxDrawThreads
	}
}

// NewContext constructs a ready-to-use profiler context.
func NewContext(opts ...Option) *Context {
	c := &Context{
		platform:       platform.Default(),
		logger:         zerolog.Nop(),
		pool:           blockpool.New[Scope](DefaultMaxScopes),
		capture:        arena.New(DefaultTextArenaBytes),
		display:        arena.New(DefaultTextArenaBytes),
		open:           arena.New(DefaultTextArenaBytes),
		threadNames:    make(map[uint64]string),
		maxDrawThreads: DefaultMaxDrawThreads,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetThreshold sets the minimum duration, in milliseconds, that promotes a
// frame to the display buffer, and the scope level the threshold is
// measured against: 0 means the whole frame's duration, otherwise
// level-1 selects the scope depth to examine.
func (c *Context) SetThreshold(ms float64, level uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeThresholdMs = ms
	c.levelThreshold = level
	c.logger.Info().Float64("threshold_ms", ms).Uint32("level", level).Msg("rprof: threshold set")
}

// RegisterThread records name as the display name for threadID, replacing
// any prior name. It does not affect scope nesting; pair it with a
// *ThreadHandle obtained from NewThreadHandle for the same id.
func (c *Context) RegisterThread(threadID uint64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadNames[threadID] = name
}

// UnregisterThread removes threadID's display name.
func (c *Context) UnregisterThread(threadID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threadNames, threadID)
}

// IsPaused reports whether capture is paused.
func (c *Context) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// WasThresholdCrossed reports whether the most recently completed frame
// crossed the configured threshold. It is observable only while not
// paused.
func (c *Context) WasThresholdCrossed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.paused && c.thresholdCrossed
}

// SetPaused pauses or resumes publishing to the display buffer. Scopes
// still open and close while paused; they simply stop being promoted.
func (c *Context) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
	c.logger.Info().Bool("paused", paused).Msg("rprof: pause state changed")
}

// BeginScope opens a scope on the thread identified by th. ok is false
// when the allocator is exhausted; callers must treat a false return as a
// silently dropped scope and must not call EndScope on it.
func (c *Context) BeginScope(th *ThreadHandle, file string, line int, name string) (ScopeHandle, bool) {
	var index, generation uint32
	var scope *Scope
	var ok bool

	c.mu.Lock()
	index, generation, scope, ok = c.pool.Alloc()
	if ok {
		scope.Name = c.capture.Add(name)
		if scope.Name == arena.OverflowSentinel && name != arena.OverflowSentinel {
			c.logger.Debug().Str("name", name).Msg("rprof: name arena exhausted, name substituted")
		}
		now := c.platform.Now()
		scope.Start = now
		scope.End = now
		c.openSet = append(c.openSet, openScope{index: index, generation: generation})
	} else {
		c.logger.Debug().Str("name", name).Msg("rprof: scope allocator exhausted, scope dropped")
	}
	c.mu.Unlock()

	if !ok {
		return ScopeHandle{}, false
	}

	scope.ThreadID = th.id
	scope.File = file
	scope.Line = uint32(line)
	scope.Level = th.incLevel()

	return ScopeHandle{index: index, generation: generation}, true
}

// EndScope closes a scope opened by BeginScope. It deliberately does not
// take the context mutex: it writes only the End field of the one Scope
// value it was handed out, which no other goroutine mutates once
// BeginScope has returned, and decrements th's nesting counter, which is
// private to th's owner. Calling EndScope with a handle from a different
// ThreadHandle than the one that opened it, or out of LIFO order, is a
// programmer error with implementation-defined results.
func (c *Context) EndScope(th *ThreadHandle, h ScopeHandle) {
	if !h.Valid() {
		return
	}
	scope, ok := c.pool.Get(h.index, h.generation)
	if !ok {
		return
	}
	scope.End = c.platform.Now()
	th.decLevel()
}

// Span opens a scope and returns a closure that closes it, pairing
// open/close across any control-flow path including panics:
//
//	defer ctx.Span(th, file, line, "work")()
func (c *Context) Span(th *ThreadHandle, file string, line int, name string) func() {
	h, ok := c.BeginScope(th, file, line, name)
	if !ok {
		return func() {}
	}
	return func() { c.EndScope(th, h) }
}

// BeginFrame transitions the capture buffer to a new frame: every tracked
// scope, open or closed, is copied to a scratch display array; closed
// scopes are freed and still-open ones carried forward; the threshold is
// evaluated against those scopes; and — if crossed and not paused — the
// scratch array and the just-finished Capture arena are published as the
// new display snapshot (GetFrame clamps the still-open entries).
func (c *Context) BeginFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.prevFrameBeginSet {
		c.prevFrameBegin = c.platform.Now()
		c.prevFrameBeginSet = true
	}
	frameBegin := c.prevFrameBegin
	frameEnd := c.platform.Now()
	c.prevFrameBegin = frameEnd

	c.thresholdCrossed = false
	level := int(c.levelThreshold) - 1

	c.open.Reset()

	scratch := make([]Scope, len(c.openSet))
	retained := c.openSet[:0]

	for i, os := range c.openSet {
		scope := c.pool.At(os.index)

		stillOpen := scope.Start == scope.End
		if stillOpen {
			scope.Name = c.open.Add(scope.Name)
		}

		scratch[i] = *scope

		if stillOpen {
			retained = append(retained, os)
		} else {
			c.pool.Free(os.index, os.generation)
		}

		if level == int(scope.Level) {
			effectiveEnd := scope.End
			if stillOpen {
				effectiveEnd = frameEnd
			}
			if c.timeThresholdMs <= platform.Clock2Ms(effectiveEnd-scope.Start, c.platform.Frequency()) {
				c.thresholdCrossed = true
			}
		}
	}

	if level == -1 {
		if c.timeThresholdMs <= platform.Clock2Ms(frameEnd-frameBegin, c.platform.Frequency()) {
			c.thresholdCrossed = true
		}
	}

	if c.thresholdCrossed && !c.paused {
		c.capture, c.display = c.display, c.capture
		c.displayScopes = scratch
		c.frameStart = frameBegin
		c.frameEnd = frameEnd
	}

	c.capture.Reset()
	for _, os := range retained {
		scope := c.pool.At(os.index)
		scope.Name = c.capture.Add(scope.Name)
	}
	c.openSet = retained
}

// GetFrame returns a copy of the most recently published display
// snapshot, sorted by (ThreadID, Level, Start) ascending, and with any
// scope still open when it was captured clamped to the frame's bounds.
func (c *Context) GetFrame() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	scopes := make([]Scope, len(c.displayScopes))
	copy(scopes, c.displayScopes)
	for i := range scopes {
		s := &scopes[i]
		if s.Start == s.End {
			s.End = c.frameEnd
			if s.Start < c.frameStart {
				s.Start = c.frameStart
			}
		}
	}
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].ThreadID != scopes[j].ThreadID {
			return scopes[i].ThreadID < scopes[j].ThreadID
		}
		if scopes[i].Level != scopes[j].Level {
			return scopes[i].Level < scopes[j].Level
		}
		return scopes[i].Start < scopes[j].Start
	})

	threads := make([]ThreadEntry, 0, len(c.threadNames))
	for id, name := range c.threadNames {
		threads = append(threads, ThreadEntry{ThreadID: id, Name: name})
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].ThreadID < threads[j].ThreadID })
	if len(threads) > c.maxDrawThreads {
		threads = threads[:c.maxDrawThreads]
	}

	return Frame{
		Scopes:         scopes,
		Threads:        threads,
		StartTime:      c.frameStart,
		EndTime:        c.frameEnd,
		PrevFrameTime:  c.frameEnd - c.frameStart,
		CPUFrequency:   c.platform.Frequency(),
		TimeThreshold:  c.timeThresholdMs,
		LevelThreshold: c.levelThreshold,
		PlatformID:     c.platform.PlatformTag(),
	}
}
