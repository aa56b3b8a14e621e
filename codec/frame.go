// Package codec implements rprof's capture file format: Save serializes a
// Frame into a deduplicated-string layout followed by opaque compression;
// Load reverses that and additionally computes the exclusive and
// inclusive timing aggregates.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/rudjigames/rprof"
)

// maxPlausibleUncompressedSize bounds the leading size field Load reads
// before trusting it, so garbage or a legacy (header-less) stream falls
// straight through to the retry path instead of causing a huge
// allocation attempt.
const maxPlausibleUncompressedSize = 1 << 30

// stringDict assigns each distinct string a dense index in first-seen
// order.
type stringDict struct {
	index map[string]uint32
	order []string
}

func newStringDict() *stringDict {
	return &stringDict{index: make(map[string]uint32)}
}

func (d *stringDict) intern(s string) uint32 {
	if idx, ok := d.index[s]; ok {
		return idx
	}
	idx := uint32(len(d.order))
	d.index[s] = idx
	d.order = append(d.order, s)
	return idx
}

// Save serializes frame into dst, returning the number of bytes written.
// It returns ErrBufferTooSmall (and writes nothing) if dst cannot hold
// the compressed output.
func Save(frame *rprof.Frame, dst []byte) (int, error) {
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
	if err != nil {
		return 0, fmt.Errorf("rprof: save: %w", err)
	}

	total := 8 + len(compressed)
	if total > len(dst) {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint64(dst[0:8], uint64(len(e.buf)))
	copy(dst[8:total], compressed)
	return total, nil
}

// decompressFrame recovers the uncompressed scratch buffer Save produced,
// trying the sized header first and falling back to the header-less
// retry path for legacy streams.
func decompressFrame(src []byte) ([]byte, error) {
	if len(src) >= 8 {
		claimed := binary.LittleEndian.Uint64(src[:8])
		if claimed > 0 && claimed <= maxPlausibleUncompressedSize {
			if raw, err := decompress(src[8:]); err == nil && uint64(len(raw)) == claimed {
				return raw, nil
			}
		}
	}
	return decompressRetry(src)
}

// Load decodes a buffer produced by Save into a fully populated Frame,
// including exclusive-time subtraction and per-name aggregation.
func Load(src []byte) (*rprof.Frame, error) {
	raw, err := decompressFrame(src)
	if err != nil {
		return nil, fmt.Errorf("rprof: load: %w", ErrCorruptCapture)
	}
	return decodeFrame(raw)
}

// LoadTimeOnly decodes just enough of a capture to report the frame's
// duration in milliseconds, without allocating scope or thread arrays —
// the fast path a multi-frame navigator uses to build a per-frame time
// index.
func LoadTimeOnly(src []byte) (float64, error) {
	raw, err := decompressFrame(src)
	if err != nil {
		return 0, fmt.Errorf("rprof: loadtimeonly: %w", ErrCorruptCapture)
	}
	d := newDecoder(raw)
	startTime, err := d.u64()
	if err != nil {
		return 0, fmt.Errorf("rprof: loadtimeonly: %w", ErrCorruptCapture)
	}
	endTime, err := d.u64()
	if err != nil {
		return 0, fmt.Errorf("rprof: loadtimeonly: %w", ErrCorruptCapture)
	}
	if _, err := d.u64(); err != nil { // prevFrameTime, unused
		return 0, fmt.Errorf("rprof: loadtimeonly: %w", ErrCorruptCapture)
	}
	if _, err := d.u8(); err != nil { // platformID, unused
		return 0, fmt.Errorf("rprof: loadtimeonly: %w", ErrCorruptCapture)
	}
	frequency, err := d.u64()
	if err != nil {
		return 0, fmt.Errorf("rprof: loadtimeonly: %w", ErrCorruptCapture)
	}
	if frequency == 0 {
		return 0, nil
	}
	return float64(endTime-startTime) / float64(frequency) * 1000.0, nil
}

// Release zeroes frame. Go's garbage collector reclaims the memory; this
// exists so a Frame is not accidentally reused after release, and is
// harmless to call more than once since there is nothing left to free.
func Release(frame *rprof.Frame) {
	*frame = rprof.Frame{}
}

func decodeFrame(raw []byte) (*rprof.Frame, error) {
	d := newDecoder(raw)

	frame := &rprof.Frame{}
	var err error
	if frame.StartTime, err = d.u64(); err != nil {
		return nil, err
	}
	if frame.EndTime, err = d.u64(); err != nil {
		return nil, err
	}
	if frame.PrevFrameTime, err = d.u64(); err != nil {
		return nil, err
	}
	if frame.PlatformID, err = d.u8(); err != nil {
		return nil, err
	}
	if frame.CPUFrequency, err = d.u64(); err != nil {
		return nil, err
	}

	numScopes, err := d.u32()
	if err != nil {
		return nil, err
	}

	type rawScope struct {
		nameIdx, fileIdx uint32
	}
	scopes := make([]rprof.Scope, numScopes)
	stats := make([]rprof.ScopeStats, numScopes)
	raws := make([]rawScope, numScopes)
	for i := range scopes {
		s := &scopes[i]
		if s.Start, err = d.u64(); err != nil {
			return nil, err
		}
		if s.End, err = d.u64(); err != nil {
			return nil, err
		}
		if s.ThreadID, err = d.u64(); err != nil {
			return nil, err
		}
		if raws[i].nameIdx, err = d.u32(); err != nil {
			return nil, err
		}
		if raws[i].fileIdx, err = d.u32(); err != nil {
			return nil, err
		}
		if s.Line, err = d.u32(); err != nil {
			return nil, err
		}
		if s.Level, err = d.u32(); err != nil {
			return nil, err
		}
		stats[i].InclusiveTime = s.End - s.Start
		stats[i].ExclusiveTime = stats[i].InclusiveTime
		s.Stats = &stats[i]
	}

	numThreads, err := d.u32()
	if err != nil {
		return nil, err
	}
	threads := make([]rprof.ThreadEntry, numThreads)
	threadNameIdx := make([]uint32, numThreads)
	for i := range threads {
		if threads[i].ThreadID, err = d.u64(); err != nil {
			return nil, err
		}
		if threadNameIdx[i], err = d.u32(); err != nil {
			return nil, err
		}
	}

	numStrings, err := d.u32()
	if err != nil {
		return nil, err
	}
	strings := make([]string, numStrings)
	for i := range strings {
		if strings[i], err = d.str(); err != nil {
			return nil, err
		}
	}

	for i := range scopes {
		if int(raws[i].nameIdx) >= len(strings) || int(raws[i].fileIdx) >= len(strings) {
			return nil, ErrCorruptCapture
		}
		scopes[i].Name = strings[raws[i].nameIdx]
		scopes[i].File = strings[raws[i].fileIdx]
	}
	for i := range threads {
		if int(threadNameIdx[i]) >= len(strings) {
			return nil, ErrCorruptCapture
		}
		threads[i].Name = strings[threadNameIdx[i]]
	}

	// Exclusive-time subtraction: J is an immediate child of I when
	// it's one level deeper on the same thread and strictly contained
	// within I's interval.
	for i := range scopes {
		for j := range scopes {
			if scopes[j].ThreadID == scopes[i].ThreadID &&
				scopes[j].Level == scopes[i].Level+1 &&
				scopes[j].Start > scopes[i].Start &&
				scopes[j].End < scopes[i].End {
				stats[i].ExclusiveTime -= stats[j].InclusiveTime
			}
		}
	}

	// Per-name aggregation.
	var aggregates []rprof.Scope
	var aggregateStats []rprof.ScopeStats
	seen := make(map[string]int, numScopes)
	for i := range scopes {
		stats[i].InclusiveTimeTotal = stats[i].InclusiveTime
		stats[i].ExclusiveTimeTotal = stats[i].ExclusiveTime

		if idx, ok := seen[scopes[i].Name]; ok {
			aggregateStats[idx].InclusiveTimeTotal += stats[i].InclusiveTime
			aggregateStats[idx].ExclusiveTimeTotal += stats[i].ExclusiveTime
			aggregateStats[idx].Occurrences++
			continue
		}
		seen[scopes[i].Name] = len(aggregates)
		agg := scopes[i]
		aggregates = append(aggregates, agg)
		aggregateStats = append(aggregateStats, rprof.ScopeStats{
			InclusiveTime:      stats[i].InclusiveTime,
			ExclusiveTime:      stats[i].ExclusiveTime,
			InclusiveTimeTotal: stats[i].InclusiveTime,
			ExclusiveTimeTotal: stats[i].ExclusiveTime,
			Occurrences:        1,
		})
	}
	for i := range aggregates {
		aggregates[i].Stats = &aggregateStats[i]
	}

	frame.Scopes = scopes
	frame.Threads = threads
	frame.Aggregates = aggregates
	return frame, nil
}
