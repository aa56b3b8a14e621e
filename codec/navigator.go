package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rudjigames/rprof"
)

// Magic is the 4-byte marker a multi-frame capture container starts
// with.
const Magic uint32 = 0x23232323

// WriteContainerHeader writes the magic a multi-frame container starts
// with.
func WriteContainerHeader(w io.Writer) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], Magic)
	_, err := w.Write(hdr[:])
	return err
}

// AppendFrame writes one length-prefixed record: a caller that streams
// captures to disk calls this once per Save output.
func AppendFrame(w io.Writer, encoded []byte) error {
	var sizeField [4]byte
	binary.LittleEndian.PutUint32(sizeField[:], uint32(len(encoded)))
	if _, err := w.Write(sizeField[:]); err != nil {
		return err
	}
	_, err := w.Write(encoded)
	return err
}

// Navigator indexes a multi-frame container already read fully into
// memory: it decodes every record's duration up front via LoadTimeOnly
// (cheap, no scope arrays) and defers a full Load until LoadFrame is
// called for a specific index.
type Navigator struct {
	data    []byte
	offsets []int
	sizes   []int
	times   []float64
}

// OpenNavigator validates the magic and builds the frame-time index.
func OpenNavigator(data []byte) (*Navigator, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("rprof: navigator: %w", ErrCorruptCapture)
	}
	if binary.LittleEndian.Uint32(data[:4]) != Magic {
		return nil, fmt.Errorf("rprof: navigator: bad magic: %w", ErrCorruptCapture)
	}

	n := &Navigator{data: data}
	pos := 4
	for pos+4 <= len(data) {
		size := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if size < 0 || pos+size > len(data) {
			return nil, fmt.Errorf("rprof: navigator: truncated record: %w", ErrCorruptCapture)
		}
		payload := data[pos : pos+size]
		ms, err := LoadTimeOnly(payload)
		if err != nil {
			return nil, fmt.Errorf("rprof: navigator: frame %d: %w", len(n.offsets), err)
		}
		n.offsets = append(n.offsets, pos)
		n.sizes = append(n.sizes, size)
		n.times = append(n.times, ms)
		pos += size
	}
	return n, nil
}

// Len reports how many frame records the container holds.
func (n *Navigator) Len() int {
	return len(n.offsets)
}

// FrameTimes returns the per-frame durations in milliseconds, in record
// order, built once at OpenNavigator time.
func (n *Navigator) FrameTimes() []float64 {
	return n.times
}

// LoadFrame fully decodes record i on demand.
func (n *Navigator) LoadFrame(i int) (*rprof.Frame, error) {
	if i < 0 || i >= len(n.offsets) {
		return nil, fmt.Errorf("rprof: navigator: frame index %d out of range", i)
	}
	payload := n.data[n.offsets[i] : n.offsets[i]+n.sizes[i]]
	return Load(payload)
}
