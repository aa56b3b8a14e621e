package codec

import "errors"

// Error kinds: Save signals a too-small output buffer, Load signals a
// stream that never decompresses within the retry bound.
var (
	ErrBufferTooSmall = errors.New("rprof: output buffer too small")
	ErrCorruptCapture = errors.New("rprof: corrupt capture")
)
