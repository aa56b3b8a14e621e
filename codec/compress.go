package codec

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// compress and decompress wrap the capture payload in an LZ4 frame.
// pierrec/lz4's frame format is self-terminating, so decompression never
// needs to know the uncompressed size up front.
func compress(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(zr)
}

// decompressRetry re-attempts decompression against successively larger
// read limits: the fallback Load uses for streams that carry no
// uncompressed-size header up front.
func decompressRetry(compressed []byte) ([]byte, error) {
	const initialLimit = 4096
	const hardCap = 1 << 30

	for limit := int64(initialLimit); limit <= hardCap; limit *= 2 {
		zr := lz4.NewReader(bytes.NewReader(compressed))
		raw, err := io.ReadAll(io.LimitReader(zr, limit))
		if err == nil && int64(len(raw)) < limit {
			return raw, nil
		}
	}
	return nil, ErrCorruptCapture
}
