package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// DefaultCompressionThreshold is the payload size, in bytes, above which
// Put compresses the payload before storage (default 10 KiB per spec).
//
// compress/gzip is used rather than a third-party codec: no repository in
// the retrieval pack imports a compression library for cache payloads
// specifically (pierrec/lz4 appears only in the teacher's unrelated
// checkpoint format). This is the one ambient concern in this project
// built on the standard library rather than a pack dependency.
const DefaultCompressionThreshold = 10 * 1024

// Compression format markers, prefixed to every stored payload so get can
// detect and reverse compression symmetrically.
const (
	markerRaw        byte = 0x00
	markerGzip       byte = 0x01
	markerHeaderSize      = 1
)

func maybeCompress(payload []byte, threshold int) ([]byte, bool, error) {
	if len(payload) <= threshold {
		return append([]byte{markerRaw}, payload...), false, nil
	}

	var buf bytes.Buffer

	buf.WriteByte(markerGzip)

	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(payload); err != nil {
		return nil, false, fmt.Errorf("cache: gzip write: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, false, fmt.Errorf("cache: gzip close: %w", err)
	}

	return buf.Bytes(), true, nil
}

func decodeCompressed(stored []byte) ([]byte, error) {
	if len(stored) < markerHeaderSize {
		return nil, fmt.Errorf("cache: stored payload missing format marker")
	}

	marker, body := stored[0], stored[markerHeaderSize:]

	switch marker {
	case markerRaw:
		return body, nil
	case markerGzip:
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("cache: gzip reader: %w", err)
		}
		defer reader.Close()

		decoded, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("cache: gzip read: %w", err)
		}

		return decoded, nil
	default:
		return nil, fmt.Errorf("cache: unknown format marker %d", marker)
	}
}
