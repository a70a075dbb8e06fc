// Package compression provides the decompression stage in front of the CSV
// pipeline. It supports the formats compressed CSV exports commonly arrive
// in (gzip, zstd, snappy, s2, lz4, deflate), with magic-byte detection for
// the framed formats, both streaming and in-memory.
package compression

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// Format represents a compression format.
type Format string

const (
	// None represents uncompressed input
	None Format = "none"
	// Gzip represents gzip compression
	Gzip Format = "gzip"
	// Zstd represents zstandard compression
	Zstd Format = "zstd"
	// Snappy represents framed snappy compression
	Snappy Format = "snappy"
	// S2 represents s2 compression (Snappy compatible)
	S2 Format = "s2"
	// LZ4 represents lz4 frame compression
	LZ4 Format = "lz4"
	// Deflate represents raw deflate compression
	Deflate Format = "deflate"
)

// Magic prefixes for the self-framing formats.
var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4    = []byte{0x04, 0x22, 0x4d, 0x18}
	magicSnappy = []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}
)

// Detect sniffs the format from the payload prefix. Formats without a frame
// header (deflate, raw s2 blocks) are not detectable and report None.
func Detect(prefix []byte) Format {
	switch {
	case bytes.HasPrefix(prefix, magicGzip):
		return Gzip
	case bytes.HasPrefix(prefix, magicZstd):
		return Zstd
	case bytes.HasPrefix(prefix, magicLZ4):
		return LZ4
	case bytes.HasPrefix(prefix, magicSnappy):
		return Snappy
	default:
		return None
	}
}

// NewReader wraps r with a decompressor for the given format. None returns
// r unchanged behind a no-op closer.
func NewReader(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid gzip stream")
		}
		return gr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid zstd stream")
		}
		return zr.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Deflate:
		return flate.NewReader(r), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown compression format %q", format)
	}
}

// Decompress decompresses an in-memory payload.
func Decompress(data []byte, format Format) ([]byte, error) {
	rc, err := NewReader(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "decompression failed")
	}
	return out, nil
}

// ParseFormat converts a user-supplied format name, accepting "auto" as a
// request for magic-byte detection (returned as None here; callers detect
// from the payload).
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case None, "", "auto":
		return None, nil
	case Gzip, Zstd, Snappy, S2, LZ4, Deflate:
		return Format(name), nil
	default:
		return None, errors.Newf(errors.ErrorTypeConfig, "unknown compression format %q", name)
	}
}
