package compression_test

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"testing"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/compression"
	"github.com/ajitpratap0/comet/pkg/errors"
)

var payload = []byte("name,age\nalice,30\nbob,25\n")

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func snappied(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func s2ed(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := s2.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func lz4ed(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func deflated(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	assert.Equal(t, compression.Gzip, compression.Detect(gzipped(t, payload)))
	assert.Equal(t, compression.Zstd, compression.Detect(zstded(t, payload)))
	assert.Equal(t, compression.Snappy, compression.Detect(snappied(t, payload)))
	assert.Equal(t, compression.LZ4, compression.Detect(lz4ed(t, payload)))
	assert.Equal(t, compression.None, compression.Detect(payload))
	assert.Equal(t, compression.None, compression.Detect(nil))
}

func TestDecompressRoundTrip(t *testing.T) {
	tests := []struct {
		format compression.Format
		data   []byte
	}{
		{compression.None, payload},
		{compression.Gzip, gzipped(t, payload)},
		{compression.Zstd, zstded(t, payload)},
		{compression.Snappy, snappied(t, payload)},
		{compression.S2, s2ed(t, payload)},
		{compression.LZ4, lz4ed(t, payload)},
		{compression.Deflate, deflated(t, payload)},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := compression.Decompress(tt.data, tt.format)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestDetectThenRead(t *testing.T) {
	data := gzipped(t, payload)
	format := compression.Detect(data[:8])
	out, err := compression.Decompress(data, format)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestNewReaderRejectsCorruptGzip(t *testing.T) {
	corrupt := []byte{0x1f, 0x8b, 0xff, 0xff}
	_, err := compression.NewReader(bytes.NewReader(corrupt), compression.Gzip)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParseFormat(t *testing.T) {
	f, err := compression.ParseFormat("gzip")
	require.NoError(t, err)
	assert.Equal(t, compression.Gzip, f)

	f, err = compression.ParseFormat("auto")
	require.NoError(t, err)
	assert.Equal(t, compression.None, f)

	_, err = compression.ParseFormat("brotli")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
