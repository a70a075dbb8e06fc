package csv_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/csv"
)

func TestWriterQuoting(t *testing.T) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write([]string{"plain", "a,b", `say "hi"`, "line\nbreak", ""}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "plain,\"a,b\",\"say \"\"hi\"\"\",\"line\nbreak\",\n", buf.String())
}

func TestWriterCRLF(t *testing.T) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	require.NoError(t, w.WriteAll([][]string{{"a"}, {"b"}}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "a\r\nb\r\n", buf.String())
}

func TestWriterCustomDialect(t *testing.T) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Delimiter = ';'
	w.Quote = '\''
	require.NoError(t, w.Write([]string{"a;b", "c"}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "'a;b';c\n", buf.String())
}

func TestWriterRoundTrip(t *testing.T) {
	rows := [][]string{
		{"name", "note"},
		{"alice", "says \"hi\""},
		{"bob", "multi\nline, with comma"},
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, w.Flush())

	records := mustParse(t, buf.String(), csv.Options{Format: csv.FormatArray})
	require.Len(t, records, len(rows))
	for i, row := range rows {
		assert.Equal(t, row, records[i].Array)
	}
}
