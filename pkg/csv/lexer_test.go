package csv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
)

func lexAll(t *testing.T, input string, opts csv.Options) []csv.Token {
	t.Helper()
	lx, err := csv.NewLexer(opts)
	require.NoError(t, err)
	defer lx.Close()
	tokens, err := lx.Lex(context.Background(), input, false)
	require.NoError(t, err)
	return tokens
}

func tokenValues(tokens []csv.Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind.String() + ":" + tok.Value
	}
	return out
}

func TestLexerBasicRows(t *testing.T) {
	tokens := lexAll(t, "a,b\nc,d\n", csv.Options{})
	assert.Equal(t, []string{
		"field:a", "field-delimiter:,", "field:b", "record-delimiter:\n",
		"field:c", "field-delimiter:,", "field:d", "record-delimiter:\n",
	}, tokenValues(tokens))
}

func TestLexerQuotedFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "embedded delimiter",
			input: "\"a,b\",c\n",
			want:  []string{"field:a,b", "field-delimiter:,", "field:c", "record-delimiter:\n"},
		},
		{
			name:  "escaped quote",
			input: "\"say \"\"hi\"\"\"\n",
			want:  []string{"field:say \"hi\"", "record-delimiter:\n"},
		},
		{
			name:  "embedded newline",
			input: "\"line1\nline2\",x\n",
			want:  []string{"field:line1\nline2", "field-delimiter:,", "field:x", "record-delimiter:\n"},
		},
		{
			name:  "empty quoted field",
			input: "\"\",b\n",
			want:  []string{"field:", "field-delimiter:,", "field:b", "record-delimiter:\n"},
		},
		{
			name:  "content after closing quote joins field",
			input: "\"ab\"cd,e\n",
			want:  []string{"field:abcd", "field-delimiter:,", "field:e", "record-delimiter:\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenValues(lexAll(t, tt.input, csv.Options{})))
		})
	}
}

func TestLexerLineEndings(t *testing.T) {
	tokens := lexAll(t, "a\r\nb\rc\n", csv.Options{})
	assert.Equal(t, []string{
		"field:a", "record-delimiter:\r\n",
		"field:b", "record-delimiter:\r",
		"field:c", "record-delimiter:\n",
	}, tokenValues(tokens))
}

func TestLexerRowNumbers(t *testing.T) {
	tokens := lexAll(t, "a\nb\nc", csv.Options{})
	rows := make([]int, len(tokens))
	for i, tok := range tokens {
		rows[i] = tok.Location.RowNumber
	}
	assert.Equal(t, []int{1, 1, 2, 2, 3}, rows)
}

func TestLexerPositions(t *testing.T) {
	tokens := lexAll(t, "a,b\nc", csv.Options{})
	require.Len(t, tokens, 5)

	assert.Equal(t, csv.Position{Line: 1, Column: 1, Offset: 0}, tokens[0].Location.Start)
	assert.Equal(t, csv.Position{Line: 1, Column: 2, Offset: 1}, tokens[0].Location.End)
	assert.Equal(t, csv.Position{Line: 1, Column: 2, Offset: 1}, tokens[1].Location.Start)
	assert.Equal(t, csv.Position{Line: 1, Column: 3, Offset: 2}, tokens[2].Location.Start)

	// Newline advances the line and resets the column.
	assert.Equal(t, csv.Position{Line: 2, Column: 1, Offset: 4}, tokens[3].Location.End)
	assert.Equal(t, csv.Position{Line: 2, Column: 1, Offset: 4}, tokens[4].Location.Start)
}

func TestLexerMultibytePositions(t *testing.T) {
	// é is two bytes: offsets count bytes, columns count characters.
	tokens := lexAll(t, "é,x", csv.Options{})
	require.Len(t, tokens, 3)
	assert.Equal(t, csv.Position{Line: 1, Column: 2, Offset: 2}, tokens[0].Location.End)
	assert.Equal(t, csv.Position{Line: 1, Column: 3, Offset: 3}, tokens[2].Location.Start)
}

func TestLexerCustomDialect(t *testing.T) {
	tokens := lexAll(t, "a;b\n'c;d';e\n", csv.Options{Delimiter: ';', Quote: '\''})
	assert.Equal(t, []string{
		"field:a", "field-delimiter:;", "field:b", "record-delimiter:\n",
		"field:c;d", "field-delimiter:;", "field:e", "record-delimiter:\n",
	}, tokenValues(tokens))
}

func TestLexerUnterminatedQuote(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	_, err = lx.Lex(context.Background(), "\"abc", false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
	assert.Contains(t, err.Error(), "quoted field")
}

func TestLexerStreamingChunkInvariance(t *testing.T) {
	input := "naïve,café\r\n\"q,\"\"x\"\"\",z\r\nβ,γ\n,trail"
	want := lexAll(t, input, csv.Options{})

	data := []byte(input)
	for split := 0; split <= len(data); split++ {
		lx, err := csv.NewLexer(csv.Options{})
		require.NoError(t, err)

		var got []csv.Token
		tokens, err := lx.LexBytes(context.Background(), data[:split], true)
		require.NoError(t, err, "split=%d", split)
		got = append(got, tokens...)

		tokens, err = lx.LexBytes(context.Background(), data[split:], true)
		require.NoError(t, err, "split=%d", split)
		got = append(got, tokens...)

		tokens, err = lx.Flush(context.Background())
		require.NoError(t, err, "split=%d", split)
		got = append(got, tokens...)
		lx.Close()

		assert.Equal(t, want, got, "split=%d", split)
	}
}

func TestLexerCRLFAcrossChunks(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	ctx := context.Background()
	tokens, err := lx.Lex(ctx, "a\r", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"field:a"}, tokenValues(tokens))

	tokens, err = lx.Lex(ctx, "\nb", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"record-delimiter:\r\n"}, tokenValues(tokens))
}

func TestLexerLoneCRAtEndOfInput(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	ctx := context.Background()
	_, err = lx.Lex(ctx, "a\r", true)
	require.NoError(t, err)

	tokens, err := lx.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"record-delimiter:\r"}, tokenValues(tokens))
}

func TestLexerIncompleteUTF8(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	// é split across chunks must reassemble.
	ctx := context.Background()
	eBytes := []byte("é")
	tokens, err := lx.LexBytes(ctx, eBytes[:1], true)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	_, err = lx.LexBytes(ctx, eBytes[1:], true)
	require.NoError(t, err)

	tokens, err = lx.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"field:é"}, tokenValues(tokens))
}

func TestLexerIncompleteUTF8AtEnd(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	_, err = lx.LexBytes(context.Background(), []byte{'a', 0xC3}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
}

func TestLexerCancellation(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lx.Lex(ctx, "a,b,c", true)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCancelled))
}

func TestLexerTimeout(t *testing.T) {
	lx, err := csv.NewLexer(csv.Options{})
	require.NoError(t, err)
	defer lx.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = lx.Lex(ctx, "a,b,c", true)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestLexerInvalidOptions(t *testing.T) {
	_, err := csv.NewLexer(csv.Options{Delimiter: '"'})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = csv.NewLexer(csv.Options{Delimiter: '\n'})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
