// Package index implements the parallel indexing backend: an alternative
// token producer that scans a whole buffer for delimiter and quote-boundary
// positions with data-parallel segment workers, then converts the merged
// index into exactly the token sequence the sequential lexer would emit.
// It is an optimization, not a semantic variant: for any valid CSV input the
// output is indistinguishable from csv.Lexer, token by token, location by
// location.
package index

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
)

const (
	// DefaultSegmentSize is the scan granularity per dispatch.
	DefaultSegmentSize = 64 * 1024
	// DefaultMaxDispatchSize bounds a single dispatch; larger segments are
	// recursively split and their results stitched back in original order.
	DefaultMaxDispatchSize = 1024 * 1024
)

// Config tunes the indexer.
type Config struct {
	// SegmentSize is the target segment length in bytes.
	SegmentSize int
	// MaxDispatchSize is the hard per-dispatch limit.
	MaxDispatchSize int
	// Workers bounds concurrent segment scans. Defaults to NumCPU.
	Workers int
}

// Indexer is a parallel token producer over in-memory buffers.
type Indexer struct {
	cfg Config
}

// New creates an indexer with defaults applied.
func New(cfg Config) *Indexer {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if cfg.MaxDispatchSize <= 0 {
		cfg.MaxDispatchSize = DefaultMaxDispatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Indexer{cfg: cfg}
}

// span is a half-open byte range of the input buffer.
type span struct {
	start, end int
}

// segments partitions the buffer, recursively splitting anything above the
// dispatch limit.
func (ix *Indexer) segments(n int) []span {
	var out []span
	var split func(start, end int)
	split = func(start, end int) {
		if end-start > ix.cfg.MaxDispatchSize {
			mid := start + (end-start)/2
			split(start, mid)
			split(mid, end)
			return
		}
		out = append(out, span{start, end})
	}
	for start := 0; start < n; start += ix.cfg.SegmentSize {
		end := start + ix.cfg.SegmentSize
		if end > n {
			end = n
		}
		split(start, end)
	}
	return out
}

// Tokens produces the full token sequence for data. The scan runs one
// goroutine per segment (bounded by Workers); results merge by segment
// order, never arrival order, so output order is deterministic.
//
// The indexer requires a single-byte delimiter and quote; anything else is
// a capability error, signalling the caller to use the sequential lexer.
func (ix *Indexer) Tokens(ctx context.Context, data []byte, opts csv.Options) ([]csv.Token, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	if utf8.RuneLen(opts.Delimiter) != 1 || utf8.RuneLen(opts.Quote) != 1 {
		return nil, errors.New(errors.ErrorTypeCapability,
			"parallel indexer requires single-byte delimiter and quote")
	}
	delimiter := byte(opts.Delimiter)
	quote := byte(opts.Quote)

	segs := ix.segments(len(data))
	scans := make([]segmentScan, len(segs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers)
	for i, sg := range segs {
		i, sg := i, sg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.FromContext(err)
			}
			scans[i] = scanSegment(data[sg.start:sg.end], sg.start, delimiter, quote)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.FromContext(err)
	}

	// Merge pass: prefix-XOR of segment parities resolves each segment's
	// entry state; candidates whose local parity disagrees with it were
	// inside a quoted field and are discarded.
	var seps []candidate
	var entry uint8
	for i := range scans {
		for _, c := range scans[i].candidates {
			if c.parity^entry == 0 {
				seps = append(seps, c)
			}
		}
		entry ^= scans[i].parity
	}
	if entry != 0 {
		return nil, errors.New(errors.ErrorTypeParse, "unexpected end of input while in quoted field")
	}

	return ix.buildTokens(ctx, data, seps, delimiter, quote)
}

// buildTokens converts the merged separator index into the token sequence,
// tracking positions exactly as the sequential lexer does.
func (ix *Indexer) buildTokens(ctx context.Context, data []byte, seps []candidate, delimiter, quote byte) ([]csv.Token, error) {
	tokens := make([]csv.Token, 0, len(seps)*2)
	pos := csv.Position{Line: 1, Column: 1}
	row := 1
	cursor := 0

	emitField := func(end int) {
		if end == cursor {
			return
		}
		start := pos
		value := decodeField(data[cursor:end], quote)
		pos = advanceOver(pos, data[cursor:end])
		tokens = append(tokens, csv.Token{
			Kind:  csv.TokenField,
			Value: value,
			Location: csv.Location{
				Start:     start,
				End:       pos,
				RowNumber: row,
			},
		})
	}

	for i := 0; i < len(seps); i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		s := seps[i]
		emitField(s.offset)

		switch s.kind {
		case sepFieldDelimiter:
			end := csv.AdvancePos(pos, rune(delimiter))
			tokens = append(tokens, csv.Token{
				Kind:  csv.TokenFieldDelimiter,
				Value: string(rune(delimiter)),
				Location: csv.Location{
					Start:     pos,
					End:       end,
					RowNumber: row,
				},
			})
			pos = end
			cursor = s.offset + 1

		case sepCR:
			value := "\r"
			width := 1
			if i+1 < len(seps) && seps[i+1].kind == sepLF && seps[i+1].offset == s.offset+1 {
				value = "\r\n"
				width = 2
				i++
			}
			end := pos
			for _, ch := range value {
				end = csv.AdvancePos(end, ch)
			}
			tokens = append(tokens, csv.Token{
				Kind:  csv.TokenRecordDelimiter,
				Value: value,
				Location: csv.Location{
					Start:     pos,
					End:       end,
					RowNumber: row,
				},
			})
			pos = end
			row++
			cursor = s.offset + width

		case sepLF:
			end := csv.AdvancePos(pos, '\n')
			tokens = append(tokens, csv.Token{
				Kind:  csv.TokenRecordDelimiter,
				Value: "\n",
				Location: csv.Location{
					Start:     pos,
					End:       end,
					RowNumber: row,
				},
			})
			pos = end
			row++
			cursor = s.offset + 1
		}
	}

	// Trailing field with no terminating delimiter, matching the sequential
	// lexer's finalize behavior.
	emitField(len(data))

	if len(tokens) == 0 {
		return nil, nil
	}
	return tokens, nil
}

// decodeField extracts a field value from its raw byte region. Regions with
// no quote byte pass through; quoted regions get the second, narrower pass:
// a replay of the lexer's field states over just this region, stripping
// structural quotes and collapsing escaped quotes.
func decodeField(b []byte, quote byte) string {
	if bytes.IndexByte(b, quote) < 0 {
		return string(b)
	}

	const (
		fsStart = iota
		fsIn
		fsInQuoted
		fsAfterQuote
	)
	var sb strings.Builder
	sb.Grow(len(b))
	state := fsStart
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch state {
		case fsStart:
			if c == quote {
				state = fsInQuoted
			} else {
				sb.WriteByte(c)
				state = fsIn
			}
		case fsIn:
			sb.WriteByte(c)
		case fsInQuoted:
			if c == quote {
				state = fsAfterQuote
			} else {
				sb.WriteByte(c)
			}
		case fsAfterQuote:
			sb.WriteByte(c)
			if c == quote {
				state = fsInQuoted
			} else {
				state = fsIn
			}
		}
	}
	return sb.String()
}

// advanceOver advances pos over a byte region rune by rune.
func advanceOver(p csv.Position, b []byte) csv.Position {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		p = csv.AdvancePos(p, r)
		b = b[size:]
	}
	return p
}
