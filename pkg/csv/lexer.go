package csv

import (
	"context"
	"unicode/utf8"

	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/pool"
)

// lexState tracks where the lexer is inside the CSV grammar.
type lexState uint8

const (
	// stateFieldStart is the start of a field.
	stateFieldStart lexState = iota
	// stateInField is inside an unquoted field.
	stateInField
	// stateInQuotedField is inside a quoted field.
	stateInQuotedField
	// stateAfterQuote follows a quote inside a quoted field; the next
	// character decides between an escaped quote and the field's end.
	stateAfterQuote
	// stateAfterCR follows a carriage return; the next character decides
	// between a CRLF pair and a lone CR record delimiter.
	stateAfterCR
)

// Lexer is a buffering CSV tokenizer. It accepts input in one or more
// chunks and resumes mid-field, mid-quote, and mid-CRLF across chunk
// boundaries. A Lexer is not safe for concurrent use.
type Lexer struct {
	opts       Options
	state      lexState
	pos        Position
	tokenStart Position
	crStart    Position
	field      []byte
	row        int
	rem        []byte // incomplete trailing UTF-8 bytes between LexBytes calls
	closed     bool
}

// NewLexer creates a lexer. Invalid options fail with a configuration error.
func NewLexer(opts Options) (*Lexer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Lexer{
		opts:       opts.Normalize(),
		pos:        Position{Line: 1, Column: 1},
		tokenStart: Position{Line: 1, Column: 1},
		field:      pool.GetByteBuffer(),
		row:        1,
	}, nil
}

// Close returns internal buffers to the pool. The lexer must not be used
// afterwards.
func (l *Lexer) Close() {
	if l.closed {
		return
	}
	l.closed = true
	pool.PutByteBuffer(l.field)
	l.field = nil
}

// Lex tokenizes one chunk. With stream set, trailing partial state (an open
// field, quote, or CR) is retained for the next call; otherwise remaining
// state is finalized and emitted. Finalizing inside an unterminated quoted
// field is a fatal parse error. The context is checked before every consumed
// character; cancellation surfaces as a cancelled or timeout error, never as
// a parse error.
func (l *Lexer) Lex(ctx context.Context, chunk string, stream bool) ([]Token, error) {
	var tokens []Token
	for _, ch := range chunk {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		l.step(ch, &tokens)
	}
	if !stream {
		if err := l.finalize(&tokens); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}

// LexBytes tokenizes a binary chunk, buffering any incomplete trailing UTF-8
// sequence until the next call completes it.
func (l *Lexer) LexBytes(ctx context.Context, chunk []byte, stream bool) ([]Token, error) {
	data := chunk
	if len(l.rem) > 0 {
		data = append(l.rem, chunk...)
		l.rem = nil
	}

	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}

	if cut < len(data) {
		if !stream {
			return nil, errors.New(errors.ErrorTypeParse, "invalid UTF-8 sequence at end of input")
		}
		l.rem = append([]byte(nil), data[cut:]...)
	}

	return l.Lex(ctx, string(data[:cut]), stream)
}

// Flush finalizes buffered state with no new input.
func (l *Lexer) Flush(ctx context.Context) ([]Token, error) {
	return l.Lex(ctx, "", false)
}

// step consumes one character.
func (l *Lexer) step(ch rune, tokens *[]Token) {
	switch l.state {
	case stateFieldStart:
		switch {
		case ch == l.opts.Quote:
			l.tokenStart = l.pos
			l.state = stateInQuotedField
		case ch == l.opts.Delimiter:
			l.emitFieldDelimiter(tokens, ch)
		case ch == '\r':
			l.crStart = l.pos
			l.state = stateAfterCR
		case ch == '\n':
			l.emitRecordDelimiter(tokens, "\n", l.pos)
		default:
			l.tokenStart = l.pos
			l.field = utf8.AppendRune(l.field, ch)
			l.state = stateInField
		}

	case stateInField:
		switch {
		case ch == l.opts.Delimiter:
			l.emitField(tokens)
			l.emitFieldDelimiter(tokens, ch)
			l.state = stateFieldStart
		case ch == '\r':
			l.emitField(tokens)
			l.crStart = l.pos
			l.state = stateAfterCR
		case ch == '\n':
			l.emitField(tokens)
			l.emitRecordDelimiter(tokens, "\n", l.pos)
			l.state = stateFieldStart
		default:
			l.field = utf8.AppendRune(l.field, ch)
		}

	case stateInQuotedField:
		if ch == l.opts.Quote {
			l.state = stateAfterQuote
		} else {
			l.field = utf8.AppendRune(l.field, ch)
		}

	case stateAfterQuote:
		switch {
		case ch == l.opts.Quote:
			// Escaped quote: "" decodes to one literal quote.
			l.field = utf8.AppendRune(l.field, ch)
			l.state = stateInQuotedField
		case ch == l.opts.Delimiter:
			l.emitField(tokens)
			l.emitFieldDelimiter(tokens, ch)
			l.state = stateFieldStart
		case ch == '\r':
			l.emitField(tokens)
			l.crStart = l.pos
			l.state = stateAfterCR
		case ch == '\n':
			l.emitField(tokens)
			l.emitRecordDelimiter(tokens, "\n", l.pos)
			l.state = stateFieldStart
		default:
			// Content after a closing quote continues the field literally.
			l.field = utf8.AppendRune(l.field, ch)
			l.state = stateInField
		}

	case stateAfterCR:
		if ch == '\n' {
			l.emitRecordDelimiter(tokens, "\r\n", l.crStart)
			l.state = stateFieldStart
			break
		}
		// Lone CR: close the record, then reprocess ch at field start.
		l.emitRecordDelimiter(tokens, "\r", l.crStart)
		l.state = stateFieldStart
		l.step(ch, tokens)
		return
	}

	l.pos = AdvancePos(l.pos, ch)
}

// finalize flushes buffered state at end of input.
func (l *Lexer) finalize(tokens *[]Token) error {
	switch l.state {
	case stateAfterCR:
		l.emitRecordDelimiter(tokens, "\r", l.crStart)
		l.state = stateFieldStart
	case stateInField, stateAfterQuote:
		l.emitField(tokens)
		l.state = stateFieldStart
	case stateInQuotedField:
		return errors.New(errors.ErrorTypeParse, "unexpected end of input while in quoted field").
			WithDetail("line", l.pos.Line).
			WithDetail("column", l.pos.Column)
	}
	return nil
}

func (l *Lexer) emitField(tokens *[]Token) {
	*tokens = append(*tokens, Token{
		Kind:  TokenField,
		Value: string(l.field),
		Location: Location{
			Start:     l.tokenStart,
			End:       l.pos,
			RowNumber: l.row,
		},
	})
	l.field = l.field[:0]
}

func (l *Lexer) emitFieldDelimiter(tokens *[]Token, ch rune) {
	*tokens = append(*tokens, Token{
		Kind:  TokenFieldDelimiter,
		Value: string(ch),
		Location: Location{
			Start:     l.pos,
			End:       AdvancePos(l.pos, ch),
			RowNumber: l.row,
		},
	})
}

func (l *Lexer) emitRecordDelimiter(tokens *[]Token, value string, start Position) {
	end := start
	for _, ch := range value {
		end = AdvancePos(end, ch)
	}
	*tokens = append(*tokens, Token{
		Kind:  TokenRecordDelimiter,
		Value: value,
		Location: Location{
			Start:     start,
			End:       end,
			RowNumber: l.row,
		},
	})
	l.row++
}

// AdvancePos returns the position after consuming ch. Offset counts bytes,
// Column counts characters, and only '\n' starts a new line.
func AdvancePos(p Position, ch rune) Position {
	p.Offset += utf8.RuneLen(ch)
	if ch == '\n' {
		p.Line++
		p.Column = 1
	} else {
		p.Column++
	}
	return p
}
