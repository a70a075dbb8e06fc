// Package csv implements Comet's streaming CSV tokenizer and record
// assembler. The Lexer turns arbitrarily chunked character input into a
// sequence of tokens; the Assembler turns tokens into records. Both resume
// cleanly across chunk boundaries, so any chunking of a valid input yields
// the same token and record sequences as parsing it whole.
package csv

// TokenKind identifies the lexical class of a token.
type TokenKind uint8

const (
	// TokenField is field content (possibly empty).
	TokenField TokenKind = iota
	// TokenFieldDelimiter separates fields within a record.
	TokenFieldDelimiter
	// TokenRecordDelimiter terminates a record. Value holds the verbatim
	// line ending: "\r\n", "\r", or "\n".
	TokenRecordDelimiter
)

// String returns the wire name of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenField:
		return "field"
	case TokenFieldDelimiter:
		return "field-delimiter"
	case TokenRecordDelimiter:
		return "record-delimiter"
	default:
		return "unknown"
	}
}

// Position is a point in the input. Line and Column are 1-based and count
// characters; Offset is 0-based and counts bytes.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// Location is the span a token covers plus the 1-based row it belongs to.
type Location struct {
	Start     Position `json:"start"`
	End       Position `json:"end"`
	RowNumber int      `json:"rowNumber"`
}

// Token is an atomic lexical unit with position metadata. Tokens are
// immutable once produced and must be consumed in emission order.
type Token struct {
	Kind     TokenKind `json:"kind"`
	Value    string    `json:"value"`
	Location Location  `json:"location"`
}
