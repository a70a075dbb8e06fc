package csv

import (
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/pool"
)

// Assembler consumes a token sequence and emits records. It owns header
// inference and validation for object-shaped output. An Assembler is not
// safe for concurrent use.
//
// The row buffer is reused across records; emitted records always copy out
// of it, so record N+1 can never observe values from record N.
type Assembler struct {
	opts       Options
	header     []string
	headerSet  bool
	row        []string
	fieldIndex int
	dirty      bool
	closed     bool
}

// NewAssembler creates an assembler. A supplied header is validated up
// front: empty or duplicate names are configuration errors. Array format
// is headerless; every row is a record.
func NewAssembler(opts Options) (*Assembler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	o := opts.Normalize()

	a := &Assembler{
		opts: o,
		row:  pool.GetRowBuffer(),
	}
	if o.Format == FormatObject && len(o.Header) > 0 {
		a.header = append([]string(nil), o.Header...)
		a.headerSet = true
	}
	if o.Format == FormatArray {
		// Headerless mode: no header row is consumed.
		a.headerSet = true
	}
	return a, nil
}

// Close returns internal buffers to the pool. The assembler must not be
// used afterwards.
func (a *Assembler) Close() {
	if a.closed {
		return
	}
	a.closed = true
	pool.PutRowBuffer(a.row)
	a.row = nil
}

// Header returns the effective header, or nil if not yet set.
func (a *Assembler) Header() []string {
	if !a.headerSet {
		return nil
	}
	return a.header
}

// Assemble consumes tokens in emission order. With stream set, a pending
// partial row is retained for the next call; otherwise Flush semantics apply
// at the end.
func (a *Assembler) Assemble(tokens []Token, stream bool) ([]Record, error) {
	var records []Record
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenField:
			if err := a.setField(tok.Value); err != nil {
				return nil, err
			}

		case TokenFieldDelimiter:
			a.fieldIndex++
			a.dirty = true
			if a.fieldIndex+1 > a.opts.MaxFieldCount {
				return nil, a.fieldCountError(a.fieldIndex + 1)
			}

		case TokenRecordDelimiter:
			recs, err := a.endRecord()
			if err != nil {
				return nil, err
			}
			records = append(records, recs...)
		}
	}
	if !stream {
		recs, err := a.Flush()
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// Flush emits one final record from the pending row when the input ended
// without a trailing record delimiter. Flushing twice in a row never emits a
// second record.
func (a *Assembler) Flush() ([]Record, error) {
	if !a.dirty {
		return nil, nil
	}
	if !a.headerSet {
		// Input consisted of a single header row with no trailing delimiter.
		if err := a.inferHeader(); err != nil {
			return nil, err
		}
		a.reset()
		return nil, nil
	}
	rec := a.buildRecord()
	a.reset()
	return []Record{rec}, nil
}

func (a *Assembler) setField(value string) error {
	if a.fieldIndex+1 > a.opts.MaxFieldCount {
		return a.fieldCountError(a.fieldIndex + 1)
	}
	for len(a.row) <= a.fieldIndex {
		a.row = append(a.row, "")
	}
	a.row[a.fieldIndex] = value
	a.dirty = true
	return nil
}

func (a *Assembler) endRecord() ([]Record, error) {
	if !a.headerSet {
		if !a.dirty && a.opts.SkipEmptyLines {
			// Blank line before the header row carries no names.
			a.reset()
			return nil, nil
		}
		if err := a.inferHeader(); err != nil {
			return nil, err
		}
		a.reset()
		return nil, nil
	}

	if !a.dirty {
		if a.opts.SkipEmptyLines {
			a.reset()
			return nil, nil
		}
		rec := a.buildEmptyRecord()
		a.reset()
		return []Record{rec}, nil
	}

	rec := a.buildRecord()
	a.reset()
	return []Record{rec}, nil
}

// inferHeader promotes the pending row to the header. Inferred header
// violations are parse errors: the input itself is malformed.
func (a *Assembler) inferHeader() error {
	header := make([]string, a.rowLen())
	copy(header, a.row)
	if err := validateHeader(header, errors.ErrorTypeParse); err != nil {
		return err
	}
	a.header = header
	a.headerSet = true
	return nil
}

// rowLen is the logical row length: the highest touched field index plus
// one, independent of how far the buffer has physically grown.
func (a *Assembler) rowLen() int {
	if !a.dirty {
		return 0
	}
	return a.fieldIndex + 1
}

func (a *Assembler) buildRecord() Record {
	n := a.rowLen()
	if a.opts.Format == FormatArray {
		values := make([]string, n)
		copy(values, a.row)
		return ArrayRecord(values)
	}
	fields := make(map[string]string, len(a.header))
	for i, name := range a.header {
		if i < len(a.row) && i < n {
			fields[name] = a.row[i]
		} else {
			// Missing trailing fields default to the empty string.
			fields[name] = ""
		}
	}
	return ObjectRecord(fields)
}

func (a *Assembler) buildEmptyRecord() Record {
	if a.opts.Format == FormatArray {
		return ArrayRecord([]string{""})
	}
	fields := make(map[string]string, len(a.header))
	for _, name := range a.header {
		fields[name] = ""
	}
	return ObjectRecord(fields)
}

// reset clears the row buffer between records. Values are blanked so stale
// fields can never bleed into the next record.
func (a *Assembler) reset() {
	for i := range a.row {
		a.row[i] = ""
	}
	a.row = a.row[:0]
	a.fieldIndex = 0
	a.dirty = false
}

func (a *Assembler) fieldCountError(count int) error {
	return errors.Newf(errors.ErrorTypeSizeLimit,
		"field count %d exceeds limit %d", count, a.opts.MaxFieldCount).
		WithDetail("count", count).
		WithDetail("limit", a.opts.MaxFieldCount)
}
