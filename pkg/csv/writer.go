package csv

import (
	"bufio"
	"io"
	"strings"
)

// Writer serializes rows back to CSV. Fields containing the delimiter, the
// quote, or a line-ending character are quoted, with embedded quotes doubled.
// It is the inverse of the Lexer+Assembler pipeline: writing a header and
// rows and parsing the result reproduces the rows exactly.
type Writer struct {
	dst *bufio.Writer

	// Delimiter is the field separator. Default ','.
	Delimiter rune
	// Quote is the quote character. Default '"'.
	Quote rune
	// UseCRLF terminates records with \r\n when set.
	UseCRLF bool

	err error
}

// NewWriter creates a buffered CSV writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		dst:       bufio.NewWriter(w),
		Delimiter: ',',
		Quote:     '"',
	}
}

// Write emits a single record terminated with the configured line ending.
func (w *Writer) Write(record []string) error {
	if w.err != nil {
		return w.err
	}
	for i, field := range record {
		if i > 0 {
			if _, err := w.dst.WriteRune(w.Delimiter); err != nil {
				w.err = err
				return err
			}
		}
		if err := w.writeField(field); err != nil {
			w.err = err
			return err
		}
	}
	terminator := "\n"
	if w.UseCRLF {
		terminator = "\r\n"
	}
	if _, err := w.dst.WriteString(terminator); err != nil {
		w.err = err
		return err
	}
	return nil
}

// WriteAll writes multiple records, stopping at the first error.
func (w *Writer) WriteAll(records [][]string) error {
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes pending buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *Writer) writeField(field string) error {
	if !w.fieldNeedsQuote(field) {
		_, err := w.dst.WriteString(field)
		return err
	}
	if _, err := w.dst.WriteRune(w.Quote); err != nil {
		return err
	}
	for _, ch := range field {
		if ch == w.Quote {
			if _, err := w.dst.WriteRune(w.Quote); err != nil {
				return err
			}
		}
		if _, err := w.dst.WriteRune(ch); err != nil {
			return err
		}
	}
	if _, err := w.dst.WriteRune(w.Quote); err != nil {
		return err
	}
	return nil
}

func (w *Writer) fieldNeedsQuote(field string) bool {
	if field == "" {
		return false
	}
	return strings.ContainsRune(field, w.Delimiter) ||
		strings.ContainsRune(field, w.Quote) ||
		strings.ContainsAny(field, "\r\n")
}
