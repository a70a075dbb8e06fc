package csv

import (
	"unicode/utf8"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// OutputFormat selects the shape of assembled records.
type OutputFormat string

const (
	// FormatObject emits records as header-keyed maps. The header is
	// supplied or inferred from the first row.
	FormatObject OutputFormat = "object"
	// FormatArray emits records as positional string slices. No header row
	// is consumed; every row is a record.
	FormatArray OutputFormat = "array"
)

// DefaultMaxFieldCount bounds the number of fields a single record may hold.
const DefaultMaxFieldCount = 100000

// Options configures lexing and assembly. The zero value is usable after
// Normalize. Every field is a plain value, so Options may cross an execution
// unit boundary by copy (cancellation and pool handles never live here).
type Options struct {
	// Delimiter separates fields. Default ','.
	Delimiter rune `json:"delimiter"`
	// Quote opens and closes quoted fields. Default '"'.
	Quote rune `json:"quote"`
	// Header supplies field names up front instead of inferring them from
	// the first row. Object format only.
	Header []string `json:"header,omitempty"`
	// Format selects object- or array-shaped records. Default object.
	Format OutputFormat `json:"format"`
	// SkipEmptyLines drops records for blank lines instead of emitting
	// all-empty records.
	SkipEmptyLines bool `json:"skipEmptyLines"`
	// MaxFieldCount bounds fields per record. Default DefaultMaxFieldCount.
	MaxFieldCount int `json:"maxFieldCount"`
	// Charset names the source encoding of binary input. Empty means UTF-8.
	Charset string `json:"charset,omitempty"`
}

// Normalize returns a copy with defaults applied.
func (o Options) Normalize() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	if o.Format == "" {
		o.Format = FormatObject
	}
	if o.MaxFieldCount == 0 {
		o.MaxFieldCount = DefaultMaxFieldCount
	}
	return o
}

// Validate checks option invariants. Violations are configuration errors.
func (o Options) Validate() error {
	o = o.Normalize()
	if o.Delimiter == o.Quote {
		return errors.New(errors.ErrorTypeConfig, "delimiter and quote must differ")
	}
	for _, r := range []rune{o.Delimiter, o.Quote} {
		if r == '\r' || r == '\n' {
			return errors.New(errors.ErrorTypeConfig, "delimiter and quote must not be line-ending characters")
		}
		if r == utf8.RuneError {
			return errors.New(errors.ErrorTypeConfig, "delimiter and quote must be valid characters")
		}
	}
	if o.Format != FormatObject && o.Format != FormatArray {
		return errors.Newf(errors.ErrorTypeConfig, "unknown output format %q", o.Format)
	}
	if o.MaxFieldCount < 1 {
		return errors.Newf(errors.ErrorTypeConfig, "maxFieldCount must be positive, got %d", o.MaxFieldCount)
	}
	if len(o.Header) > 0 {
		if err := validateHeader(o.Header, errors.ErrorTypeConfig); err != nil {
			return err
		}
	}
	return nil
}

// validateHeader enforces the header invariant: non-empty, unique,
// non-empty names. The error type differs by origin: supplied headers fail
// as configuration errors, inferred headers as parse errors.
func validateHeader(header []string, errType errors.ErrorType) error {
	if len(header) == 0 {
		return errors.New(errType, "empty header")
	}
	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if name == "" {
			return errors.New(errType, "header contains an empty field name")
		}
		if _, dup := seen[name]; dup {
			return errors.Newf(errType, "duplicate header %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
