package pipeline

import (
	"io"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
)

// sink consumes assembled records one at a time.
type sink interface {
	Write(rec csv.Record) error
	Flush() error
}

func newSink(w io.Writer, format string, opts csv.Options) (sink, error) {
	switch format {
	case "json":
		return &jsonSink{enc: json.NewEncoder(w)}, nil
	case "csv":
		return &csvSink{w: csv.NewWriter(w)}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown output format %q", format)
	}
}

// jsonSink writes one JSON value per line: an object for object-shaped
// records, an array for array-shaped ones.
type jsonSink struct {
	enc *json.Encoder
}

func (s *jsonSink) Write(rec csv.Record) error {
	var v interface{}
	if rec.Object != nil {
		v = rec.Object
	} else {
		v = rec.Array
	}
	if err := s.enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "encoding record")
	}
	return nil
}

func (s *jsonSink) Flush() error { return nil }

// csvSink re-serializes records as CSV. Object-shaped records get a header
// row derived from the first record, with columns in sorted order so output
// is deterministic.
type csvSink struct {
	w      *csv.Writer
	header []string
}

func (s *csvSink) Write(rec csv.Record) error {
	if rec.Array != nil {
		return s.w.Write(rec.Array)
	}
	if s.header == nil {
		s.header = make([]string, 0, len(rec.Object))
		for name := range rec.Object {
			s.header = append(s.header, name)
		}
		sort.Strings(s.header)
		if err := s.w.Write(s.header); err != nil {
			return err
		}
	}
	row := make([]string, len(s.header))
	for i, name := range s.header {
		row[i] = rec.Object[name]
	}
	return s.w.Write(row)
}

func (s *csvSink) Flush() error { return s.w.Flush() }
