package csv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
)

func TestOptionsNormalizeDefaults(t *testing.T) {
	opts := csv.Options{}.Normalize()
	assert.Equal(t, ',', opts.Delimiter)
	assert.Equal(t, '"', opts.Quote)
	assert.Equal(t, csv.FormatObject, opts.Format)
	assert.Equal(t, csv.DefaultMaxFieldCount, opts.MaxFieldCount)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts csv.Options
		ok   bool
	}{
		{name: "zero value", opts: csv.Options{}, ok: true},
		{name: "custom dialect", opts: csv.Options{Delimiter: '\t', Quote: '\''}, ok: true},
		{name: "delimiter equals quote", opts: csv.Options{Delimiter: '"'}, ok: false},
		{name: "newline delimiter", opts: csv.Options{Delimiter: '\n'}, ok: false},
		{name: "carriage return quote", opts: csv.Options{Quote: '\r'}, ok: false},
		{name: "negative field limit", opts: csv.Options{MaxFieldCount: -1}, ok: false},
		{name: "unknown format", opts: csv.Options{Format: "tuple"}, ok: false},
		{name: "empty header name", opts: csv.Options{Header: []string{"a", ""}}, ok: false},
		{name: "duplicate header name", opts: csv.Options{Header: []string{"a", "a"}}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}
