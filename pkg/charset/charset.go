// Package charset decodes binary CSV payloads into UTF-8 text. It is the
// charset-decoder collaborator consumed by the engine: accelerated backends
// only accept UTF-8, so the planner uses Normalize/IsUTF8 to filter them, and
// the sequential path uses Decode/NewReader for everything else.
//
// Encodings are resolved through the IANA registry (golang.org/x/text).
package charset

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// Normalize canonicalizes a charset label: lower-cased with hyphens,
// underscores, and spaces removed, so "UTF-8", "utf_8", and "utf8" compare
// equal.
func Normalize(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ':
			return -1
		}
		return r
	}, name)
}

// IsUTF8 reports whether the label denotes UTF-8. An empty label means UTF-8.
func IsUTF8(name string) bool {
	n := Normalize(name)
	return n == "" || n == "utf8"
}

// Decode converts bytes in the named charset to a UTF-8 string. With strict
// set, input the decoder cannot represent fails with a parse error instead
// of being substituted with U+FFFD.
func Decode(b []byte, name string, strict bool) (string, error) {
	if IsUTF8(name) {
		if strict && !utf8.Valid(b) {
			return "", errors.New(errors.ErrorTypeParse, "invalid UTF-8 input")
		}
		return string(b), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", errors.Newf(errors.ErrorTypeCapability, "unsupported charset %q", name)
	}

	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeParse, "charset decode failed")
	}
	if strict && strings.ContainsRune(string(out), utf8.RuneError) {
		return "", errors.Newf(errors.ErrorTypeParse, "invalid %s input", name)
	}
	return string(out), nil
}

// NewReader wraps r so that reads yield UTF-8 regardless of the source
// charset. UTF-8 input passes through untouched.
func NewReader(r io.Reader, name string) (io.Reader, error) {
	if IsUTF8(name) {
		return r, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported charset %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
