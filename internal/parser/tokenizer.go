// Package parser splits a single raw record into schema-ordered fields.
//
// The grammar is deliberately smaller than RFC 4180 and matches what GeoLite2
// exports actually contain:
//
//   - fields are separated by ',' and the record ends at the end of the span
//   - a field declared MaybeQuoted may be wrapped in '"' to carry commas;
//     quotes are never escaped or doubled inside a value
//   - the final field runs to the end of the record
//   - a field with no characters, including an empty final field, is the
//     nil empty marker rather than a zero-length value
//
// Tokenizing is destructive: every consumed separator is overwritten with a
// NUL byte and the returned fields are views into the caller's buffer. A span
// can therefore be tokenized exactly once, and its fields are only valid
// until the buffer is refilled. Restore rebuilds the original text for
// diagnostics.
package parser

import (
	"bytes"
	"errors"
	"fmt"

	"geoimport/internal/schema"
)

const (
	sep   = ','
	quote = '"'
	nul   = 0
)

var (
	// ErrUnbalancedQuote reports an opening quote with no closing quote before
	// the end of the record.
	ErrUnbalancedQuote = errors.New("parser: unbalanced quote")

	// ErrFieldCount reports a record with fewer separators than its schema
	// requires.
	ErrFieldCount = errors.New("parser: too few fields")
)

// Field is a borrowed view of one field value. A nil Field is the empty
// marker: the field had no characters between its separators.
type Field []byte

// Empty reports whether the field carried no characters.
func (f Field) Empty() bool { return f == nil }

// String copies the field out of the chunk buffer.
func (f Field) String() string { return string(f) }

// Tokenize splits line into the fields of s, appending them to dst[:0].
// The returned slice reuses dst's backing array when it is large enough.
func Tokenize(dst []Field, line []byte, s *schema.Schema) ([]Field, error) {
	dst = dst[:0]
	last := len(s.Fields) - 1

	pos := 0
	for i, f := range s.Fields {
		var (
			v   Field
			err error
		)
		switch {
		case i == last:
			v, pos = scanUntilTerminator(line, pos)
		case f.Mode == schema.MaybeQuoted:
			v, pos, err = scanMaybeQuoted(line, pos)
		default:
			v, pos, err = scanUnquoted(line, pos)
		}
		if err != nil {
			return dst, fmt.Errorf("field %d (%s): %w", i+1, f.Name, err)
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// scanUnquoted reads up to the next separator. The separator is replaced by a
// terminator and the returned position is the first byte after it.
func scanUnquoted(line []byte, pos int) (Field, int, error) {
	if pos < len(line) && line[pos] == sep {
		line[pos] = nul
		return nil, pos + 1, nil
	}
	if pos > len(line) {
		return nil, pos, ErrFieldCount
	}
	i := bytes.IndexByte(line[pos:], sep)
	if i < 0 {
		return nil, pos, ErrFieldCount
	}
	end := pos + i
	line[end] = nul
	return Field(line[pos:end:end]), end + 1, nil
}

// scanMaybeQuoted reads a quoted value up to its closing quote and then skips
// to the next separator; anything between the two is dropped. Unquoted values
// are scanned like scanUnquoted.
func scanMaybeQuoted(line []byte, pos int) (Field, int, error) {
	if pos >= len(line) || line[pos] != quote {
		return scanUnquoted(line, pos)
	}

	start := pos + 1
	j := bytes.IndexByte(line[start:], quote)
	if j < 0 {
		return nil, pos, ErrUnbalancedQuote
	}
	end := start + j

	k := bytes.IndexByte(line[end+1:], sep)
	if k < 0 {
		return nil, pos, ErrFieldCount
	}
	next := end + 1 + k
	line[next] = nul

	if end == start {
		return nil, next + 1, nil
	}
	return Field(line[start:end:end]), next + 1, nil
}

// scanUntilTerminator takes the rest of the record as the final field.
func scanUntilTerminator(line []byte, pos int) (Field, int) {
	if pos >= len(line) {
		return nil, len(line)
	}
	return Field(line[pos:len(line):len(line)]), len(line)
}

// Restore returns the record text as it was before Tokenize replaced its
// separators. It is meant for error messages.
func Restore(line []byte) string {
	out := make([]byte, len(line))
	for i, c := range line {
		if c == nul {
			c = sep
		}
		out[i] = c
	}
	return string(out)
}
