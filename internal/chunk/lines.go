package chunk

import "bytes"

// LineReader yields the records of a chunk one at a time. Returned spans are
// views into the chunk buffer with the terminator (and a preceding '\r')
// removed; callers may modify them in place.
type LineReader struct {
	buf   []byte
	pos   int
	start int
}

// NewLineReader returns a reader positioned at the start of data.
func NewLineReader(data []byte) *LineReader {
	return &LineReader{buf: data}
}

// Reset points the reader at a new chunk, reusing the reader value.
func (r *LineReader) Reset(data []byte) {
	r.buf = data
	r.pos = 0
	r.start = 0
}

// Start returns the chunk-relative offset of the span last returned by Next.
func (r *LineReader) Start() int { return r.start }

// Next returns the next record span, or ok=false once the chunk is consumed.
// A final span without a terminator (end of file) is returned as a record.
func (r *LineReader) Next() (line []byte, ok bool) {
	if r.pos >= len(r.buf) {
		return nil, false
	}
	r.start = r.pos
	rest := r.buf[r.pos:]
	i := bytes.IndexByte(rest, Terminator)
	if i < 0 {
		line = rest
		r.pos = len(r.buf)
	} else {
		line = rest[:i]
		r.pos += i + 1
	}
	return stripCR(line), true
}

// stripCR removes a trailing '\r' left by CRLF line endings.
func stripCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
