// Package chunk partitions one input file into record-aligned chunks.
//
// A Source is the only owner of the file's read cursor. Workers call Acquire
// with their own buffer; reads are serialized so the file is consumed once,
// in order, and every chunk except possibly the last ends on a record
// terminator. Bytes that follow the last terminator in a full buffer are not
// claimed and are read again at the start of the next chunk.
package chunk

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrExhausted signals the normal end of input. It is not a failure.
var ErrExhausted = errors.New("chunk: source exhausted")

// ErrAborted is returned by Acquire once the abort check reports true. The
// run's failure is recorded elsewhere.
var ErrAborted = errors.New("chunk: source aborted")

// Chunk is a record-aligned range of the source held in a worker's buffer.
type Chunk struct {
	// Data is the valid prefix of the worker buffer.
	Data []byte
	// Offset is where Data starts in the source file. Diagnostic only.
	Offset int64
}

// Source hands out consecutive chunks of r between start and size.
type Source struct {
	mu        sync.Mutex
	r         io.ReaderAt
	offset    int64
	end       int64
	remaining int64
	err       error
	aborted   func() bool
}

// NewSource returns a Source reading r from start (typically the header
// length) up to size bytes.
func NewSource(r io.ReaderAt, start, size int64) *Source {
	rem := size - start
	if rem < 0 {
		rem = 0
	}
	return &Source{r: r, offset: start, end: size, remaining: rem}
}

// SetAbort installs a check that Acquire consults under the source lock
// before every read. Call it before the first Acquire.
func (s *Source) SetAbort(aborted func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = aborted
}

// Acquire fills buf with the next chunk. It returns ErrExhausted once the
// input is consumed and ErrAborted once the abort check fires. Any other
// error is fatal for the run and is returned to every later caller as well.
func (s *Source) Acquire(buf []byte) (Chunk, error) {
	if len(buf) == 0 {
		return Chunk{}, errors.New("chunk: acquire with empty buffer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return Chunk{}, s.err
	}
	if s.aborted != nil && s.aborted() {
		return Chunk{}, ErrAborted
	}
	if s.remaining <= 0 {
		return Chunk{}, ErrExhausted
	}

	n, err := s.r.ReadAt(buf, s.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = fmt.Errorf("read at offset %d: %w", s.offset, err)
		return Chunk{}, s.err
	}
	if n == 0 {
		return Chunk{}, ErrExhausted
	}

	data := buf[:n]
	atEOF := errors.Is(err, io.EOF) || s.offset+int64(n) >= s.end
	if !atEOF {
		end, _, rerr := ResolveBoundary(data)
		if rerr != nil {
			s.err = fmt.Errorf("at offset %d (buffer %d bytes): %w", s.offset, len(buf), rerr)
			return Chunk{}, s.err
		}
		data = data[:end]
	}

	c := Chunk{Data: data, Offset: s.offset}
	s.offset += int64(len(data))
	s.remaining -= int64(len(data))
	return c, nil
}

// Remaining returns the number of unclaimed bytes.
func (s *Source) Remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}
