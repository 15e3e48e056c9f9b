package chunk

import (
	"bytes"
	"errors"
)

// Terminator ends every record.
const Terminator = '\n'

// ErrRecordTooLarge is returned when a full buffer holds no terminator, i.e.
// a single record is longer than one chunk.
var ErrRecordTooLarge = errors.New("chunk: record larger than chunk buffer")

// ResolveBoundary trims a freshly read buffer back to the last complete
// record. It returns the true end (exclusive) and how many trailing bytes were
// excluded; those bytes belong to the next chunk. When the buffer already ends
// with a terminator nothing is excluded.
func ResolveBoundary(buf []byte) (end, excluded int, err error) {
	n := len(buf)
	if n == 0 {
		return 0, 0, nil
	}
	if buf[n-1] == Terminator {
		return n, 0, nil
	}
	i := bytes.LastIndexByte(buf, Terminator)
	if i < 0 {
		return 0, n, ErrRecordTooLarge
	}
	end = i + 1
	return end, n - end, nil
}
