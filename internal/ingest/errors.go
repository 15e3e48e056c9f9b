package ingest

import (
	"errors"
	"fmt"

	"geoimport/internal/parser"
)

// ErrMalformed marks a record whose fields tokenized but could not be
// converted (non-numeric geoname id, unparsable network).
var ErrMalformed = errors.New("malformed record")

// RecordError ties a failure to the record that caused it.
type RecordError struct {
	Worker int
	// Offset is the byte offset of the record in the source file.
	Offset int64
	// Record is the raw record text.
	Record string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("worker %d: record at offset %d: %v: %q", e.Worker, e.Offset, e.Err, e.Record)
}

func (e *RecordError) Unwrap() error { return e.Err }

// newRecordError copies the record out of the chunk buffer, undoing the
// tokenizer's in-place edits.
func newRecordError(worker int, offset int64, line []byte, err error) *RecordError {
	return &RecordError{Worker: worker, Offset: offset, Record: parser.Restore(line), Err: err}
}
