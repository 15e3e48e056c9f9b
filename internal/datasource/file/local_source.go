// Package file opens the local input file for positional, concurrent reads.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrNotRegular is returned for directories, devices and other non-files.
var ErrNotRegular = errors.New("not a regular file")

// Local is an input file on local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path. Nothing is touched until Stat or
// Open is called.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// Stat checks that the path exists and is a regular file. Errors keep the
// underlying cause for errors.Is (e.g. os.ErrNotExist).
func (l *Local) Stat() (os.FileInfo, error) {
	fi, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", l.path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", l.path, ErrNotRegular)
	}
	return fi, nil
}

// File is an open input file. ReadAt is safe for concurrent use.
type File struct {
	*os.File
	size int64
}

// Size is the file size observed at open time.
func (f *File) Size() int64 { return f.size }

// Open opens the file read-only and hints the kernel that it will be read
// sequentially. A context that is already done short-circuits the open.
func (l *Local) Open(ctx context.Context) (*File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fi, err := l.Stat()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)
	return &File{File: f, size: fi.Size()}, nil
}
