package ingest

import (
	"sync"
	"sync/atomic"
)

// AbortSignal is a run-wide stop flag. Once set it never clears, and it keeps
// the error that set it first; later failures are treated as consequences.
type AbortSignal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
	err  error
}

// NewAbortSignal returns a clear signal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{done: make(chan struct{})}
}

// Abort sets the signal. It reports whether this call was the first; only the
// first caller's err is kept.
func (a *AbortSignal) Abort(err error) bool {
	first := false
	a.once.Do(func() {
		a.err = err
		a.set.Store(true)
		close(a.done)
		first = true
	})
	return first
}

// Aborted reports whether the signal is set. It is cheap enough to poll per
// record.
func (a *AbortSignal) Aborted() bool { return a.set.Load() }

// Err returns the first failure, or nil while the signal is clear.
func (a *AbortSignal) Err() error {
	if !a.set.Load() {
		return nil
	}
	return a.err
}

// Done is closed when the signal is set.
func (a *AbortSignal) Done() <-chan struct{} { return a.done }
