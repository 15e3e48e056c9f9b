package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"geoimport/internal/chunk"
	"geoimport/internal/parser"
	"geoimport/internal/schema"
	"geoimport/internal/sink"
)

const (
	// DefaultWorkers is the pool size when none is requested.
	DefaultWorkers = 3
	// DefaultChunkSize is the per-worker buffer size.
	DefaultChunkSize = 1 << 20
)

// SinkFactory opens the sink a worker will own for its whole lifetime.
type SinkFactory func(ctx context.Context, worker int) (sink.Sink, error)

// PoolSize decides how many workers a payload of the given size gets. A
// positive request replaces DefaultWorkers. The result never exceeds the
// number of whole chunks in the payload and is at least 1.
func PoolSize(requested int, payload, chunkSize int64) int {
	n := DefaultWorkers
	if requested > 0 {
		n = requested
	}
	if chunkSize > 0 {
		if whole := payload / chunkSize; int64(n) > whole {
			n = int(whole)
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Result summarizes a finished pool.
type Result struct {
	Workers   int
	Processed int64
	Skipped   int64
	Chunks    int64
	// Err is the first failure, nil when every record was dispatched.
	Err error
}

type workerStats struct {
	processed int64
	skipped   int64
	chunks    int64
}

// Pool runs a fixed number of workers over one Source.
type Pool struct {
	Source    *chunk.Source
	Schema    *schema.Schema
	Workers   int
	ChunkSize int
	OpenSink  SinkFactory
	Abort     *AbortSignal

	DispatchTimeout  time.Duration
	NormalizeUnicode bool
}

// Run starts the workers and blocks until all of them have stopped. Workers
// stop when the source is exhausted or the abort signal is set. Cancelling
// ctx sets the abort signal but does not interrupt a sink call in flight.
func (p *Pool) Run(ctx context.Context) Result {
	if p.Abort == nil {
		p.Abort = NewAbortSignal()
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	interrupt := func() {
		if p.Abort.Abort(fmt.Errorf("interrupted: %w", context.Cause(ctx))) {
			log.Warn("ingest: interrupted, waiting for workers to finish their current record")
		}
	}
	stop := context.AfterFunc(ctx, interrupt)
	p.Source.SetAbort(p.Abort.Aborted)

	d := dispatcher{kind: p.Schema.Kind, normalize: p.NormalizeUnicode, timeout: p.DispatchTimeout}
	sinkCtx := context.WithoutCancel(ctx)
	stats := make([]workerStats, workers)

	var g errgroup.Group
	for id := 0; id < workers; id++ {
		id := id
		g.Go(func() error {
			return p.work(sinkCtx, id, d, &stats[id])
		})
	}
	_ = g.Wait()
	if !stop() {
		// The callback already started; make sure its error is in place.
		interrupt()
	}

	res := Result{Workers: workers, Err: p.Abort.Err()}
	for _, st := range stats {
		res.Processed += st.processed
		res.Skipped += st.skipped
		res.Chunks += st.chunks
	}
	return res
}

// fail records err as the run's failure unless another worker got there first.
func (p *Pool) fail(err error) error {
	if !p.Abort.Abort(err) {
		log.WithError(err).Debug("ingest: failure after abort")
	}
	return err
}

func (p *Pool) work(ctx context.Context, id int, d dispatcher, st *workerStats) (err error) {
	wlog := log.WithField("worker", id)

	snk, err := p.OpenSink(ctx, id)
	if err != nil {
		return p.fail(fmt.Errorf("worker %d: %w", id, err))
	}
	defer func() {
		if cerr := snk.Close(ctx); cerr != nil {
			wlog.WithError(cerr).Warn("ingest: closing sink")
		}
	}()

	buf := make([]byte, p.ChunkSize)
	fields := make([]parser.Field, 0, p.Schema.NumFields())
	lines := chunk.NewLineReader(nil)

	wlog.Info("ingest: worker started")
	defer func() {
		wlog.WithFields(log.Fields{
			"processed": humanize.Comma(st.processed),
			"skipped":   st.skipped,
			"chunks":    st.chunks,
		}).Info("ingest: worker completed")
	}()

	for !p.Abort.Aborted() {
		c, err := p.Source.Acquire(buf)
		if errors.Is(err, chunk.ErrExhausted) || errors.Is(err, chunk.ErrAborted) {
			return nil
		}
		if err != nil {
			return p.fail(fmt.Errorf("worker %d: %w", id, err))
		}
		st.chunks++
		if log.IsLevelEnabled(log.DebugLevel) {
			wlog.WithFields(log.Fields{
				"offset":    c.Offset,
				"size":      humanize.IBytes(uint64(len(c.Data))),
				"remaining": humanize.IBytes(uint64(p.Source.Remaining())),
			}).Debug("ingest: chunk acquired")
		}

		lines.Reset(c.Data)
		for {
			line, ok := lines.Next()
			if !ok {
				break
			}
			if len(line) == 0 {
				continue
			}
			if p.Abort.Aborted() {
				return nil
			}

			fields, err = parser.Tokenize(fields, line, p.Schema)
			if err != nil {
				return p.fail(newRecordError(id, c.Offset+int64(lines.Start()), line, err))
			}
			skipped, err := d.dispatch(ctx, snk, fields)
			if err != nil {
				return p.fail(newRecordError(id, c.Offset+int64(lines.Start()), line, err))
			}
			if skipped {
				st.skipped++
				continue
			}
			st.processed++
		}
	}
	return nil
}
