// Package ingest drives a single load of a GeoLite2 CSV file.
//
// The file is read once, front to back, by a chunk.Source shared between a
// fixed pool of workers. Each worker owns a chunk buffer and a sink; it
// tokenizes the records of every chunk it acquires and forwards them to its
// sink. The first failure anywhere sets an AbortSignal that every worker
// polls, so the run stops without tearing a record in half.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"geoimport/internal/chunk"
	"geoimport/internal/datasource/file"
	"geoimport/internal/metrics"
	"geoimport/internal/schema"
)

// Options configures Run.
type Options struct {
	// Workers overrides DefaultWorkers when positive.
	Workers int
	// ChunkSize is the per-worker buffer; DefaultChunkSize when zero.
	ChunkSize int
	// DispatchTimeout bounds every sink call when positive.
	DispatchTimeout time.Duration
	// NormalizeUnicode NFC-normalizes location names before dispatch.
	NormalizeUnicode bool
	// Job labels metrics.
	Job string

	OpenSink SinkFactory
}

// Summary is what Run reports about a finished load.
type Summary struct {
	Result
	Schema  *schema.Schema
	Size    int64
	Elapsed time.Duration
}

// Run loads the file at path. The returned error is the first failure; the
// Summary is filled in either way so callers can report partial progress.
func Run(ctx context.Context, path string, opts Options) (Summary, error) {
	start := time.Now()
	var sum Summary

	if opts.OpenSink == nil {
		return sum, fmt.Errorf("ingest: no sink factory")
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := file.NewLocal(path).Open(ctx)
	metrics.RecordStep(opts.Job, "open", err, time.Since(start))
	if err != nil {
		return sum, err
	}
	defer f.Close()
	sum.Size = f.Size()

	s, headerLen, err := schema.ReadHeader(f)
	metrics.RecordStep(opts.Job, "header", err, time.Since(start))
	if err != nil {
		return sum, fmt.Errorf("%s: %w", path, err)
	}
	sum.Schema = s

	payload := sum.Size - headerLen
	workers := PoolSize(opts.Workers, payload, int64(chunkSize))
	log.WithFields(log.Fields{
		"file":    path,
		"schema":  s.Kind,
		"size":    humanize.IBytes(uint64(sum.Size)),
		"workers": workers,
		"chunk":   humanize.IBytes(uint64(chunkSize)),
	}).Info("ingest: starting")

	pool := &Pool{
		Source:           chunk.NewSource(f, headerLen, sum.Size),
		Schema:           s,
		Workers:          workers,
		ChunkSize:        chunkSize,
		OpenSink:         opts.OpenSink,
		DispatchTimeout:  opts.DispatchTimeout,
		NormalizeUnicode: opts.NormalizeUnicode,
	}
	loadStart := time.Now()
	sum.Result = pool.Run(ctx)
	sum.Elapsed = time.Since(start)

	metrics.RecordStep(opts.Job, "load", sum.Err, time.Since(loadStart))
	metrics.RecordRow(opts.Job, "processed", sum.Processed)
	metrics.RecordRow(opts.Job, "skipped", sum.Skipped)
	metrics.RecordChunks(opts.Job, sum.Chunks)

	return sum, sum.Err
}
