// Package metrics records run-level counters and step timings without tying
// the importer to a particular metrics system.
//
// A single process-wide Backend receives every observation. It defaults to a
// no-op, so instrumented code never has to check whether metrics are enabled.
// Concrete backends live in subpackages (prompush, datadog) and are installed
// once at startup with SetBackend.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal           = "geoimport_step_total"
	StepDurationSeconds = "geoimport_step_duration_seconds"
	RecordsTotal        = "geoimport_records_total"
	ChunksTotal         = "geoimport_chunks_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a run step (open, header, load) and
// records how long it took.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow adds delta records of the given kind ("processed", "skipped").
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordChunks adds delta acquired chunks.
func RecordChunks(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(ChunksTotal, float64(delta), Labels{
		"job": job,
	})
}
