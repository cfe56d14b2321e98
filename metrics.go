package analytics

import "time"

// Metrics is an optional interface for SDK telemetry. Implementations must
// be safe for concurrent use; the engine calls them from caller threads and
// from destination workers.
type Metrics interface {
	IncrementCounter(name string, value int64)
	SetGauge(name string, value float64)
	RecordDuration(name string, d time.Duration)
}

// nopMetrics discards all metrics.
type nopMetrics struct{}

func (nopMetrics) IncrementCounter(name string, value int64)   {}
func (nopMetrics) SetGauge(name string, value float64)         {}
func (nopMetrics) RecordDuration(name string, d time.Duration) {}

var _ Metrics = nopMetrics{}
