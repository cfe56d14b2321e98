package analytics

import (
	"context"
	"sync/atomic"
	"time"
)

// HTTPDestination is the default destination plugin, registered on every
// client. It buffers events and delivers them to the ingestion endpoint in
// batches on its own worker goroutine.
type HTTPDestination struct {
	cfg     *Config
	buffer  *eventBuffer
	worker  *batchWorker
	logger  StructuredLogger
	metrics Metrics
	closed  atomic.Bool
}

// Name implements Plugin.
func (*HTTPDestination) Name() string { return "http" }

// Setup implements Plugin. It builds the buffer, transport, and worker from
// the client configuration and starts the worker goroutine.
func (d *HTTPDestination) Setup(client *Client) error {
	d.cfg = client.config
	d.logger = client.logger
	d.metrics = client.metrics
	d.buffer = newEventBuffer(d.cfg.MaxBufferCapacity)
	transport := newHTTPTransport(d.cfg, d.logger, d.metrics)
	d.worker = newBatchWorker(d.cfg, d.buffer, transport, d.logger, d.metrics)
	d.worker.start()
	return nil
}

// Execute implements DestinationPlugin. It buffers the event and returns
// without blocking: when a bounded buffer is full, the event is dropped and
// reported through the error callbacks instead.
func (d *HTTPDestination) Execute(event *Event) error {
	if d.closed.Load() {
		return ErrClientClosed
	}

	if _, err := d.buffer.push(event, 0); err != nil {
		d.metrics.IncrementCounter("analytics.events.overflow", 1)
		d.logger.Error("event buffer full, dropping newest event",
			"event_type", event.EventType, "capacity", d.cfg.MaxBufferCapacity)
		invokeCallback(d.logger, event.Callback, event, 0, "event buffer full")
		invokeCallback(d.logger, d.cfg.OnError, event, 0, "event buffer full")
		return err
	}

	d.metrics.SetGauge("analytics.buffer.size", float64(d.buffer.size()))
	if d.buffer.readyCount(time.Now()) >= d.cfg.FlushQueueSize {
		d.worker.poke()
	}
	return nil
}

// Flush implements DestinationPlugin.
func (d *HTTPDestination) Flush() <-chan struct{} {
	return d.worker.flush()
}

// Shutdown implements DestinationPlugin. It stops accepting events and waits
// for the worker's final drain, bounded by ctx.
func (d *HTTPDestination) Shutdown(ctx context.Context) error {
	d.closed.Store(true)
	return d.worker.shutdown(ctx)
}

var _ DestinationPlugin = (*HTTPDestination)(nil)
