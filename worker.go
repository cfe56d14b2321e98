package analytics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// flushWaiter tracks one Flush call. pending holds the sequence numbers of
// the entries buffered when Flush was called; done is closed once each of
// them has been given a send attempt.
type flushWaiter struct {
	pending map[uint64]struct{}
	done    chan struct{}
}

// batchWorker is the single goroutine that drains an event buffer. It wakes
// on three triggers: a full batch of ready events, the flush interval timer,
// and explicit flush requests. All response classification and retry
// scheduling happens here, off the caller's goroutine.
type batchWorker struct {
	cfg       *Config
	buffer    *eventBuffer
	transport *httpTransport
	logger    StructuredLogger
	metrics   Metrics

	// batchSize is the current effective batch size. It starts at
	// FlushQueueSize, halves on 413 responses, and restores on success.
	// Only the worker goroutine touches it.
	batchSize int

	notify  chan struct{}
	flushCh chan struct{}
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once

	mu      sync.Mutex
	waiters []*flushWaiter
}

func newBatchWorker(cfg *Config, buffer *eventBuffer, transport *httpTransport, logger StructuredLogger, metrics Metrics) *batchWorker {
	return &batchWorker{
		cfg:       cfg,
		buffer:    buffer,
		transport: transport,
		logger:    logger,
		metrics:   metrics,
		batchSize: cfg.FlushQueueSize,
		notify:    make(chan struct{}, 1),
		flushCh:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *batchWorker) start() {
	go w.run()
}

func (w *batchWorker) run() {
	defer close(w.done)

	timer := time.NewTimer(w.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			w.drain()
			return
		case <-w.notify:
			// Size trigger: drain only while full batches are ready so
			// partial batches keep buffering until the timer fires.
			for w.buffer.readyCount(time.Now()) >= w.batchSize {
				w.sendBatch(w.buffer.pull(w.batchSize, time.Now()))
			}
		case <-w.flushCh:
			w.sendAll()
		case <-timer.C:
			w.sendReady()
		}
		w.resetTimer(timer)
	}
}

// poke wakes the worker to re-check the size trigger. Non-blocking.
func (w *batchWorker) poke() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// resetTimer arms the timer for the earlier of the flush interval and the
// next retry entry's readiness.
func (w *batchWorker) resetTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	wait := w.cfg.FlushInterval
	if next, ok := w.buffer.nextReadyAt(); ok {
		if until := time.Until(next); until < wait {
			wait = until
		}
	}
	if wait < MinFlushInterval {
		wait = MinFlushInterval
	}
	t.Reset(wait)
}

// sendReady drains every currently eligible entry in batch-sized slices.
func (w *batchWorker) sendReady() {
	now := time.Now()
	for {
		batch := w.buffer.pull(w.batchSize, now)
		if len(batch) == 0 {
			return
		}
		w.sendBatch(batch)
	}
}

// sendAll drains the whole buffer regardless of retry readiness, in
// batch-sized slices. Used by explicit flushes and the shutdown drain.
func (w *batchWorker) sendAll() {
	entries := w.buffer.pullAll()
	for len(entries) > 0 {
		n := w.batchSize
		if n > len(entries) {
			n = len(entries)
		}
		w.sendBatch(entries[:n])
		entries = entries[n:]
	}
}

// flush registers a waiter for the currently buffered entries and wakes the
// worker. The returned channel is closed once every one of those entries has
// been given at least one send attempt. The snapshot and the registration
// happen under the same lock as completeSeqs: an attempt finishing between
// them would otherwise strand the snapshot's sequence numbers in the waiter
// forever, since sequence numbers are never reissued.
func (w *batchWorker) flush() <-chan struct{} {
	ch := make(chan struct{})

	w.mu.Lock()
	pending := w.buffer.seqSnapshot()
	if len(pending) == 0 {
		w.mu.Unlock()
		close(ch)
		return ch
	}
	w.waiters = append(w.waiters, &flushWaiter{pending: pending, done: ch})
	w.mu.Unlock()

	select {
	case w.flushCh <- struct{}{}:
	default:
	}
	return ch
}

// completeSeqs marks the batch's entries as attempted and releases any
// waiters that have no pending entries left. Entries requeued for retry get
// fresh sequence numbers, so releasing the old ones here is final.
func (w *batchWorker) completeSeqs(entries []bufferEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	remaining := w.waiters[:0]
	for _, fw := range w.waiters {
		for _, e := range entries {
			delete(fw.pending, e.seq)
		}
		if len(fw.pending) == 0 {
			close(fw.done)
		} else {
			remaining = append(remaining, fw)
		}
	}
	w.waiters = remaining
}

// drain performs the final shutdown pass: every buffered event gets one send
// attempt, events rescheduled during that pass are reported as lost, and all
// flush waiters are released.
func (w *batchWorker) drain() {
	w.sendAll()

	for _, e := range w.buffer.pullAll() {
		w.fail(e.event, 0, "event lost during shutdown")
	}

	w.mu.Lock()
	for _, fw := range w.waiters {
		close(fw.done)
	}
	w.waiters = nil
	w.mu.Unlock()
}

// shutdown stops the worker and waits for the final drain, bounded by ctx.
func (w *batchWorker) shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return &ShutdownError{Cause: ctx.Err(), PendingEvents: w.buffer.size()}
	}
}

// sendBatch delivers one batch and classifies the outcome.
func (w *batchWorker) sendBatch(entries []bufferEntry) {
	if len(entries) == 0 {
		return
	}
	defer w.completeSeqs(entries)

	events := make([]*Event, len(entries))
	for i, e := range entries {
		events[i] = e.event
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	resp, err := w.transport.send(ctx, events)
	cancel()

	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.IsRetryable() {
			w.logger.Warn("batch send failed, scheduling retry",
				"events", len(events), "error", err)
			w.retryAll(events)
			return
		}
		w.logger.Error("batch send failed", "events", len(events), "error", err)
		for _, ev := range events {
			w.fail(ev, 0, err.Error())
		}
		return
	}
	w.processResponse(events, resp)
}

func (w *batchWorker) processResponse(events []*Event, resp *serverResponse) {
	switch {
	case resp.Code >= 200 && resp.Code < 300:
		w.metrics.IncrementCounter("analytics.events.sent", int64(len(events)))
		w.logger.Debug("batch sent", "events", len(events))
		w.batchSize = w.cfg.FlushQueueSize
		for _, ev := range events {
			w.succeed(ev, resp.Code, "event sent successfully")
		}

	case resp.Code == http.StatusBadRequest:
		w.handleBadRequest(events, resp)

	case resp.Code == http.StatusRequestEntityTooLarge:
		w.handlePayloadTooLarge(events, resp)

	case resp.Code == http.StatusTooManyRequests:
		w.handleThrottled(events, resp)

	case resp.Code == http.StatusRequestTimeout || resp.Code >= 500:
		w.logger.Warn("server unavailable, scheduling retry",
			"status", resp.Code, "events", len(events))
		w.retryAll(events)

	case resp.Code >= 400 && resp.Code < 500:
		w.logger.Error("batch rejected", "status", resp.Code, "error", resp.Error)
		for _, ev := range events {
			w.fail(ev, resp.Code, resp.Error)
		}

	default:
		// Unexpected status class: assume transient.
		w.logger.Warn("unexpected response status, scheduling retry",
			"status", resp.Code, "events", len(events))
		w.retryAll(events)
	}
}

// handleBadRequest classifies a 400. A whole-request problem (invalid key,
// missing request field, or no detail at all) drops the batch; per-event
// detail drops only the named events and retries the rest.
func (w *batchWorker) handleBadRequest(events []*Event, resp *serverResponse) {
	if strings.HasPrefix(resp.Error, "Invalid API key") {
		w.logger.Error("invalid API key, dropping batch", "events", len(events))
		for _, ev := range events {
			w.fail(ev, resp.Code, resp.Error)
		}
		return
	}
	if resp.MissingField != "" {
		w.logger.Error("request missing required field, dropping batch",
			"field", resp.MissingField)
		for _, ev := range events {
			w.fail(ev, resp.Code, "request missing required field: "+resp.MissingField)
		}
		return
	}
	if resp.hasEventDetail() {
		invalid := resp.invalidEventIndexes()
		w.logger.Warn("server rejected events in batch",
			"invalid", len(invalid), "events", len(events))
		for i, ev := range events {
			if _, bad := invalid[i]; bad {
				w.fail(ev, resp.Code, resp.Error)
			} else {
				w.retry(ev)
			}
		}
		return
	}
	w.logger.Error("bad request, dropping batch", "error", resp.Error)
	for _, ev := range events {
		w.fail(ev, resp.Code, resp.Error)
	}
}

// handlePayloadTooLarge splits an oversized batch in half and requeues both
// halves for an immediate retry. Halving repeats on subsequent 413s until
// batches fit; a single event that is itself too large is dropped.
func (w *batchWorker) handlePayloadTooLarge(events []*Event, resp *serverResponse) {
	if len(events) == 1 {
		w.logger.Error("single event exceeds payload limit, dropping")
		w.fail(events[0], resp.Code, resp.Error)
		return
	}
	w.logger.Warn("payload too large, splitting batch", "events", len(events))
	mid := len(events) / 2
	if mid < w.batchSize {
		w.batchSize = mid
	}
	for _, ev := range events[:mid] {
		w.requeue(ev, 0)
	}
	for _, ev := range events[mid:] {
		w.requeue(ev, 0)
	}
}

// handleThrottled classifies a 429. Events whose user or device exceeded a
// daily quota are dropped; throttled events are rescheduled after the
// throttle delay; events the server did not name are eligible immediately.
// Every rescheduled event consumes retry budget, so a server that keeps
// answering 429 cannot cycle an event forever. A 429 with no detail backs
// off the whole batch.
func (w *batchWorker) handleThrottled(events []*Event, resp *serverResponse) {
	noDetail := len(resp.ThrottledEvents) == 0 &&
		len(resp.ExceededDailyQuotaUsers) == 0 &&
		len(resp.ExceededDailyQuotaDevices) == 0
	if noDetail {
		w.logger.Warn("throttled, scheduling retry", "events", len(events))
		w.retryAll(events)
		return
	}

	throttled := make(map[int]struct{}, len(resp.ThrottledEvents))
	for _, i := range resp.ThrottledEvents {
		throttled[i] = struct{}{}
	}

	for i, ev := range events {
		switch {
		case resp.exceededDailyQuota(ev):
			w.metrics.IncrementCounter("analytics.events.quota_exceeded", 1)
			w.fail(ev, resp.Code, "daily quota exceeded for user or device")
		default:
			if _, ok := throttled[i]; ok {
				w.retryWithDelay(ev, w.cfg.RetryThrottleDelay)
			} else {
				w.retryWithDelay(ev, 0)
			}
		}
	}
}

// retryAll reschedules every event in the batch with exponential backoff.
func (w *batchWorker) retryAll(events []*Event) {
	for _, ev := range events {
		w.retry(ev)
	}
}

// retry reschedules ev with exponential backoff, dropping it once the retry
// budget is exhausted.
func (w *batchWorker) retry(ev *Event) {
	w.retryWithDelay(ev, -1)
}

func (w *batchWorker) retryWithDelay(ev *Event, delay time.Duration) {
	ev.retries++
	if ev.retries > w.cfg.MaxRetries {
		w.metrics.IncrementCounter("analytics.events.retry_exhausted", 1)
		w.fail(ev, 0, fmt.Sprintf("event dropped after %d failed attempts", ev.retries))
		return
	}
	if delay < 0 {
		delay = retryDelay(w.cfg.RetryBaseDelay, w.cfg.RetryMaxDelay, ev.retries)
	}
	w.requeue(ev, delay)
}

// requeue pushes an event back into the buffer without touching its retry
// counter. Used for 413 splits, where resending smaller slices of the same
// batch is not a failed attempt of the events themselves.
func (w *batchWorker) requeue(ev *Event, delay time.Duration) {
	if _, err := w.buffer.push(ev, delay); err != nil {
		w.fail(ev, 0, "buffer full, dropping rescheduled event")
	}
}

func (w *batchWorker) succeed(ev *Event, code int, msg string) {
	invokeCallback(w.logger, ev.Callback, ev, code, msg)
	invokeCallback(w.logger, w.cfg.OnSuccess, ev, code, msg)
}

// fail reports a terminal failure. Each event passes through here at most
// once: every classification path either requeues an event or fails it.
func (w *batchWorker) fail(ev *Event, code int, msg string) {
	w.metrics.IncrementCounter("analytics.events.dropped", 1)
	w.logger.Error("event dropped",
		"event_type", ev.EventType, "code", code, "reason", msg)
	invokeCallback(w.logger, ev.Callback, ev, code, msg)
	invokeCallback(w.logger, w.cfg.OnError, ev, code, msg)
}

// invokeCallback runs a user callback with panic recovery so a faulty
// callback cannot kill the worker goroutine.
func invokeCallback(logger StructuredLogger, cb EventCallback, ev *Event, code int, msg string) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event callback panicked", "recovered", r)
		}
	}()
	cb(ev, code, msg)
}
