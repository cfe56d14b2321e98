package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// receivedPayload mirrors the request body for server-side assertions.
type receivedPayload struct {
	APIKey  string           `json:"api_key"`
	Events  []map[string]any `json:"events"`
	Options map[string]any   `json:"options"`
}

// captureServer records every batch request and answers with scripted
// responses keyed by request number (1-based).
type captureServer struct {
	t       *testing.T
	mu      sync.Mutex
	batches []receivedPayload
	respond func(n int, p receivedPayload) (status int, body string)
	srv     *httptest.Server
}

func newCaptureServer(t *testing.T, respond func(n int, p receivedPayload) (int, string)) *captureServer {
	t.Helper()
	cs := &captureServer{t: t, respond: respond}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p receivedPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		cs.mu.Lock()
		cs.batches = append(cs.batches, p)
		n := len(cs.batches)
		cs.mu.Unlock()

		status, body := cs.respond(n, p)
		if body == "" {
			body = fmt.Sprintf(`{"code":%d}`, status)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *captureServer) url() string { return cs.srv.URL }

func (cs *captureServer) received() []receivedPayload {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]receivedPayload, len(cs.batches))
	copy(out, cs.batches)
	return out
}

func respondOK(n int, p receivedPayload) (int, string) { return http.StatusOK, "" }

func newTestClient(t *testing.T, serverURL string, opts ...ConfigOption) *Client {
	t.Helper()
	base := []ConfigOption{
		WithServerURL(serverURL),
		WithFlushQueueSize(2),
		WithFlushInterval(20 * time.Millisecond),
		WithRetryDelays(time.Millisecond, 5*time.Millisecond),
		WithRetryThrottleDelay(time.Millisecond),
	}
	client, err := NewClient("test-key", append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Shutdown(ctx)
	})
	return client
}

func shutdownQuietly(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func trackUserEvent(t *testing.T, c *Client, eventType, userID string) {
	t.Helper()
	event := NewEvent(eventType)
	event.UserID = userID
	if err := c.Track(event); err != nil {
		t.Fatalf("Track(%s) error: %v", eventType, err)
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channel to close")
	}
}

func waitEvent(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("callback for %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for callback for %q", want)
	}
}

func TestWorkerSlicesFlushIntoBatches(t *testing.T) {
	server := newCaptureServer(t, respondOK)
	client := newTestClient(t, server.url(), WithFlushInterval(time.Second))

	for i := 0; i < 5; i++ {
		trackUserEvent(t, client, "page_view", fmt.Sprintf("user-%d", i))
	}
	waitClosed(t, client.Flush())

	batches := server.received()
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	var sizes []int
	total := 0
	for _, b := range batches {
		if b.APIKey != "test-key" {
			t.Errorf("api_key = %q, want test-key", b.APIKey)
		}
		sizes = append(sizes, len(b.Events))
		total += len(b.Events)
	}
	if total != 5 {
		t.Fatalf("batch sizes %v deliver %d events, want 5", sizes, total)
	}
	for _, n := range sizes {
		if n > 2 {
			t.Fatalf("batch sizes %v exceed flush queue size 2", sizes)
		}
	}
}

func TestWorkerSizeTriggerSendsWithoutFlush(t *testing.T) {
	server := newCaptureServer(t, respondOK)
	success := make(chan string, 4)
	client := newTestClient(t, server.url(),
		WithFlushInterval(time.Minute),
		WithOnSuccess(func(e *Event, code int, msg string) { success <- e.UserID }),
	)

	trackUserEvent(t, client, "page_view", "user-a")
	trackUserEvent(t, client, "page_view", "user-b")

	// A full batch must go out on its own, long before the interval timer.
	waitEvent(t, success, "user-a")
	waitEvent(t, success, "user-b")
}

func TestWorkerIntervalTriggerSendsPartialBatch(t *testing.T) {
	server := newCaptureServer(t, respondOK)
	success := make(chan string, 1)
	client := newTestClient(t, server.url(),
		WithFlushQueueSize(100),
		WithOnSuccess(func(e *Event, code int, msg string) { success <- e.UserID }),
	)

	trackUserEvent(t, client, "page_view", "user-a")
	waitEvent(t, success, "user-a")
}

func TestWorkerRetriesServerError(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		if n == 1 {
			return http.StatusServiceUnavailable, ""
		}
		return http.StatusOK, ""
	})
	success := make(chan string, 1)
	client := newTestClient(t, server.url(),
		WithOnSuccess(func(e *Event, code int, msg string) { success <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "user-a")
	waitClosed(t, client.Flush())
	waitEvent(t, success, "user-a")

	if got := len(server.received()); got < 2 {
		t.Fatalf("got %d requests, want at least 2 (failure then retry)", got)
	}
}

func TestWorkerDropsEventsRejectedByIndex(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		if n == 1 {
			return http.StatusBadRequest,
				`{"code":400,"error":"invalid time","events_with_invalid_fields":{"time":[1]}}`
		}
		return http.StatusOK, ""
	})
	success := make(chan string, 1)
	failed := make(chan string, 1)
	client := newTestClient(t, server.url(),
		WithOnSuccess(func(e *Event, code int, msg string) { success <- e.UserID }),
		WithOnError(func(e *Event, code int, msg string) { failed <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "good-user")
	trackUserEvent(t, client, "purchase", "bad-user")

	waitEvent(t, failed, "bad-user")
	waitEvent(t, success, "good-user")
}

func TestWorkerDropsBatchOnInvalidAPIKey(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		return http.StatusBadRequest, `{"code":400,"error":"Invalid API key: test-key"}`
	})
	failed := make(chan string, 2)
	client := newTestClient(t, server.url(),
		WithOnError(func(e *Event, code int, msg string) { failed <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "user-a")
	trackUserEvent(t, client, "purchase", "user-b")

	waitEvent(t, failed, "user-a")
	waitEvent(t, failed, "user-b")

	if got := len(server.received()); got != 1 {
		t.Fatalf("got %d requests, want 1 (no retry on invalid key)", got)
	}
}

func TestWorkerSplitsOversizedBatch(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		if len(p.Events) > 1 {
			return http.StatusRequestEntityTooLarge, `{"code":413,"error":"payload too large"}`
		}
		return http.StatusOK, ""
	})
	success := make(chan string, 2)
	client := newTestClient(t, server.url(),
		WithOnSuccess(func(e *Event, code int, msg string) { success <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "user-a")
	trackUserEvent(t, client, "purchase", "user-b")

	waitEvent(t, success, "user-a")
	waitEvent(t, success, "user-b")

	batches := server.received()
	if len(batches) != 3 {
		t.Fatalf("got %d requests, want 3 (one oversized, two singles)", len(batches))
	}
	for _, b := range batches[1:] {
		if len(b.Events) != 1 {
			t.Fatalf("post-split batch has %d events, want 1", len(b.Events))
		}
	}
}

func TestWorkerDropsSingleOversizedEvent(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		return http.StatusRequestEntityTooLarge, `{"code":413,"error":"payload too large"}`
	})
	failed := make(chan string, 1)
	client := newTestClient(t, server.url(),
		WithFlushQueueSize(100),
		WithOnError(func(e *Event, code int, msg string) { failed <- e.UserID }),
	)

	trackUserEvent(t, client, "huge", "user-a")
	waitEvent(t, failed, "user-a")

	if got := len(server.received()); got != 1 {
		t.Fatalf("got %d requests, want 1", got)
	}
}

func TestWorkerThrottleDropsQuotaAndRetriesRest(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, `{
				"code": 429,
				"error": "too many requests",
				"throttled_events": [1],
				"exceeded_daily_quota_users": {"quota-user": 1}
			}`
		}
		return http.StatusOK, ""
	})
	success := make(chan string, 1)
	failed := make(chan string, 1)
	client := newTestClient(t, server.url(),
		WithOnSuccess(func(e *Event, code int, msg string) { success <- e.UserID }),
		WithOnError(func(e *Event, code int, msg string) { failed <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "quota-user")
	trackUserEvent(t, client, "purchase", "ok-user")

	waitEvent(t, failed, "quota-user")
	waitEvent(t, success, "ok-user")
}

func TestWorkerThrottleUnnamedEventsConsumeRetryBudget(t *testing.T) {
	// The 429 carries detail but never names this event, so it is requeued
	// for an immediate retry each time. The retry budget must still bound
	// those attempts.
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		return http.StatusTooManyRequests,
			`{"code":429,"error":"too many requests","throttled_events":[9]}`
	})
	failed := make(chan string, 2)
	client := newTestClient(t, server.url(),
		WithFlushQueueSize(100),
		WithMaxRetries(2),
		WithOnError(func(e *Event, code int, msg string) { failed <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "user-a")
	waitEvent(t, failed, "user-a")

	time.Sleep(100 * time.Millisecond)
	select {
	case extra := <-failed:
		t.Fatalf("error callback fired again for %q", extra)
	default:
	}

	if got := len(server.received()); got != 3 {
		t.Fatalf("got %d attempts, want 3 (initial + 2 retries)", got)
	}
}

func TestWorkerDropsEventAfterRetryExhaustion(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		return http.StatusInternalServerError, ""
	})
	failed := make(chan string, 2)
	client := newTestClient(t, server.url(),
		WithFlushQueueSize(100),
		WithMaxRetries(2),
		WithOnError(func(e *Event, code int, msg string) { failed <- e.UserID }),
	)

	trackUserEvent(t, client, "purchase", "user-a")
	waitEvent(t, failed, "user-a")

	// The error callback fires exactly once per event.
	time.Sleep(100 * time.Millisecond)
	select {
	case extra := <-failed:
		t.Fatalf("error callback fired again for %q", extra)
	default:
	}

	if got := len(server.received()); got != 3 {
		t.Fatalf("got %d attempts, want 3 (initial + 2 retries)", got)
	}
}

func TestWorkerFlushFutureScope(t *testing.T) {
	server := newCaptureServer(t, respondOK)
	client := newTestClient(t, server.url(), WithFlushInterval(time.Second))

	// An empty buffer resolves immediately.
	waitClosed(t, client.Flush())

	trackUserEvent(t, client, "purchase", "user-a")
	waitClosed(t, client.Flush())

	if got := len(server.received()); got != 1 {
		t.Fatalf("got %d requests, want 1", got)
	}
}

func TestWorkerFlushResolvesAfterFailedAttempt(t *testing.T) {
	server := newCaptureServer(t, func(n int, p receivedPayload) (int, string) {
		return http.StatusInternalServerError, ""
	})
	client := newTestClient(t, server.url(),
		WithFlushInterval(time.Second),
		WithRetryDelays(time.Minute, time.Hour),
	)

	trackUserEvent(t, client, "purchase", "user-a")

	// The flush future resolves once the event has had an attempt, even
	// though the event is rescheduled far in the future.
	waitClosed(t, client.Flush())
}

func TestWorkerFlushResolvesWhenAttemptCompletesConcurrently(t *testing.T) {
	// Drive attempt completion by hand against an unstarted worker while
	// flushing in a tight loop. A flush whose snapshot is attempted before
	// the waiter is registered must still resolve: sequence numbers are
	// never reissued, so a stranded waiter would hang forever.
	cfg := &Config{APIKey: "test-key", ServerURL: "http://localhost/events"}
	cfg.applyDefaults()
	buffer := newEventBuffer(0)
	w := newBatchWorker(cfg, buffer, newHTTPTransport(cfg, NopLogger{}, nopMetrics{}), NopLogger{}, nopMetrics{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if entries := buffer.pullAll(); len(entries) > 0 {
				w.completeSeqs(entries)
			}
			select {
			case <-stop:
				// Final sweep so no buffered event is left unattempted.
				if entries := buffer.pullAll(); len(entries) > 0 {
					w.completeSeqs(entries)
				}
				return
			default:
			}
		}
	}()

	for i := 0; i < 500; i++ {
		event := NewEvent("spin")
		event.UserID = "user-a"
		if _, err := buffer.push(event, 0); err != nil {
			t.Fatal(err)
		}
		waitClosed(t, w.flush())
	}

	close(stop)
	wg.Wait()
}

func TestWorkerFlushAfterAttemptResolvesImmediately(t *testing.T) {
	cfg := &Config{APIKey: "test-key", ServerURL: "http://localhost/events"}
	cfg.applyDefaults()
	buffer := newEventBuffer(0)
	w := newBatchWorker(cfg, buffer, newHTTPTransport(cfg, NopLogger{}, nopMetrics{}), NopLogger{}, nopMetrics{})

	event := NewEvent("done")
	event.UserID = "user-a"
	if _, err := buffer.push(event, 0); err != nil {
		t.Fatal(err)
	}

	// The entry is pulled and attempted before Flush is called, so the
	// snapshot is empty and the future resolves at once.
	w.completeSeqs(buffer.pullAll())
	waitClosed(t, w.flush())
}

func TestWorkerSendsMinIDLengthOption(t *testing.T) {
	server := newCaptureServer(t, respondOK)
	client := newTestClient(t, server.url(),
		WithFlushQueueSize(100),
		WithMinIDLength(3),
	)

	trackUserEvent(t, client, "purchase", "user-a")
	waitClosed(t, client.Flush())

	batches := server.received()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if got, ok := batches[0].Options["min_id_length"].(float64); !ok || got != 3 {
		t.Fatalf("options = %v, want min_id_length 3", batches[0].Options)
	}
}
