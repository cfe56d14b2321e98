package analytics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestMain verifies that no test in the package leaks goroutines.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// HTTP transport connection-pool goroutines from the stdlib.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestShutdownStopsWorkerGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	server := newCaptureServer(t, respondOK)
	client, err := NewClient("test-key",
		WithServerURL(server.url()),
		WithFlushInterval(20*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}

	trackUserEvent(t, client, "page_view", "user-a")
	waitClosed(t, client.Flush())

	if err := client.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
