package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// payload is the request body sent to the ingestion endpoint.
type payload struct {
	APIKey  string          `json:"api_key"`
	Events  []*Event        `json:"events"`
	Options *payloadOptions `json:"options,omitempty"`
}

// payloadOptions carries request-level ingestion options.
type payloadOptions struct {
	MinIDLength int `json:"min_id_length,omitempty"`
}

// serverResponse is the parsed ingestion response body. On 400 and 429 the
// server attaches per-event detail: index lists refer to positions within the
// events array of the request that produced the response.
type serverResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`

	// 400 detail.
	MissingField            string           `json:"missing_field"`
	EventsWithInvalidFields map[string][]int `json:"events_with_invalid_fields"`
	EventsWithMissingFields map[string][]int `json:"events_with_missing_fields"`
	SilencedEvents          []int            `json:"silenced_events"`

	// 429 detail.
	EPSThreshold              int            `json:"eps_threshold"`
	ThrottledEvents           []int          `json:"throttled_events"`
	ExceededDailyQuotaUsers   map[string]int `json:"exceeded_daily_quota_users"`
	ExceededDailyQuotaDevices map[string]int `json:"exceeded_daily_quota_devices"`
}

// invalidEventIndexes returns the union of all event indexes the server
// rejected as invalid, including silenced events.
func (r *serverResponse) invalidEventIndexes() map[int]struct{} {
	out := make(map[int]struct{})
	for _, indexes := range r.EventsWithInvalidFields {
		for _, i := range indexes {
			out[i] = struct{}{}
		}
	}
	for _, indexes := range r.EventsWithMissingFields {
		for _, i := range indexes {
			out[i] = struct{}{}
		}
	}
	for _, i := range r.SilencedEvents {
		out[i] = struct{}{}
	}
	return out
}

// hasEventDetail reports whether the 400 response names specific events
// rather than rejecting the request as a whole.
func (r *serverResponse) hasEventDetail() bool {
	return len(r.EventsWithInvalidFields) > 0 ||
		len(r.EventsWithMissingFields) > 0 ||
		len(r.SilencedEvents) > 0
}

// exceededDailyQuota reports whether the event's user or device has exhausted
// its daily ingestion quota according to a 429 response.
func (r *serverResponse) exceededDailyQuota(e *Event) bool {
	if e.UserID != "" {
		if _, ok := r.ExceededDailyQuotaUsers[e.UserID]; ok {
			return true
		}
	}
	if e.DeviceID != "" {
		if _, ok := r.ExceededDailyQuotaDevices[e.DeviceID]; ok {
			return true
		}
	}
	return false
}

// httpTransport sends event batches to the ingestion endpoint. It performs no
// retries itself: classification and rescheduling are the worker's job.
type httpTransport struct {
	client      *http.Client
	serverURL   string
	apiKey      string
	minIDLength int
	logger      StructuredLogger
	metrics     Metrics
}

func newHTTPTransport(cfg *Config, logger StructuredLogger, metrics Metrics) *httpTransport {
	return &httpTransport{
		client:      cfg.HTTPClient,
		serverURL:   cfg.ServerURL,
		apiKey:      cfg.APIKey,
		minIDLength: cfg.MinIDLength,
		logger:      logger,
		metrics:     metrics,
	}
}

// send delivers one batch. It returns the parsed response with Code set to
// the HTTP status. Transport failures before any response return an APIError
// with status code 0; non-2xx statuses are returned as data, not as an error,
// so the caller can classify them with the per-event detail attached.
func (t *httpTransport) send(ctx context.Context, events []*Event) (*serverResponse, error) {
	body := payload{APIKey: t.apiKey, Events: events}
	if t.minIDLength > 0 {
		body.Options = &payloadOptions{MinIDLength: t.minIDLength}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	t.metrics.RecordDuration("analytics.request.duration", time.Since(start))
	if err != nil {
		t.metrics.IncrementCounter("analytics.request.network_errors", 1)
		return nil, &APIError{StatusCode: 0, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	parsed := &serverResponse{}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr == nil && len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, parsed); jsonErr != nil {
			t.logger.Debug("failed to parse response body",
				"status", resp.StatusCode, "error", jsonErr)
			parsed = &serverResponse{}
		}
	}
	parsed.Code = resp.StatusCode
	if parsed.Error == "" && parsed.Message != "" {
		parsed.Error = parsed.Message
	}

	t.metrics.IncrementCounter(fmt.Sprintf("analytics.request.status.%d", resp.StatusCode), 1)
	return parsed, nil
}
