package analytics

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ServerZone selects the regional ingestion endpoint.
type ServerZone string

// Server zones.
const (
	ServerZoneUS ServerZone = "US"
	ServerZoneEU ServerZone = "EU"
)

// Ingestion endpoint URLs by zone. UseBatch selects the batch endpoint,
// which accepts larger payloads at higher latency.
var serverURLs = map[ServerZone]map[bool]string{
	ServerZoneUS: {
		false: "https://api.pulsekit.io/2/httpapi",
		true:  "https://api.pulsekit.io/batch",
	},
	ServerZoneEU: {
		false: "https://api.eu.pulsekit.io/2/httpapi",
		true:  "https://api.eu.pulsekit.io/batch",
	},
}

// Environment variable names for configuration.
const (
	EnvAPIKey     = "PULSEKIT_API_KEY"
	EnvServerURL  = "PULSEKIT_SERVER_URL"
	EnvServerZone = "PULSEKIT_SERVER_ZONE"
	EnvDebug      = "PULSEKIT_DEBUG"
)

// Default configuration values.
const (
	// DefaultFlushQueueSize is the maximum number of events per outbound batch.
	DefaultFlushQueueSize = 200

	// DefaultFlushInterval is the maximum buffering delay before a partial
	// batch is sent.
	DefaultFlushInterval = 10 * time.Second

	// DefaultMaxRetries is the maximum number of retryable failures per event
	// before it is dropped and reported.
	DefaultMaxRetries = 12

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultShutdownTimeout bounds the final flush during Shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultRetryBaseDelay is the backoff delay after the first retryable
	// failure. Subsequent failures double it, up to DefaultRetryMaxDelay.
	DefaultRetryBaseDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay caps the exponential backoff delay.
	DefaultRetryMaxDelay = 10 * time.Second

	// DefaultRetryThrottleDelay is applied to events the server throttled
	// (429 with per-event detail) that have not exceeded a daily quota.
	DefaultRetryThrottleDelay = 30 * time.Second

	// MinFlushInterval is the minimum allowed flush interval.
	MinFlushInterval = 10 * time.Millisecond
)

// SDK identity attached to events by the context plugin.
const (
	sdkLibrary = "pulsekit-analytics-go"
	sdkVersion = "1.1.0"
)

// Config holds the configuration for a Client. The zero value is not usable;
// construct clients through NewClient or NewWithConfig so defaults and
// validation apply.
type Config struct {
	// APIKey authenticates the project events are delivered to (required).
	APIKey string

	// ServerURL overrides the ingestion endpoint. If empty it is derived
	// from ServerZone and UseBatch.
	ServerURL string

	// ServerZone selects the regional endpoint. Defaults to ServerZoneUS.
	ServerZone ServerZone

	// UseBatch selects the batch API endpoint instead of the HTTP V2 one.
	UseBatch bool

	// FlushQueueSize is the maximum number of events per outbound batch.
	// Every drain — timer, size trigger, or explicit Flush — is sliced into
	// batches no larger than this.
	FlushQueueSize int

	// FlushInterval is the maximum time events wait in the buffer before a
	// partial batch is sent.
	FlushInterval time.Duration

	// MaxRetries is the number of retryable failures an event may accumulate
	// before it is dropped and reported through the error callback.
	MaxRetries int

	// MinIDLength is the minimum accepted length for user_id and device_id.
	// Zero disables the length check and omits the option from the payload.
	MinIDLength int

	// MaxBufferCapacity bounds the destination buffer. Zero means unbounded.
	// When the bound is reached the newest event is dropped and reported —
	// enqueue never blocks the caller.
	MaxBufferCapacity int

	// RetryBaseDelay, RetryMaxDelay configure the exponential backoff applied
	// to retryable failures. RetryThrottleDelay is used for throttled events.
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	RetryThrottleDelay time.Duration

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// ShutdownTimeout bounds the final flush performed by Shutdown.
	ShutdownTimeout time.Duration

	// HTTPClient is used for all requests. A default client with Timeout is
	// created if nil.
	HTTPClient *http.Client

	// OnSuccess is invoked once per event after a successful delivery.
	OnSuccess EventCallback

	// OnError is invoked exactly once per event when it reaches a terminal
	// failure: server rejection, retry exhaustion, overflow, or loss during
	// shutdown.
	OnError EventCallback

	// DefaultOptions supplies client-level identity/context defaults, applied
	// with the lowest precedence (event field > per-call options > defaults).
	DefaultOptions *EventOptions

	// Logger is used for printf-style SDK logging.
	Logger Logger

	// StructuredLogger is used for structured SDK logging and takes
	// precedence over Logger.
	StructuredLogger StructuredLogger

	// Metrics receives SDK telemetry. Nil disables collection.
	Metrics Metrics

	// Debug enables a default stderr logger when no logger is configured.
	Debug bool
}

// applyDefaults sets default values for unset configuration options.
func (c *Config) applyDefaults() {
	if c.ServerZone == "" {
		c.ServerZone = ServerZoneUS
	}
	if c.ServerURL == "" {
		if urls, ok := serverURLs[c.ServerZone]; ok {
			c.ServerURL = urls[c.UseBatch]
		}
	}
	if c.FlushQueueSize == 0 {
		c.FlushQueueSize = DefaultFlushQueueSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.RetryThrottleDelay == 0 {
		c.RetryThrottleDelay = DefaultRetryThrottleDelay
	}
	if c.Debug && c.Logger == nil && c.StructuredLogger == nil {
		c.Logger = log.New(os.Stderr, "analytics: ", log.LstdFlags)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	if _, err := url.Parse(c.ServerURL); err != nil {
		return fmt.Errorf("analytics: invalid server URL: %w", err)
	}
	if c.FlushQueueSize < 1 {
		return fmt.Errorf("analytics: flush queue size must be at least 1, got %d", c.FlushQueueSize)
	}
	if c.FlushInterval < MinFlushInterval {
		return fmt.Errorf("analytics: flush interval must be at least %v", MinFlushInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("analytics: max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.MinIDLength < 0 {
		return fmt.Errorf("analytics: min ID length cannot be negative, got %d", c.MinIDLength)
	}
	if c.MaxBufferCapacity < 0 {
		return fmt.Errorf("analytics: max buffer capacity cannot be negative, got %d", c.MaxBufferCapacity)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("analytics: timeout cannot be negative")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("analytics: retry delays must satisfy 0 < base <= max")
	}
	return nil
}

// String returns a representation of the config safe for logs: the API key
// is masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{APIKey: %q, ServerURL: %q, FlushQueueSize: %d, FlushInterval: %v, MaxRetries: %d}",
		MaskCredential(c.APIKey), c.ServerURL, c.FlushQueueSize, c.FlushInterval, c.MaxRetries)
}

// MaskCredential masks a credential for safe logging, keeping only the last
// four characters visible.
func MaskCredential(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	masked := make([]byte, len(s)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + s[len(s)-4:]
}

// NewFromEnv creates a client configured from PULSEKIT_* environment
// variables. Explicit options override the environment.
func NewFromEnv(opts ...ConfigOption) (*Client, error) {
	apiKey := os.Getenv(EnvAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("analytics: %s environment variable is required", EnvAPIKey)
	}

	envOpts := make([]ConfigOption, 0, 3)
	if serverURL := os.Getenv(EnvServerURL); serverURL != "" {
		envOpts = append(envOpts, WithServerURL(serverURL))
	}
	if zone := os.Getenv(EnvServerZone); zone != "" {
		envOpts = append(envOpts, WithServerZone(ServerZone(zone)))
	}
	if debug := os.Getenv(EnvDebug); debug == "true" || debug == "1" {
		envOpts = append(envOpts, WithDebug(true))
	}

	return NewClient(apiKey, append(envOpts, opts...)...)
}
