package analytics

import (
	"net/http"
	"time"
)

// ConfigOption is a function that modifies a Config.
type ConfigOption func(*Config)

// WithServerURL sets a custom ingestion endpoint URL.
func WithServerURL(serverURL string) ConfigOption {
	return func(c *Config) {
		c.ServerURL = serverURL
	}
}

// WithServerZone selects the regional ingestion endpoint.
func WithServerZone(zone ServerZone) ConfigOption {
	return func(c *Config) {
		c.ServerZone = zone
	}
}

// WithBatchAPI selects the batch API endpoint instead of the HTTP V2 one.
func WithBatchAPI(useBatch bool) ConfigOption {
	return func(c *Config) {
		c.UseBatch = useBatch
	}
}

// WithFlushQueueSize sets the maximum number of events per outbound batch.
func WithFlushQueueSize(size int) ConfigOption {
	return func(c *Config) {
		c.FlushQueueSize = size
	}
}

// WithFlushInterval sets the maximum buffering delay before a partial batch
// is sent.
func WithFlushInterval(interval time.Duration) ConfigOption {
	return func(c *Config) {
		c.FlushInterval = interval
	}
}

// WithMaxRetries sets the maximum retryable failures per event.
func WithMaxRetries(maxRetries int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = maxRetries
	}
}

// WithMinIDLength sets the minimum accepted length for user_id and
// device_id. The value is also forwarded to the server in the payload
// options.
func WithMinIDLength(n int) ConfigOption {
	return func(c *Config) {
		c.MinIDLength = n
	}
}

// WithMaxBufferCapacity bounds the destination buffer. When the bound is
// reached, the newest event is dropped and reported instead of blocking the
// caller. Zero (the default) means unbounded.
func WithMaxBufferCapacity(n int) ConfigOption {
	return func(c *Config) {
		c.MaxBufferCapacity = n
	}
}

// WithRetryDelays configures the exponential backoff bounds.
func WithRetryDelays(base, max time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryBaseDelay = base
		c.RetryMaxDelay = max
	}
}

// WithRetryThrottleDelay sets the delay applied to throttled events.
func WithRetryThrottleDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryThrottleDelay = d
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithShutdownTimeout bounds the final flush performed by Shutdown.
func WithShutdownTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.ShutdownTimeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ConfigOption {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithOnSuccess sets the per-event success callback.
func WithOnSuccess(cb EventCallback) ConfigOption {
	return func(c *Config) {
		c.OnSuccess = cb
	}
}

// WithOnError sets the per-event terminal failure callback.
func WithOnError(cb EventCallback) ConfigOption {
	return func(c *Config) {
		c.OnError = cb
	}
}

// WithDefaultOptions sets client-level identity/context defaults.
func WithDefaultOptions(opts *EventOptions) ConfigOption {
	return func(c *Config) {
		c.DefaultOptions = opts
	}
}

// WithLogger sets a printf-style logger.
func WithLogger(logger Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithStructuredLogger sets a structured logger. Takes precedence over
// WithLogger.
func WithStructuredLogger(logger StructuredLogger) ConfigOption {
	return func(c *Config) {
		c.StructuredLogger = logger
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(metrics Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithDebug enables debug logging to stderr when no logger is configured.
func WithDebug(debug bool) ConfigOption {
	return func(c *Config) {
		c.Debug = debug
	}
}
