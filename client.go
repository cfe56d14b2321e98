package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Client is the analytics client. Track and its convenience wrappers
// validate and enrich events synchronously, then hand copies to every
// registered destination; delivery, batching, and retrying happen on the
// destinations' own goroutines and never block the caller.
//
// A Client is safe for concurrent use. Construct it with NewClient or
// NewWithConfig and release it with Shutdown.
type Client struct {
	config   *Config
	logger   StructuredLogger
	metrics  Metrics
	timeline *timeline
	closed   atomic.Bool
}

// NewClient creates a client with the given API key and options.
func NewClient(apiKey string, opts ...ConfigOption) (*Client, error) {
	cfg := &Config{APIKey: apiKey}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a client from an explicit configuration. Unset
// fields pick up defaults; the configuration is validated before any
// goroutine starts. The context enrichment plugin and the HTTP destination
// are registered automatically.
func NewWithConfig(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		logger:   resolveLogger(cfg),
		metrics:  cfg.Metrics,
		timeline: &timeline{},
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}

	if err := c.Add(&ContextPlugin{}); err != nil {
		return nil, err
	}
	if err := c.Add(&HTTPDestination{}); err != nil {
		return nil, err
	}

	c.logger.Debug("client created", "config", cfg.String())
	return c, nil
}

// Add registers a plugin. Enrichment plugins run in registration order on
// every tracked event; destination plugins each receive their own copy.
func (c *Client) Add(p Plugin) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := p.Setup(c); err != nil {
		return fmt.Errorf("analytics: plugin %q setup failed: %w", p.Name(), err)
	}
	return c.timeline.add(p)
}

// Remove unregisters a previously added plugin. Removing a plugin that was
// never added is a no-op.
func (c *Client) Remove(p Plugin) {
	c.timeline.remove(p)
}

// Track validates and enqueues an event. Identity and context fields are
// filled with precedence: event field, then per-call options, then the
// client-level defaults. The only error surfaced synchronously is a
// *ValidationError (or ErrClientClosed); delivery failures are reported
// asynchronously through the configured callbacks.
func (c *Client) Track(event *Event, options ...*EventOptions) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if event == nil {
		return NewValidationError("event", "event must not be nil")
	}

	for _, opts := range options {
		event.LoadOptions(opts)
	}
	event.LoadOptions(c.config.DefaultOptions)

	if err := event.validate(c.config.MinIDLength); err != nil {
		c.metrics.IncrementCounter("analytics.events.invalid", 1)
		return err
	}

	processed := c.timeline.process(event, c.logger.Error)
	if processed == nil {
		c.logger.Debug("event dropped by enrichment plugin", "event_type", event.EventType)
		return nil
	}

	c.metrics.IncrementCounter("analytics.events.tracked", 1)
	for _, dest := range c.timeline.destinationList() {
		if err := dest.Execute(processed.Clone()); err != nil {
			c.logger.Error("destination rejected event",
				"destination", dest.Name(), "error", err)
		}
	}
	return nil
}

// Identify applies user property operations for a user or device.
func (c *Client) Identify(identify *Identify, options ...*EventOptions) error {
	if identify == nil || !identify.IsValid() {
		return NewValidationError("identify", "identify has no operations")
	}
	event := NewEvent(IdentifyEventType)
	event.UserProperties = identify.Properties()
	return c.Track(event, options...)
}

// GroupIdentify applies property operations to a group of the given type and
// name.
func (c *Client) GroupIdentify(groupType, groupName string, identify *Identify, options ...*EventOptions) error {
	if groupType == "" || groupName == "" {
		return NewValidationError("groups", "group type and group name are required")
	}
	if identify == nil || !identify.IsValid() {
		return NewValidationError("identify", "identify has no operations")
	}
	event := NewEvent(GroupIdentifyEventType)
	event.Groups = map[string][]string{groupType: {groupName}}
	event.GroupProperties = identify.Properties()
	return c.Track(event, options...)
}

// SetGroup associates the user with a group by tracking a $identify event
// carrying a group assignment.
func (c *Client) SetGroup(groupType string, groupNames []string, options ...*EventOptions) error {
	if groupType == "" || len(groupNames) == 0 {
		return NewValidationError("groups", "group type and at least one group name are required")
	}
	identify := NewIdentify()
	identify.Set(groupType, groupNames)
	event := NewEvent(IdentifyEventType)
	event.UserProperties = identify.Properties()
	event.Groups = map[string][]string{groupType: groupNames}
	return c.Track(event, options...)
}

// Flush asks every destination to send its buffered events now. The returned
// channel is closed once every event buffered at call time has been given at
// least one send attempt; it says nothing about events tracked afterwards.
func (c *Client) Flush() <-chan struct{} {
	destinations := c.timeline.destinationList()
	pending := make([]<-chan struct{}, 0, len(destinations))
	for _, dest := range destinations {
		pending = append(pending, dest.Flush())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range pending {
			<-ch
		}
	}()
	return done
}

// Shutdown stops the client: no further events are accepted, every
// destination performs a final flush bounded by ctx (or by ShutdownTimeout
// when ctx carries no deadline), and worker goroutines exit. Shutdown is
// idempotent; events that could not be delivered in time are reported
// through the error callbacks and may be lost.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for _, dest := range c.timeline.destinationList() {
		if err := dest.Shutdown(ctx); err != nil {
			c.logger.Error("destination shutdown failed",
				"destination", dest.Name(), "error", err)
			errs = append(errs, err)
		}
	}

	c.logger.Debug("client shut down")
	return errors.Join(errs...)
}

// resolveLogger picks the client's structured logger: an explicit structured
// logger wins, then a wrapped printf logger, then a stderr fallback that
// keeps warnings and errors visible.
func resolveLogger(cfg *Config) StructuredLogger {
	if cfg.StructuredLogger != nil {
		return cfg.StructuredLogger
	}
	if cfg.Logger != nil {
		return WrapPrintfLogger(cfg.Logger)
	}
	return stderrFallbackLogger{}
}
