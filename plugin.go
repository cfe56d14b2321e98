package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Plugin is the base capability shared by all pipeline stages. Setup is
// invoked once when the plugin is registered with a client, giving it read
// access to the configuration.
type Plugin interface {
	Name() string
	Setup(client *Client) error
}

// EnrichmentPlugin transforms or filters events before they are queued.
// Execute may return a modified event, the unchanged event, or (nil, nil) to
// drop the event: a dropped event halts the pipeline and never reaches any
// destination. A returned error (or a panic) is logged and treated as a
// pass-through: the event continues with its pre-plugin value.
type EnrichmentPlugin interface {
	Plugin
	Execute(event *Event) (*Event, error)
}

// DestinationPlugin delivers enriched events to one backend. Each registered
// destination receives its own copy of every event (fan-out, not pipeline)
// and owns its delivery semantics.
type DestinationPlugin interface {
	Plugin

	// Execute hands an event to the destination. It must not block on
	// network I/O; delivery happens on the destination's own worker.
	Execute(event *Event) error

	// Flush returns a channel closed once every event buffered at call time
	// has been given at least one send attempt.
	Flush() <-chan struct{}

	// Shutdown stops accepting events, performs a final bounded flush, and
	// releases the destination's resources.
	Shutdown(ctx context.Context) error
}

// timeline holds the ordered plugin lists. Enrichment plugins run strictly
// in registration order; destinations are independent.
type timeline struct {
	mu           sync.RWMutex
	enrichment   []EnrichmentPlugin
	destinations []DestinationPlugin
}

func (t *timeline) add(p Plugin) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch plugin := p.(type) {
	case DestinationPlugin:
		t.destinations = append(t.destinations, plugin)
	case EnrichmentPlugin:
		t.enrichment = append(t.enrichment, plugin)
	default:
		return fmt.Errorf("analytics: plugin %q is neither an enrichment nor a destination plugin", p.Name())
	}
	return nil
}

// remove unregisters a plugin by reference. Unknown plugins are a no-op.
func (t *timeline) remove(p Plugin) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.enrichment {
		if e == p {
			t.enrichment = append(t.enrichment[:i], t.enrichment[i+1:]...)
			return
		}
	}
	for i, d := range t.destinations {
		if d == p {
			t.destinations = append(t.destinations[:i], t.destinations[i+1:]...)
			return
		}
	}
}

func (t *timeline) destinationList() []DestinationPlugin {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DestinationPlugin, len(t.destinations))
	copy(out, t.destinations)
	return out
}

// process runs the enrichment stage. It returns nil when a plugin dropped
// the event. A plugin that errors or panics is skipped and the event
// continues unchanged, so one faulty plugin cannot stall delivery.
func (t *timeline) process(event *Event, logError func(msg string, args ...any)) *Event {
	t.mu.RLock()
	plugins := make([]EnrichmentPlugin, len(t.enrichment))
	copy(plugins, t.enrichment)
	t.mu.RUnlock()

	for _, p := range plugins {
		result, err := safeExecute(p, event)
		if err != nil {
			logError("enrichment plugin failed, passing event through",
				"plugin", p.Name(), "error", err)
			continue
		}
		if result == nil {
			return nil
		}
		event = result
	}
	return event
}

// safeExecute runs a plugin with panic recovery.
func safeExecute(p EnrichmentPlugin, event *Event) (result *Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("analytics: plugin %q panicked: %v", p.Name(), r)
		}
	}()
	return p.Execute(event)
}

// ContextPlugin is registered on every client by default. It stamps events
// with a timestamp, an idempotency insert_id, and the SDK library string
// when the caller did not supply them.
type ContextPlugin struct{}

// Name implements Plugin.
func (*ContextPlugin) Name() string { return "context" }

// Setup implements Plugin.
func (*ContextPlugin) Setup(client *Client) error { return nil }

// Execute implements EnrichmentPlugin.
func (*ContextPlugin) Execute(event *Event) (*Event, error) {
	if event.Time == 0 {
		event.Time = time.Now().UnixMilli()
	}
	if event.InsertID == "" {
		event.InsertID = uuid.NewString()
	}
	if event.Library == "" {
		event.Library = sdkLibrary + "/" + sdkVersion
	}
	return event, nil
}

var _ EnrichmentPlugin = (*ContextPlugin)(nil)
