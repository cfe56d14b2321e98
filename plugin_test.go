package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type renamePlugin struct {
	name   string
	suffix string
}

func (p *renamePlugin) Name() string               { return p.name }
func (p *renamePlugin) Setup(client *Client) error { return nil }
func (p *renamePlugin) Execute(event *Event) (*Event, error) {
	event.EventType += p.suffix
	return event, nil
}

type dropPlugin struct{}

func (dropPlugin) Name() string                         { return "drop" }
func (dropPlugin) Setup(client *Client) error           { return nil }
func (dropPlugin) Execute(event *Event) (*Event, error) { return nil, nil }

type panicPlugin struct{}

func (panicPlugin) Name() string               { return "panic" }
func (panicPlugin) Setup(client *Client) error { return nil }
func (panicPlugin) Execute(event *Event) (*Event, error) {
	panic("boom")
}

type errorPlugin struct{}

func (errorPlugin) Name() string               { return "error" }
func (errorPlugin) Setup(client *Client) error { return nil }
func (errorPlugin) Execute(event *Event) (*Event, error) {
	return nil, errors.New("plugin failed")
}

// memoryDestination records events for assertions.
type memoryDestination struct {
	mu     sync.Mutex
	events []*Event
}

func (*memoryDestination) Name() string               { return "memory" }
func (*memoryDestination) Setup(client *Client) error { return nil }

func (d *memoryDestination) Execute(event *Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *memoryDestination) Flush() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (d *memoryDestination) Shutdown(ctx context.Context) error { return nil }

func (d *memoryDestination) received() []*Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Event, len(d.events))
	copy(out, d.events)
	return out
}

func nopLogError(msg string, args ...any) {}

func TestTimelineRunsEnrichmentInRegistrationOrder(t *testing.T) {
	tl := &timeline{}
	if err := tl.add(&renamePlugin{name: "a", suffix: "-a"}); err != nil {
		t.Fatal(err)
	}
	if err := tl.add(&renamePlugin{name: "b", suffix: "-b"}); err != nil {
		t.Fatal(err)
	}

	got := tl.process(NewEvent("click"), nopLogError)
	if got == nil || got.EventType != "click-a-b" {
		t.Fatalf("process() = %v, want click-a-b", got)
	}
}

func TestTimelineDropHaltsPipeline(t *testing.T) {
	tl := &timeline{}
	tl.add(dropPlugin{})
	tl.add(&renamePlugin{name: "after", suffix: "-never"})

	if got := tl.process(NewEvent("click"), nopLogError); got != nil {
		t.Fatalf("dropped event reached later plugins: %v", got)
	}
}

func TestTimelinePanicAndErrorPassThrough(t *testing.T) {
	var logged []string
	logError := func(msg string, args ...any) {
		logged = append(logged, msg)
	}

	tl := &timeline{}
	tl.add(panicPlugin{})
	tl.add(errorPlugin{})

	got := tl.process(NewEvent("click"), logError)
	if got == nil || got.EventType != "click" {
		t.Fatalf("faulty plugins must pass the event through, got %v", got)
	}
	if len(logged) != 2 {
		t.Fatalf("logged %d failures, want 2", len(logged))
	}
}

func TestTimelineRemove(t *testing.T) {
	tl := &timeline{}
	p := &renamePlugin{name: "a", suffix: "-a"}
	tl.add(p)
	tl.remove(p)

	got := tl.process(NewEvent("click"), nopLogError)
	if got.EventType != "click" {
		t.Fatalf("removed plugin still ran: %v", got.EventType)
	}

	// Removing an unknown plugin is a no-op.
	tl.remove(&renamePlugin{name: "other"})
}

func TestContextPluginStampsDefaults(t *testing.T) {
	event := NewEvent("click")
	got, err := (&ContextPlugin{}).Execute(event)
	if err != nil {
		t.Fatal(err)
	}

	if got.Time == 0 {
		t.Error("expected timestamp to be stamped")
	}
	if got.InsertID == "" {
		t.Error("expected insert_id to be stamped")
	}
	if !strings.HasPrefix(got.Library, sdkLibrary+"/") {
		t.Errorf("Library = %q, want %s/<version>", got.Library, sdkLibrary)
	}
}

func TestContextPluginKeepsExplicitValues(t *testing.T) {
	event := NewEvent("click")
	event.Time = 12345
	event.InsertID = "fixed-id"
	event.Library = "custom/1.0"

	got, _ := (&ContextPlugin{}).Execute(event)
	if got.Time != 12345 || got.InsertID != "fixed-id" || got.Library != "custom/1.0" {
		t.Fatalf("explicit values were overwritten: %+v", got.EventOptions)
	}
}
