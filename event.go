package analytics

// Special event types whose event_type carries an operator instead of a
// caller-chosen name. They are exempt from the non-empty event_type rule.
const (
	IdentifyEventType      = "$identify"
	GroupIdentifyEventType = "$groupidentify"
)

// EventCallback is invoked once per event when the event reaches a terminal
// state: delivered, rejected, or dropped after retry exhaustion.
type EventCallback func(event *Event, code int, message string)

// EventOptions is the identity and context overlay that can be supplied per
// call. Precedence for every field is: value set on the event itself, then
// the EventOptions passed at call time, then the client-level defaults.
type EventOptions struct {
	UserID     string `json:"user_id,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	Time       int64  `json:"time,omitempty"` // epoch milliseconds
	InsertID   string `json:"insert_id,omitempty"`
	SessionID  int64  `json:"session_id,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Platform   string `json:"platform,omitempty"`
	OSName     string `json:"os_name,omitempty"`
	OSVersion  string `json:"os_version,omitempty"`
	IP         string `json:"ip,omitempty"`
	Library    string `json:"library,omitempty"`
}

// merge fills every unset field of o from src.
func (o *EventOptions) merge(src *EventOptions) {
	if src == nil {
		return
	}
	if o.UserID == "" {
		o.UserID = src.UserID
	}
	if o.DeviceID == "" {
		o.DeviceID = src.DeviceID
	}
	if o.Time == 0 {
		o.Time = src.Time
	}
	if o.InsertID == "" {
		o.InsertID = src.InsertID
	}
	if o.SessionID == 0 {
		o.SessionID = src.SessionID
	}
	if o.AppVersion == "" {
		o.AppVersion = src.AppVersion
	}
	if o.Platform == "" {
		o.Platform = src.Platform
	}
	if o.OSName == "" {
		o.OSName = src.OSName
	}
	if o.OSVersion == "" {
		o.OSVersion = src.OSVersion
	}
	if o.IP == "" {
		o.IP = src.IP
	}
	if o.Library == "" {
		o.Library = src.Library
	}
}

// Event is one analytics occurrence. Events are created by the caller,
// validated and enriched synchronously, then handed to a destination's
// worker; after that point the worker owns the event.
type Event struct {
	EventType string `json:"event_type"`
	EventOptions

	EventProperties *Properties         `json:"event_properties,omitempty"`
	UserProperties  *Properties         `json:"user_properties,omitempty"`
	GroupProperties *Properties         `json:"group_properties,omitempty"`
	Groups          map[string][]string `json:"groups,omitempty"`

	// Callback is invoked in addition to the client-level callbacks when
	// this event reaches a terminal state. Not serialized.
	Callback EventCallback `json:"-"`

	// retries counts send attempts that ended in a retryable failure.
	// Transient: never serialized, reset to zero on construction.
	retries int
}

// NewEvent returns an event of the given type.
func NewEvent(eventType string) *Event {
	return &Event{EventType: eventType}
}

// LoadOptions fills unset identity/context fields from opts.
// Fields already present on the event win.
func (e *Event) LoadOptions(opts *EventOptions) *Event {
	e.EventOptions.merge(opts)
	return e
}

// RetryCount returns the number of retryable failures this event has seen.
func (e *Event) RetryCount() int { return e.retries }

// isIdentityMutation reports whether the event type is one of the special
// identity-mutation operators.
func (e *Event) isIdentityMutation() bool {
	return e.EventType == IdentifyEventType || e.EventType == GroupIdentifyEventType
}

// validate checks the invariants an event must satisfy before it may be
// queued. minIDLength <= 0 means only presence is required.
func (e *Event) validate(minIDLength int) error {
	if e.EventType == "" && !e.isIdentityMutation() {
		return NewValidationError("event_type", "event_type is required")
	}
	if e.UserID == "" && e.DeviceID == "" {
		return NewValidationError("user_id", "at least one of user_id or device_id is required")
	}
	if minIDLength > 0 {
		if e.UserID != "" && len(e.UserID) < minIDLength {
			return NewValidationError("user_id", "user_id is shorter than the configured minimum length")
		}
		if e.DeviceID != "" && len(e.DeviceID) < minIDLength {
			return NewValidationError("device_id", "device_id is shorter than the configured minimum length")
		}
	}
	return nil
}

// Clone returns a copy of the event for independent destination fan-out.
// The retry counter does not carry over: each destination tracks its own
// delivery attempts.
func (e *Event) Clone() *Event {
	c := &Event{
		EventType:       e.EventType,
		EventOptions:    e.EventOptions,
		EventProperties: e.EventProperties.Clone(),
		UserProperties:  e.UserProperties.Clone(),
		GroupProperties: e.GroupProperties.Clone(),
		Callback:        e.Callback,
	}
	if e.Groups != nil {
		c.Groups = make(map[string][]string, len(e.Groups))
		for k, v := range e.Groups {
			names := make([]string, len(v))
			copy(names, v)
			c.Groups[k] = names
		}
	}
	return c
}
