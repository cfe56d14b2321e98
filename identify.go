package analytics

// User property update operators recognized by the ingestion endpoint.
const (
	OpSet      = "$set"
	OpSetOnce  = "$setOnce"
	OpAdd      = "$add"
	OpAppend   = "$append"
	OpPrepend  = "$prepend"
	OpUnset    = "$unset"
	OpClearAll = "$clearAll"
)

const unsetValue = "-"

// Identify accumulates user property update operations. Each property key is
// claimed by at most one operator: applying a second operation to the same
// key replaces the earlier one (last write wins within one event). ClearAll
// discards every other operation, and no operation can follow it.
type Identify struct {
	claimed map[string]string // property key -> owning operator
	ops     *Properties       // operator -> Properties (or "-" for $clearAll)
}

// NewIdentify returns an empty Identify.
func NewIdentify() *Identify {
	return &Identify{
		claimed: make(map[string]string),
		ops:     NewProperties(),
	}
}

// Set sets a user property to a value.
func (i *Identify) Set(key string, value any) *Identify { return i.apply(OpSet, key, value) }

// SetOnce sets a user property only if it has no value yet.
func (i *Identify) SetOnce(key string, value any) *Identify { return i.apply(OpSetOnce, key, value) }

// Add increments a numeric user property.
func (i *Identify) Add(key string, value float64) *Identify { return i.apply(OpAdd, key, value) }

// Append appends a value to a list-valued user property.
func (i *Identify) Append(key string, value any) *Identify { return i.apply(OpAppend, key, value) }

// Prepend prepends a value to a list-valued user property.
func (i *Identify) Prepend(key string, value any) *Identify { return i.apply(OpPrepend, key, value) }

// Unset removes a user property.
func (i *Identify) Unset(key string) *Identify { return i.apply(OpUnset, key, unsetValue) }

// ClearAll removes all user properties. Any previously recorded operation is
// discarded and later operations are ignored.
func (i *Identify) ClearAll() *Identify {
	i.claimed = make(map[string]string)
	i.ops = NewProperties()
	i.ops.Set(OpClearAll, unsetValue)
	return i
}

// IsValid reports whether at least one operation has been recorded.
func (i *Identify) IsValid() bool {
	return i != nil && i.ops.Len() > 0
}

// Properties returns the operator-keyed user property mapping for the event.
func (i *Identify) Properties() *Properties {
	if i == nil {
		return nil
	}
	return i.ops.Clone()
}

func (i *Identify) apply(op, key string, value any) *Identify {
	if _, ok := i.ops.Get(OpClearAll); ok {
		return i
	}
	if prevOp, ok := i.claimed[key]; ok && prevOp != op {
		if bucket, found := i.ops.Get(prevOp); found {
			if m, isMap := bucket.MapValue(); isMap {
				m.Delete(key)
				if m.Len() == 0 {
					i.ops.Delete(prevOp)
				}
			}
		}
	}
	i.claimed[key] = op

	bucket, ok := i.ops.Get(op)
	var m *Properties
	if ok {
		m, _ = bucket.MapValue()
	}
	if m == nil {
		m = NewProperties()
		i.ops.SetValue(op, Map(m))
	}
	m.Set(key, value)
	return i
}
