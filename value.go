package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the normalized representation of a property value. Every value
// that enters the engine is converted to this tagged union so downstream
// stages (plugins, batching, transport) never deal with raw interface{}
// shapes. Encoding is deterministic: lists keep element order, Properties
// keep insertion order, and plain Go maps are encoded with sorted keys.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    *Properties
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list Value holding the given elements.
func List(elems ...Value) Value { return Value{kind: KindList, list: elems} }

// Map returns a map Value backed by the given Properties.
// A nil Properties yields an empty map value.
func Map(p *Properties) Value {
	if p == nil {
		p = NewProperties()
	}
	return Value{kind: KindMap, m: p}
}

// ValueOf normalizes an arbitrary Go value into a Value. Supported inputs
// are nil, strings, bools, all integer and float types, Value itself,
// *Properties, []any (and []Value), and map[string]any. Map keys from plain
// Go maps are inserted in sorted order so the resulting encoding is
// deterministic. Unsupported types return an error.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float32:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case []Value:
		return List(x...), nil
	case []any:
		elems := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ev)
		}
		return List(elems...), nil
	case []string:
		elems := make([]Value, 0, len(x))
		for _, s := range x {
			elems = append(elems, String(s))
		}
		return List(elems...), nil
	case *Properties:
		return Map(x), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		p := NewProperties()
		for _, k := range keys {
			ev, err := ValueOf(x[k])
			if err != nil {
				return Value{}, err
			}
			p.SetValue(k, ev)
		}
		return Map(p), nil
	default:
		return Value{}, fmt.Errorf("analytics: unsupported property value type %T", v)
	}
}

// MustValue is like ValueOf but panics on unsupported types.
// Intended for literals in tests and examples.
func MustValue(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Kind returns the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// StringValue returns the string payload and true if the value is a string.
func (v Value) StringValue() (string, bool) { return v.str, v.kind == KindString }

// NumberValue returns the numeric payload and true if the value is a number.
func (v Value) NumberValue() (float64, bool) { return v.num, v.kind == KindNumber }

// BoolValue returns the boolean payload and true if the value is a bool.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// ListValue returns the list payload and true if the value is a list.
func (v Value) ListValue() ([]Value, bool) { return v.list, v.kind == KindList }

// MapValue returns the map payload and true if the value is a map.
func (v Value) MapValue() (*Properties, bool) { return v.m, v.kind == KindMap }

// IsNull returns true for the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// MarshalJSON implements json.Marshaler with a deterministic encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("analytics: cannot encode non-finite number %v", v.num)
		}
		// Integral numbers encode without an exponent or trailing zeros.
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return []byte(strconv.FormatInt(int64(v.num), 10)), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'g', -1, 64)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return v.m.MarshalJSON()
	default:
		return nil, fmt.Errorf("analytics: cannot encode value of kind %v", v.kind)
	}
}

// Properties is an ordered mapping with string keys and Value values.
// Iteration and JSON encoding follow insertion order; re-setting an existing
// key updates the value in place and keeps its original position.
type Properties struct {
	keys   []string
	values map[string]Value
}

// NewProperties returns an empty Properties.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]Value)}
}

// Set normalizes v via ValueOf and stores it under key.
// Unsupported value types are silently skipped; use SetValue with an
// explicit Value when the caller needs an error surface.
func (p *Properties) Set(key string, v any) *Properties {
	val, err := ValueOf(v)
	if err != nil {
		return p
	}
	return p.SetValue(key, val)
}

// SetValue stores an already-normalized Value under key.
func (p *Properties) SetValue(key string, v Value) *Properties {
	if p.values == nil {
		p.values = make(map[string]Value)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
	return p
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (Value, bool) {
	if p == nil || p.values == nil {
		return Value{}, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key, preserving the order of the remaining keys.
func (p *Properties) Delete(key string) {
	if p == nil || p.values == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Clone returns a shallow copy. Value payloads are immutable from the
// caller's perspective, so sharing them between clones is safe.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	c := &Properties{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]Value, len(p.values)),
	}
	copy(c.keys, p.keys)
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON encodes the properties as a JSON object in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil || len(p.keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := p.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
