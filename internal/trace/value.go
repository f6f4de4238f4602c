// Package trace models agent-session traces: Messages, ToolCalls, and
// ToolOutputs, the recursive Value sum type carried in tool arguments and
// outputs, and Range pointers used to localize policy violations.
package trace

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is the recursive sum type from the trace data model: null, bool,
// number, string, list, or map. It wraps an arbitrary decoded JSON value
// and defers structured interpretation of string content until a rule
// actually dereferences a nested path.
type Value struct {
	raw any
}

// NewValue wraps a Go value (as produced by encoding/json.Unmarshal into
// an any, or hand-built from bool/float64/string/[]Value/map[string]Value)
// as a Value.
func NewValue(raw any) Value {
	return Value{raw: raw}
}

// Null is the Value representing JSON null.
var Null = Value{raw: nil}

// IsNull reports whether the value is null (or unset).
func (v Value) IsNull() bool { return v.raw == nil }

// Raw returns the underlying Go value.
func (v Value) Raw() any { return v.raw }

// AsString returns the value as a string and whether it was one.
func (v Value) AsString() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// AsNumber returns the value as a float64 and whether it was numeric.
// Both float64 and int are accepted so hand-built Values can use either.
func (v Value) AsNumber() (float64, bool) {
	switch n := v.raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool returns the value as a bool and whether it was one.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// AsList returns the value as a list of Values and whether it was a list.
func (v Value) AsList() ([]Value, bool) {
	switch l := v.raw.(type) {
	case []Value:
		return l, true
	case []any:
		out := make([]Value, len(l))
		for i, e := range l {
			out[i] = NewValue(e)
		}
		return out, true
	default:
		return nil, false
	}
}

// AsMap returns the value as a map of Values and whether it was a map.
func (v Value) AsMap() (map[string]Value, bool) {
	switch m := v.raw.(type) {
	case map[string]Value:
		return m, true
	case map[string]any:
		out := make(map[string]Value, len(m))
		for k, e := range m {
			out[k] = NewValue(e)
		}
		return out, true
	default:
		return nil, false
	}
}

// Path descends into the value via successive map-key or list-index
// segments and returns the resolved Value, or false if any segment fails
// to resolve. Each string segment that parses as an integer is also tried
// as a list index, so callers can pass paths from JSONPath segments
// uniformly.
func (v Value) Path(parts ...string) (Value, bool) {
	cur := v
	for _, p := range parts {
		if m, ok := cur.AsMap(); ok {
			next, ok := m[p]
			if !ok {
				return Value{}, false
			}
			cur = next
			continue
		}
		if l, ok := cur.AsList(); ok {
			idx, err := strconv.Atoi(p)
			if err != nil || idx < 0 || idx >= len(l) {
				return Value{}, false
			}
			cur = l[idx]
			continue
		}
		return Value{}, false
	}
	return cur, true
}

// ParsedJSON attempts to interpret a string Value as JSON and returns the
// decoded Value. It does nothing (and returns false) for non-string
// values or strings that fail to parse, implementing the "parse lazily on
// .content.<field> access" behavior described by the trace model: tool
// output strings are never eagerly parsed.
func (v Value) ParsedJSON() (Value, bool) {
	s, ok := v.AsString()
	if !ok {
		return Value{}, false
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return Value{}, false
	}
	return NewValue(decoded), true
}

// String renders the value for diagnostics and for regex/string
// comparisons against non-string values (numbers and bools are formatted
// the same way json.Marshal would render a scalar).
func (v Value) String() string {
	switch x := v.raw.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		b, err := json.Marshal(v.exportable())
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

// exportable converts a Value tree of []Value/map[string]Value back into
// []any/map[string]any so encoding/json can marshal it.
func (v Value) exportable() any {
	switch x := v.raw.(type) {
	case []Value:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e.exportable()
		}
		return out
	case map[string]Value:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = e.exportable()
		}
		return out
	default:
		return x
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.exportable())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	v.raw = decoded
	return nil
}

// Equal compares two values for equality, tolerant of int/float mix as
// required by the semantic matcher's literal-number comparison rule.
func Equal(a, b Value) bool {
	if an, ok := a.AsNumber(); ok {
		if bn, ok := b.AsNumber(); ok {
			return an == bn
		}
	}
	if as, ok := a.AsString(); ok {
		if bs, ok := b.AsString(); ok {
			return as == bs
		}
	}
	if ab, ok := a.AsBool(); ok {
		if bb, ok := b.AsBool(); ok {
			return ab == bb
		}
	}
	if a.IsNull() && b.IsNull() {
		return true
	}
	return false
}
