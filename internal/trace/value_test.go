package trace

import "testing"

func TestValue_Path(t *testing.T) {
	v := NewValue(map[string]any{
		"a": map[string]any{"b": []any{float64(1), float64(2), "three"}},
	})

	got, ok := v.Path("a", "b", "2")
	if !ok {
		t.Fatal("Path did not resolve")
	}
	if s, _ := got.AsString(); s != "three" {
		t.Errorf("got %v, want three", s)
	}

	if _, ok := v.Path("a", "missing"); ok {
		t.Error("expected missing path to fail")
	}
}

func TestValue_ParsedJSON(t *testing.T) {
	v := NewValue(`{"nested": true}`)
	parsed, ok := v.ParsedJSON()
	if !ok {
		t.Fatal("expected to parse embedded JSON")
	}
	m, ok := parsed.AsMap()
	if !ok {
		t.Fatal("expected a map")
	}
	b, _ := m["nested"].AsBool()
	if !b {
		t.Error("nested field not true")
	}

	if _, ok := NewValue("not json").ParsedJSON(); ok {
		t.Error("expected non-JSON string to fail to parse")
	}
}

func TestEqual_NumericTolerance(t *testing.T) {
	if !Equal(NewValue(float64(1)), NewValue(1)) {
		t.Error("want int/float64 to compare equal")
	}
	if Equal(NewValue("1"), NewValue(float64(1))) {
		t.Error("want string/number to compare unequal")
	}
}
