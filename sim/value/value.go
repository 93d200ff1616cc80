// Package value holds the serialized argument and resource value model.
//
// Value is a sealed interface: only Null, Real, Int, Bool, String, List and Map
// implement it. Activity arguments, discrete profile samples and activity
// results are all expressed with these variants.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Value is one of the serialized value variants.
type Value interface {
	isValue()
}

// Null is the absent value.
type Null struct{}

// Real is a 64-bit floating point number.
type Real float64

// Int is a 64-bit signed integer.
type Int int64

// Bool is a boolean.
type Bool bool

// String is a UTF-8 string.
type String string

// List is an ordered sequence of values.
type List []Value

// Map is a string-keyed collection of values. Use SortedKeys for deterministic iteration.
type Map map[string]Value

func (Null) isValue()   {}
func (Real) isValue()   {}
func (Int) isValue()    {}
func (Bool) isValue()   {}
func (String) isValue() {}
func (List) isValue()   {}
func (Map) isValue()    {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON always emits a fraction or exponent so the value decodes back as a Real.
func (r Real) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("value: cannot encode %v as JSON", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// SortedKeys returns the map keys in byte order.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether a and b are the same variant holding the same data.
// Nil is treated as Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Real:
		bv, ok := b.(Real)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, present := bv[k]
			if !present || !Equal(x, y) {
				return false
			}
		}
		return true
	}
	return false
}

// Format renders v deterministically for logs and tables.
func Format(v Value) string {
	var b strings.Builder
	format(&b, v)
	return b.String()
}

func format(b *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil, Null:
		b.WriteString("null")
	case Real:
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
	case Int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(x)))
	case String:
		b.WriteString(strconv.Quote(string(x)))
	case List:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, e)
		}
		b.WriteByte(']')
	case Map:
		b.WriteByte('{')
		for i, k := range x.SortedKeys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			format(b, x[k])
		}
		b.WriteByte('}')
	}
}

// FromAny converts decoded YAML or JSON data into a Value.
// Integral numbers become Int, other numbers Real.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case int:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("value: integer %d overflows int64", v)
		}
		return Int(v), nil
	case float64:
		return Real(v), nil
	case json.Number:
		if !strings.ContainsAny(v.String(), ".eE") {
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			return Int(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return Real(f), nil
	case []any:
		out := make(List, len(v))
		for i, e := range v {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(v))
		for k, e := range v {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	}
	return nil, fmt.Errorf("value: unsupported type %T", x)
}

// ParseJSON decodes JSON produced by json.Marshal of a Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("value: decode json: %w", err)
	}
	return FromAny(raw)
}
