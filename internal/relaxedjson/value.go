// Package relaxedjson parses a superset of JSON used by mapping configuration
// files. Beyond strict JSON it accepts unquoted and single-quoted object keys
// (including bare numeric and boolean keys) and single-quoted strings, and it
// can coerce textual object keys into typed scalar keys.
//
// The result of a parse is an immutable Value tree. Objects preserve
// declaration order, and after key coercion their keys are typed Values, so a
// map declared as {2: "x"} is addressed with the integer key 2, not the
// string "2".
package relaxedjson

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindList
	KindMap
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is one node of a parsed document. The zero Value has KindNull.
// Values are immutable once constructed; they may be read concurrently.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	ents []Entry
	idx  map[mapKey]int
}

// Entry is one key/value pair of a map Value, in declaration order.
type Entry struct {
	Key Value
	Val Value
}

// mapKey is the comparable identity of a scalar key. Keys are always scalars:
// JSON object keys are strings before coercion and booleans, integers, or
// floats after.
type mapKey struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

func scalarKey(v Value) (mapKey, bool) {
	switch v.kind {
	case KindNull, KindBool, KindInt32, KindInt64, KindFloat64, KindString:
		return mapKey{kind: v.kind, b: v.b, i: v.i, f: v.f, s: v.s}, true
	default:
		return mapKey{}, false
	}
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// Int32Value returns a 32-bit integer Value.
func Int32Value(i int32) Value { return Value{kind: KindInt32, i: int64(i)} }

// Int64Value returns a 64-bit integer Value.
func Int64Value(i int64) Value { return Value{kind: KindInt64, i: i} }

// Float64Value returns a floating-point Value.
func Float64Value(f float64) Value { return Value{kind: KindFloat64, f: f} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ListValue returns a list Value holding elems in order. The slice is owned
// by the returned Value and must not be modified afterwards.
func ListValue(elems []Value) Value { return Value{kind: KindList, list: elems} }

// MapValue returns a map Value holding entries in declaration order. When two
// entries carry equal keys the later value replaces the earlier one while the
// key keeps its original position, matching ordered-map insert semantics.
func MapValue(entries []Entry) Value {
	idx := make(map[mapKey]int, len(entries))
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k, ok := scalarKey(e.Key)
		if !ok {
			// Composite keys cannot arise from parsing; drop defensively.
			continue
		}
		if at, dup := idx[k]; dup {
			kept[at].Val = e.Val
			continue
		}
		idx[k] = len(kept)
		kept = append(kept, e)
	}
	return Value{kind: KindMap, ents: kept, idx: idx}
}

// Kind reports which variant the Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the Value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsTextual reports whether the Value is a string.
func (v Value) IsTextual() bool { return v.kind == KindString }

// Bool returns the boolean payload; ok is false for other kinds.
func (v Value) Bool() (b, ok bool) { return v.b, v.kind == KindBool }

// Int returns the integer payload of an Int32 or Int64 Value.
func (v Value) Int() (int64, bool) {
	return v.i, v.kind == KindInt32 || v.kind == KindInt64
}

// Float returns the floating-point payload; ok is false for other kinds.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat64 }

// Text returns the string payload; ok is false for other kinds.
func (v Value) Text() (string, bool) { return v.s, v.kind == KindString }

// Len returns the number of elements of a list or entries of a map, and 0
// for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.ents)
	default:
		return 0
	}
}

// At returns the i'th element of a list Value; ok is false for other kinds
// or out-of-range indexes.
func (v Value) At(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// Entries returns the entries of a map Value in declaration order. The
// returned slice is shared and must not be modified.
func (v Value) Entries() []Entry {
	if v.kind != KindMap {
		return nil
	}
	return v.ents
}

// Get looks up a map entry by its (possibly coerced) key Value. Looking up
// the textual form of a coerced key fails: after {2: "x"} parses with key
// coercion, Get(StringValue("2")) misses and Get(Int32Value(2)) hits.
func (v Value) Get(key Value) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	k, ok := scalarKey(key)
	if !ok {
		return Value{}, false
	}
	at, ok := v.idx[k]
	if !ok {
		return Value{}, false
	}
	return v.ents[at].Val, true
}

// Field looks up a map entry by string key. It is shorthand for
// Get(StringValue(name)) and is the usual accessor for configuration
// documents, whose field names never coerce away from strings.
func (v Value) Field(name string) (Value, bool) {
	return v.Get(StringValue(name))
}

// Has reports whether the map Value has an entry under the string key name.
func (v Value) Has(name string) bool {
	_, ok := v.Field(name)
	return ok
}

// Scalar returns the Value's payload as a native Go value: nil, bool, int32,
// int64, float64, or string. Lists and maps return nil, false.
func (v Value) Scalar() (any, bool) {
	switch v.kind {
	case KindNull:
		return nil, true
	case KindBool:
		return v.b, true
	case KindInt32:
		return int32(v.i), true
	case KindInt64:
		return v.i, true
	case KindFloat64:
		return v.f, true
	case KindString:
		return v.s, true
	default:
		return nil, false
	}
}

// String renders the Value as JSON-shaped text. It is meant for diagnostics
// (error fragments, logs), not for round-tripping: coerced keys render in
// their typed form, so {2: "x"} renders as {2:"x"}.
func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v Value) render(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt32, KindInt64:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat64:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindList:
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.render(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, e := range v.ents {
			if i > 0 {
				sb.WriteByte(',')
			}
			if e.Key.kind == KindString {
				sb.WriteString(strconv.Quote(e.Key.s))
			} else {
				e.Key.render(sb)
			}
			sb.WriteByte(':')
			e.Val.render(sb)
		}
		sb.WriteByte('}')
	default:
		fmt.Fprintf(sb, "<%s>", v.kind)
	}
}
