package docstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind enumerates the variants a Value can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

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
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable field value read from a document store.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    Fields
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a number.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a list of values.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Map wraps nested fields.
func Map(f Fields) Value {
	if f == nil {
		f = Fields{}
	}
	return Value{kind: KindMap, m: f}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, want, v.kind)
}

// AsString projects v into a string.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.str, nil
}

// AsNumber projects v into a float64.
func (v Value) AsNumber() (float64, error) {
	if v.kind != KindNumber {
		return 0, v.mismatch(KindNumber)
	}
	return v.num, nil
}

// AsInt projects v into an int. Fractional numbers are rejected.
func (v Value) AsInt() (int, error) {
	n, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, n)
	}
	return int(n), nil
}

// AsBool projects v into a bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.b, nil
}

// AsList projects v into a list. The returned slice is a copy.
func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, v.mismatch(KindList)
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, nil
}

// AsMap projects v into nested fields.
func (v Value) AsMap() (Fields, error) {
	if v.kind != KindMap {
		return nil, v.mismatch(KindMap)
	}
	return v.m, nil
}

// AsStrings projects a list of strings.
func (v Value) AsStrings() ([]string, error) {
	items, err := v.AsList()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := item.AsString()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Text renders scalar values as text; null renders as "". Lists and maps are
// rejected.
func (v Value) Text() (string, error) {
	switch v.kind {
	case KindNull:
		return "", nil
	case KindString:
		return v.str, nil
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return fmt.Sprintf("%d", int64(v.num)), nil
		}
		return fmt.Sprintf("%v", v.num), nil
	case KindBool:
		return fmt.Sprintf("%t", v.b), nil
	default:
		return "", fmt.Errorf("%w: %s has no text form", ErrTypeMismatch, v.kind)
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		cp := make([]Value, len(v.list))
		for i, item := range v.list {
			cp[i] = item.Clone()
		}
		return Value{kind: KindList, list: cp}
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	default:
		return v
	}
}

// FromAny converts decoded data (JSON, BSON-like maps, store SDK values) into a
// Value. Times are rendered as RFC 3339 strings and byte slices as base64.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return Number(n), nil
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano)), nil
	case []byte:
		return String(base64.StdEncoding.EncodeToString(t)), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindList, list: items}, nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case []map[string]any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		f, err := FieldsFromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Map(f), nil
	case Fields:
		return Map(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

// Any converts v back into plain Go data suitable for JSON or SDK writes.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		return v.m.Map()
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Fields is the field map of one document.
type Fields map[string]Value

// FieldsFromMap converts a decoded map into Fields.
func FieldsFromMap(m map[string]any) (Fields, error) {
	f := make(Fields, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		f[k] = v
	}
	return f, nil
}

// Map converts f into plain Go data.
func (f Fields) Map() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v.Any()
	}
	return out
}

// Lookup returns the value stored under key.
func (f Fields) Lookup(key string) (Value, bool) {
	v, ok := f[key]
	return v, ok
}

// Text returns the scalar text of key, or "" when the key is missing or null.
func (f Fields) Text(key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", nil
	}
	s, err := v.Text()
	if err != nil {
		return "", fmt.Errorf("field %q: %w", key, err)
	}
	return s, nil
}

// Without returns a copy of f without the given keys.
func (f Fields) Without(keys ...string) Fields {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if _, skip := drop[k]; !skip {
			out[k] = v
		}
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports deep equality.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
