package mcpsession

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind identifies which member of the Value union is set.
type Kind int

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	ArrayKind
	ObjectKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "bool"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	case ObjectKind:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a schema-less JSON value: null, bool, number, string, array or object.
// The zero Value is null. Values are immutable; accessors return copies of containers.
type Value struct {
	kind   Kind
	b      bool
	n      json.Number
	s      string
	array  []Value
	object map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: BoolKind, b: b} }

// Int returns an integer number value.
func Int(i int64) Value { return Value{kind: NumberKind, n: json.Number(strconv.FormatInt(i, 10))} }

// Number returns a floating point number value.
func Number(f float64) Value {
	return Value{kind: NumberKind, n: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// String returns a string value.
func String(s string) Value { return Value{kind: StringKind, s: s} }

// Array returns an array value.
func Array(items ...Value) Value {
	return Value{kind: ArrayKind, array: append([]Value{}, items...)}
}

// Object returns an object value.
func Object(fields map[string]Value) Value {
	object := make(map[string]Value, len(fields))
	for k, v := range fields {
		object[k] = v
	}
	return Value{kind: ObjectKind, object: object}
}

// EmptyObject returns {}.
func EmptyObject() Value { return Value{kind: ObjectKind, object: map[string]Value{}} }

// ValueOf converts a Go value into a Value. Structs and other types are converted through their JSON form.
func ValueOf(v interface{}) (Value, error) {
	switch actual := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return actual, nil
	case *Value:
		if actual == nil {
			return Null(), nil
		}
		return *actual, nil
	case bool:
		return Bool(actual), nil
	case string:
		return String(actual), nil
	case int:
		return Int(int64(actual)), nil
	case int32:
		return Int(int64(actual)), nil
	case int64:
		return Int(actual), nil
	case float32:
		return Number(float64(actual)), nil
	case float64:
		if actual == math.Trunc(actual) && math.Abs(actual) < 1<<53 {
			return Int(int64(actual)), nil
		}
		return Number(actual), nil
	case json.Number:
		return Value{kind: NumberKind, n: actual}, nil
	case json.RawMessage:
		return ParseValue(actual)
	case []byte:
		return ParseValue(actual)
	case []interface{}:
		items := make([]Value, 0, len(actual))
		for i, item := range actual {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, converted)
		}
		return Value{kind: ArrayKind, array: items}, nil
	case map[string]interface{}:
		object := make(map[string]Value, len(actual))
		for k, item := range actual {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %v: %w", k, err)
			}
			object[k] = converted
		}
		return Value{kind: ObjectKind, object: object}, nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("failed to convert %T to value: %w", v, err)
	}
	return ParseValue(data)
}

// MustValueOf is like ValueOf but panics on error; intended for literals.
func MustValueOf(v interface{}) Value {
	ret, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return ret
}

// ParseValue decodes JSON text into a Value, preserving numbers as written.
func ParseValue(data []byte) (Value, error) {
	var ret Value
	if err := ret.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return ret, nil
}

// Kind returns the union tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true for the null value.
func (v Value) IsNull() bool { return v.kind == NullKind }

// Bool returns the boolean member.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == BoolKind }

// Str returns the string member.
func (v Value) Str() (string, bool) { return v.s, v.kind == StringKind }

// Number returns the number member as written on the wire.
func (v Value) Number() (json.Number, bool) { return v.n, v.kind == NumberKind }

// Float returns the number member as float64.
func (v Value) Float() (float64, bool) {
	if v.kind != NumberKind {
		return 0, false
	}
	f, err := v.n.Float64()
	return f, err == nil
}

// Int returns the number member as int64 when it is integral.
func (v Value) Int() (int64, bool) {
	if v.kind != NumberKind {
		return 0, false
	}
	i, err := v.n.Int64()
	return i, err == nil
}

// Items returns a copy of the array member.
func (v Value) Items() ([]Value, bool) {
	if v.kind != ArrayKind {
		return nil, false
	}
	return append([]Value{}, v.array...), true
}

// Fields returns a copy of the object member.
func (v Value) Fields() (map[string]Value, bool) {
	if v.kind != ObjectKind {
		return nil, false
	}
	ret := make(map[string]Value, len(v.object))
	for k, item := range v.object {
		ret[k] = item
	}
	return ret, true
}

// Keys returns sorted object keys.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.object))
	for k := range v.object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of array items or object fields.
func (v Value) Len() int {
	switch v.kind {
	case ArrayKind:
		return len(v.array)
	case ObjectKind:
		return len(v.object)
	}
	return 0
}

// Get returns an object field.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != ObjectKind {
		return Value{}, false
	}
	item, ok := v.object[key]
	return item, ok
}

// Index returns an array item.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != ArrayKind || i < 0 || i >= len(v.array) {
		return Value{}, false
	}
	return v.array[i], true
}

// Interface converts the value back to plain Go types (json.Number for numbers).
func (v Value) Interface() interface{} {
	switch v.kind {
	case BoolKind:
		return v.b
	case NumberKind:
		return v.n
	case StringKind:
		return v.s
	case ArrayKind:
		ret := make([]interface{}, len(v.array))
		for i, item := range v.array {
			ret[i] = item.Interface()
		}
		return ret
	case ObjectKind:
		ret := make(map[string]interface{}, len(v.object))
		for k, item := range v.object {
			ret[k] = item.Interface()
		}
		return ret
	}
	return nil
}

// Decode unmarshals the value into a Go type.
func (v Value) Decode(target interface{}) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// Equal reports deep equality; numbers compare by numeric value.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case NullKind:
		return true
	case BoolKind:
		return v.b == other.b
	case StringKind:
		return v.s == other.s
	case NumberKind:
		if v.n == other.n {
			return true
		}
		a, errA := v.n.Float64()
		b, errB := other.n.Float64()
		return errA == nil && errB == nil && a == b
	case ArrayKind:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}
		return true
	case ObjectKind:
		if len(v.object) != len(other.object) {
			return false
		}
		for k, item := range v.object {
			peer, ok := other.object[k]
			if !ok || !item.Equal(peer) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the JSON text of the value.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(data)
}

// MarshalJSON encodes the value; object keys are emitted in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := v.encode(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case NullKind:
		buf.WriteString("null")
	case BoolKind:
		buf.WriteString(strconv.FormatBool(v.b))
	case NumberKind:
		if !json.Valid([]byte(v.n)) {
			return fmt.Errorf("invalid number literal %q", v.n)
		}
		buf.WriteString(string(v.n))
	case StringKind:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case ArrayKind:
		buf.WriteByte('[')
		for i, item := range v.array {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case ObjectKind:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.object[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value kind: %v", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes a single JSON value; trailing content is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid json value: %q", truncate(data, 64))
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("invalid json value: %w", err)
	}
	converted, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = converted
	return nil
}

func fromDecoded(raw interface{}) (Value, error) {
	switch actual := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(actual), nil
	case json.Number:
		return Value{kind: NumberKind, n: actual}, nil
	case float64:
		return Number(actual), nil
	case string:
		return String(actual), nil
	case []interface{}:
		items := make([]Value, len(actual))
		for i, item := range actual {
			converted, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = converted
		}
		return Value{kind: ArrayKind, array: items}, nil
	case map[string]interface{}:
		object := make(map[string]Value, len(actual))
		for k, item := range actual {
			converted, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			object[k] = converted
		}
		return Value{kind: ObjectKind, object: object}, nil
	}
	return Value{}, fmt.Errorf("unsupported decoded type %T", raw)
}

func truncate(data []byte, size int) []byte {
	if len(data) > size {
		return data[:size]
	}
	return data
}
