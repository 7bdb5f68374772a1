package wire

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindNull is the absent value.
	KindNull Kind = iota
	// KindString is a text value.
	KindString
	// KindNumber is a numeric value (integers are kept exact up to 2^53).
	KindNumber
	// KindBool is a boolean value.
	KindBool
	// KindRecord is a map with string keys.
	KindRecord
	// KindList is an ordered sequence.
	KindList
)

// String returns the kind name.
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
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is one log message payload.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	rec  map[string]Value
	list []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a numeric value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// RecordValue returns a record value. The map is not copied.
func RecordValue(fields map[string]Value) Value {
	return Value{kind: KindRecord, rec: fields}
}

// ListValue returns a list value. The slice is not copied.
func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true for the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Number returns the number and whether v is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Record returns the fields and whether v is a record.
func (v Value) Record() (map[string]Value, bool) { return v.rec, v.kind == KindRecord }

// List returns the items and whether v is a list.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == KindList }

// Native converts v to plain Go values: nil, string, int64 or float64,
// bool, map[string]any or []any. Serializers work on this form.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if isIntegral(v.num) {
			return int64(v.num)
		}
		return v.num
	case KindBool:
		return v.b
	case KindRecord:
		out := make(map[string]any, len(v.rec))
		for k, field := range v.rec {
			out[k] = field.Native()
		}
		return out
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}
		return out
	default:
		return nil
	}
}

// Text renders v for console output. Strings are printed raw, everything
// else in a compact literal form.
func (v Value) Text() string {
	if v.kind == KindString {
		return v.str
	}
	var sb strings.Builder
	v.writeLiteral(&sb)
	return sb.String()
}

func (v Value) writeLiteral(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindRecord:
		keys := make([]string, 0, len(v.rec))
		for k := range v.rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			v.rec[k].writeLiteral(sb)
		}
		sb.WriteByte('}')
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.writeLiteral(sb)
		}
		sb.WriteByte(']')
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.Text()
}

// MarshalCBOR encodes v as the native CBOR item for its kind.
func (v Value) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(v.Native())
}

// UnmarshalCBOR decodes any CBOR item into the closest Value variant.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// Texts renders each value with Text.
func Texts(values []Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Text()
	}
	return out
}

// ValuesOf converts each argument with ValueOf.
func ValuesOf(args ...any) []Value {
	if len(args) == 0 {
		return nil
	}
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = ValueOf(a)
	}
	return out
}

// ValueOf converts an ordinary Go value to a Value.
// Types with no natural variant become their fmt.Sprint string.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Value:
		if t == nil {
			return Null()
		}
		return *t
	case string:
		return StringValue(t)
	case []byte:
		return StringValue(string(t))
	case bool:
		return BoolValue(t)
	case int:
		return NumberValue(float64(t))
	case int8:
		return NumberValue(float64(t))
	case int16:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case uint:
		return NumberValue(float64(t))
	case uint8:
		return NumberValue(float64(t))
	case uint16:
		return NumberValue(float64(t))
	case uint32:
		return NumberValue(float64(t))
	case uint64:
		return NumberValue(float64(t))
	case float32:
		return NumberValue(float64(t))
	case float64:
		return NumberValue(t)
	case time.Time:
		return StringValue(FormatTimestamp(t))
	case error:
		return StringValue(t.Error())
	case map[string]any:
		rec := make(map[string]Value, len(t))
		for k, val := range t {
			rec[k] = ValueOf(val)
		}
		return RecordValue(rec)
	case map[any]any:
		// CBOR decodes untyped maps with interface keys.
		rec := make(map[string]Value, len(t))
		for k, val := range t {
			rec[fmt.Sprint(k)] = ValueOf(val)
		}
		return RecordValue(rec)
	case []any:
		items := make([]Value, len(t))
		for i, val := range t {
			items[i] = ValueOf(val)
		}
		return ListValue(items...)
	case fmt.Stringer:
		return StringValue(t.String())
	}

	return reflectValue(reflect.ValueOf(x))
}

// reflectValue handles maps, slices and pointers of arbitrary element types.
func reflectValue(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Map:
		rec := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			rec[fmt.Sprint(iter.Key().Interface())] = ValueOf(iter.Value().Interface())
		}
		return RecordValue(rec)
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = ValueOf(rv.Index(i).Interface())
		}
		return ListValue(items...)
	case reflect.String:
		return StringValue(rv.String())
	case reflect.Bool:
		return BoolValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberValue(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NumberValue(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return NumberValue(rv.Float())
	case reflect.Invalid:
		return Null()
	default:
		return StringValue(fmt.Sprintf("%+v", rv.Interface()))
	}
}

// isIntegral reports whether f can be carried as an exact int64.
func isIntegral(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) <= 1<<53
}
