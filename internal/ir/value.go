package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/mohae/deepcopy"
)

// Value is a sealed interface over the variable types a process can hold.
// Only Null, String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	value()
	Kind() ValueKind
}

// ValueKind names the concrete type behind a Value.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
	KindArray  ValueKind = "array"
	KindObject ValueKind = "object"
)

// Null is the JSON null value.
type Null struct{}

func (Null) value()          {}
func (Null) Kind() ValueKind { return KindNull }

// MarshalJSON implements json.Marshaler.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// String is a string variable.
type String string

func (String) value()          {}
func (String) Kind() ValueKind { return KindString }

// Int is an integer variable.
type Int int64

func (Int) value()          {}
func (Int) Kind() ValueKind { return KindInt }

// Float is a floating point variable. NaN and infinities cannot be stored.
type Float float64

func (Float) value()          {}
func (Float) Kind() ValueKind { return KindFloat }

// Bool is a boolean variable.
type Bool bool

func (Bool) value()          {}
func (Bool) Kind() ValueKind { return KindBool }

// Array is an ordered list of values.
type Array []Value

func (Array) value()          {}
func (Array) Kind() ValueKind { return KindArray }

// Object maps names to values. It is also the type of a variable set.
type Object map[string]Value

func (Object) value()          {}
func (Object) Kind() ValueKind { return KindObject }

// SortedKeys returns keys ordered by UTF-16 code units, which is the order
// canonical JSON requires. Go's native string order compares UTF-8 bytes and
// differs for characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	if o == nil {
		return Object{}
	}
	return deepcopy.Copy(o).(Object)
}

// MarshalJSON implements json.Marshaler using canonical encoding.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	*o = obj
	return nil
}

// MarshalJSON implements json.Marshaler using canonical encoding.
func (a Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// FromAny converts a decoded JSON or YAML value into a Value.
//
// Accepted inputs: nil, bool, string, all Go integer types, float32/float64,
// json.Number, []any, map[string]any, map[any]any with string keys, and
// values that already implement Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case json.Number:
		return numberValue(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is %T, want string", k, k)
			}
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", ks, err)
			}
			obj[ks] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %T", v)
	}
}

// ObjectFromMap converts a map of plain Go values into an Object.
// A nil map yields an empty Object.
func ObjectFromMap(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

// ToAny converts a Value back into plain Go values
// (nil, string, int64, float64, bool, []any, map[string]any).
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalValue decodes JSON into a Value. Integral numbers become Int,
// numbers with a fraction or exponent become Float.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode value: trailing data")
	}
	return FromAny(raw)
}

func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	return Float(f), nil
}

func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %s", s)
	}
	return floatValue(f)
}
