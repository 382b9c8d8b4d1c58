// Package metadata defines typed item metadata and the predicate filters evaluated against it.
//
// Metadata values are one of three scalar kinds: number, string or boolean. Filters form a
// tree of comparators ($eq, $ne, $gt, $gte, $lt, $lte), membership tests ($in, $nin) and
// boolean combinators ($and, $or). Evaluation is total: a missing key or a type mismatch is a
// non-match, never an error.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindInvalid is the zero Kind; a zero Value is never stored.
	KindInvalid Kind = iota
	// KindNumber is a floating-point number.
	KindNumber
	// KindString is a UTF-8 string.
	KindString
	// KindBool is a boolean.
	KindBool
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return "invalid"
	}
}

// Value is a tagged scalar: exactly one of number, string or boolean.
// On the wire it is the bare JSON scalar.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// Number returns a number Value.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds one of the three scalar kinds.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsNumber returns the number held by v and whether v is a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string held by v and whether v is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean held by v and whether v is a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal reports whether v and o have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

// Interface returns v as float64, string or bool (nil for an invalid Value).
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// FromInterface converts a Go scalar into a Value. Integer and float types become numbers.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("metadata: invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	default:
		return Value{}, fmt.Errorf("metadata: unsupported value type %T", x)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("metadata: cannot marshal invalid value")
	}
}

// UnmarshalJSON implements json.Unmarshaler. Only numbers, strings and booleans are accepted.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("metadata: null is not a valid value")
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
