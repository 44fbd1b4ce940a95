// Package payload provides the tagged value tree threaded through a run.
//
// A run starts with its trigger metadata as payload. After every action the
// payload is replaced by {"prev": <payload>, "action": <result>}, so later
// steps can reach any earlier result through a dot path.
package payload

import (
	"encoding/json"
	"math"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON-like value. The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []Value
	keys   []string
	fields map[string]Value
}

// Member is a single key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Int(n int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(n, 10))}
}

// Float returns a number value. NaN and infinities have no JSON form and
// become null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}

	return Value{kind: KindNumber, num: json.Number(formatFloat(f))}
}

// Number wraps a JSON number literal as produced by a json.Decoder using UseNumber.
func Number(n json.Number) Value {
	return Value{kind: KindNumber, num: n}
}

func Array(items ...Value) Value {
	copied := make([]Value, len(items))
	copy(copied, items)

	return Value{kind: KindArray, items: copied}
}

// Object builds an object keeping member order. A repeated key keeps its
// first position and its last value.
func Object(members ...Member) Value {
	v := Value{kind: KindObject, fields: make(map[string]Value, len(members))}

	for _, m := range members {
		if _, exists := v.fields[m.Key]; !exists {
			v.keys = append(v.keys, m.Key)
		}

		v.fields[m.Key] = m.Value
	}

	return v
}

// Nest wraps the payload that existed before an action together with the
// action result.
func Nest(prev Value, action Value) Value {
	return Object(
		Member{Key: "prev", Value: prev},
		Member{Key: "action", Value: action},
	)
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsNumber() (json.Number, bool) {
	return v.num, v.kind == KindNumber
}

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}

	field, ok := v.fields[key]

	return field, ok
}

// Keys returns object keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}

	keys := make([]string, len(v.keys))
	copy(keys, v.keys)

	return keys
}

// String renders the value for substitution into text. Strings are returned
// raw, scalars in their JSON form and containers as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.num.String()
	case KindString:
		return v.str
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return ""
		}

		return string(data)
	}
}

// formatFloat follows the encoding/json float format.
func formatFloat(f float64) string {
	abs := math.Abs(f)
	format := byte('f')

	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}

	return strconv.FormatFloat(f, format, -1, 64)
}
