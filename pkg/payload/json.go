package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

var ErrInvalidJSON = errors.New("invalid json payload")

// Parse decodes a JSON document into a Value keeping object member order.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}

	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value

			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}

				items = append(items, item)
			}

			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}

			return Array(items...), nil
		case '{':
			var members []Member

			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}

				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}

				field, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}

				members = append(members, Member{Key: key, Value: field})
			}

			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}

			return Object(members...), nil
		}
	}

	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}

	*v = parsed

	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	if err := v.encode(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.num.String())
	case KindString:
		data, err := json.Marshal(v.str)
		if err != nil {
			return err
		}

		buf.Write(data)
	case KindArray:
		buf.WriteByte('[')

		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := item.encode(buf); err != nil {
				return err
			}
		}

		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')

		for i, key := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}

			data, err := json.Marshal(key)
			if err != nil {
				return err
			}

			buf.Write(data)
			buf.WriteByte(':')

			if err := v.fields[key].encode(buf); err != nil {
				return err
			}
		}

		buf.WriteByte('}')
	}

	return nil
}

// FromAny converts a decoded Go value into a Value. Maps are ordered by key.
// Types encoding/json does not produce go through a JSON round trip.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []Value:
		return Array(t...), nil
	case []any:
		items := make([]Value, 0, len(t))

		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}

			items = append(items, v)
		}

		return Array(items...), nil
	case map[string]Value:
		keys := sortedKeys(t)
		members := make([]Member, 0, len(keys))

		for _, key := range keys {
			members = append(members, Member{Key: key, Value: t[key]})
		}

		return Object(members...), nil
	case map[string]any:
		keys := sortedKeys(t)
		members := make([]Member, 0, len(keys))

		for _, key := range keys {
			v, err := FromAny(t[key])
			if err != nil {
				return Value{}, err
			}

			members = append(members, Member{Key: key, Value: v})
		}

		return Object(members...), nil
	default:
		data, err := json.Marshal(in)
		if err != nil {
			return Value{}, fmt.Errorf("convert %T to payload: %w", in, err)
		}

		return Parse(data)
	}
}

// Any converts the value back into the shapes encoding/json produces:
// map[string]any, []any, float64, string, bool and nil.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		f, _ := v.num.Float64()

		return f
	case KindString:
		return v.str
	case KindArray:
		items := make([]any, len(v.items))
		for i, item := range v.items {
			items[i] = item.Any()
		}

		return items
	case KindObject:
		fields := make(map[string]any, len(v.keys))
		for _, key := range v.keys {
			fields[key] = v.fields[key].Any()
		}

		return fields
	default:
		return nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
