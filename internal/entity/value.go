package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is an extracted field value: a text scalar or an ordered list of text.
// Numbers coming back from the model are kept as their text rendering.
type Value struct {
	text  string
	items []string
	list  bool
}

// Text returns a scalar Value.
func Text(s string) Value { return Value{text: s} }

// List returns a list Value; a nil list still marshals as [].
func List(items ...string) Value {
	return Value{items: append([]string{}, items...), list: true}
}

func (v Value) IsList() bool { return v.list }

// Items returns a copy of the list elements (nil for scalars).
func (v Value) Items() []string {
	if !v.list {
		return nil
	}
	return append([]string{}, v.items...)
}

// String renders the value as display text; lists are joined with ", ".
func (v Value) String() string {
	if v.list {
		return strings.Join(v.items, ", ")
	}
	return v.text
}

// IsEmpty reports whether the value carries no information.
func (v Value) IsEmpty() bool {
	if v.list {
		for _, it := range v.items {
			if strings.TrimSpace(it) != "" {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(v.text) == ""
}

// Equal compares values structurally.
func (v Value) Equal(o Value) bool {
	if v.list != o.list {
		return false
	}
	if !v.list {
		return v.text == o.text
	}
	if len(v.items) != len(o.items) {
		return false
	}
	for i := range v.items {
		if v.items[i] != o.items[i] {
			return false
		}
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.list {
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	}
	return json.Marshal(v.text)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// ValueOf coerces a decoded JSON value into a Value.
func ValueOf(raw any) Value {
	switch t := raw.(type) {
	case []any:
		items := make([]string, 0, len(t))
		for _, it := range t {
			items = append(items, scalarText(it))
		}
		return Value{items: items, list: true}
	case []string:
		return List(t...)
	case Value:
		return t
	default:
		return Value{text: scalarText(raw)}
	}
}

func scalarText(raw any) string {
	switch t := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
