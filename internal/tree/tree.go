// Package tree models loosely structured message payloads as a small sum type
// and searches them for the most substantial text they carry.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultMaxDepth bounds how far Largest descends into nested payloads.
const DefaultMaxDepth = 3

// Value is a node of a payload tree. The set of variants is closed: String,
// Map and List are the only implementations.
type Value interface {
	// largest returns the longest string leaf reachable within depth levels.
	largest(depth, maxDepth int) string
}

// String is a text leaf.
type String string

// Field is a single key/value pair of a Map.
type Field struct {
	Key   string
	Value Value
}

// Map is an ordered mapping. Order is preserved so searches are deterministic.
type Map []Field

// List is an ordered sequence of values.
type List []Value

func (s String) largest(_, _ int) string { return string(s) }

func (m Map) largest(depth, maxDepth int) string {
	if depth > maxDepth {
		return ""
	}
	best := ""
	for _, f := range m {
		if f.Value == nil {
			continue
		}
		if s := f.Value.largest(depth+1, maxDepth); len(s) > len(best) {
			best = s
		}
	}
	return best
}

func (l List) largest(depth, maxDepth int) string {
	if depth > maxDepth {
		return ""
	}
	best := ""
	for _, v := range l {
		if v == nil {
			continue
		}
		if s := v.largest(depth+1, maxDepth); len(s) > len(best) {
			best = s
		}
	}
	return best
}

// Largest returns the longest string found in v. Containers nested deeper
// than maxDepth levels below the root are not entered; a non-positive
// maxDepth uses DefaultMaxDepth. The first of equally long strings wins.
func Largest(v Value, maxDepth int) string {
	if v == nil {
		return ""
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return v.largest(0, maxDepth)
}

// Get returns the value stored under key in m, if any.
func (m Map) Get(key string) (Value, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// FromJSON decodes an arbitrary JSON document into a Value. Object keys keep
// their document order; numbers and booleans become String leaves holding
// their literal text and null values are dropped.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := Map{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				if v != nil {
					m = append(m, Field{Key: key, Value: v})
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			l := List{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				if v != nil {
					l = append(l, v)
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return l, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return String(t), nil
	case json.Number:
		return String(t.String()), nil
	case bool:
		return String(strconv.FormatBool(t)), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}
