package graphql

import (
	"bytes"
	"encoding/json"
)

// ResponseObject is a completed response object. Its keys keep the order
// in which the selection set asked for them.
type ResponseObject struct {
	keys   []string
	values map[string]any
}

func newObject(size int) *ResponseObject {
	return &ResponseObject{
		keys:   make([]string, 0, size),
		values: make(map[string]any, size),
	}
}

func (o *ResponseObject) set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Keys returns the response keys in selection order.
func (o *ResponseObject) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Get returns the value stored under a response key.
func (o *ResponseObject) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Map returns a plain map view of the object, nested objects included.
func (o *ResponseObject) Map() map[string]any {
	out := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		out[k] = plainValue(o.values[k])
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *ResponseObject:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the keys in selection order.
func (o *ResponseObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
