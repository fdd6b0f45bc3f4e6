package graphql

import (
	"sort"
	"time"
)

// TypenameKey is the record key carrying a type discriminator.
const TypenameKey = "__typename"

// Mock generates placeholder values for one type, scalar, or field.
// It is implemented only by ScalarMock and ObjectMock.
type Mock interface {
	isMock()
}

// ScalarMock produces a primitive value: string, bool, a number, or a time.Time.
type ScalarMock struct {
	Generate func() any
}

func (ScalarMock) isMock() {}

// ObjectMock produces a record whose keys are field names.
// Typename, or a "__typename" key in the record, names the concrete type
// when the record resolves an interface or union position.
type ObjectMock struct {
	Typename string
	Generate func() map[string]any
}

func (ObjectMock) isMock() {}

// Scalar wraps fn as a ScalarMock.
func Scalar(fn func() any) ScalarMock {
	return ScalarMock{Generate: fn}
}

// Static returns a ScalarMock that always yields v.
func Static(v any) ScalarMock {
	return ScalarMock{Generate: func() any { return v }}
}

// Object wraps fn as an ObjectMock tagged with typename (may be empty).
func Object(typename string, fn func() map[string]any) ObjectMock {
	return ObjectMock{Typename: typename, Generate: fn}
}

// Now is a ScalarMock generator returning the current time.
func Now() any {
	return time.Now()
}

// MockMap maps a type name, scalar name, or "Type.field" path to its mock.
// A MockMap must not be modified once handed to an Executor.
type MockMap map[string]Mock

// Merge returns a new map holding every entry of m overlaid by other.
func (m MockMap) Merge(other MockMap) MockMap {
	out := make(MockMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the registered keys in sorted order.
func (m MockMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unmatched returns the keys that name neither a schema type nor a
// "Type.field" path declared in schema. Such keys are harmless and ignored.
func (m MockMap) Unmatched(schema *Schema) []string {
	var unknown []string
	for _, key := range m.Keys() {
		fp := ParseFieldPath(key)
		if fp.IsField() {
			if schema.GetField(fp.TypeName, fp.FieldName) == nil {
				unknown = append(unknown, key)
			}
			continue
		}
		if schema.GetType(key) == nil {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// lookup returns the mock for key, if any.
func (m MockMap) lookup(key string) (Mock, bool) {
	if m == nil {
		return nil, false
	}
	mock, ok := m[key]
	if !ok || mock == nil {
		return nil, false
	}
	return mock, true
}

// generate invokes a mock, returning the produced value and the typename
// an ObjectMock was tagged with.
func generate(mock Mock) (value any, typename string) {
	switch mk := mock.(type) {
	case ScalarMock:
		if mk.Generate == nil {
			return nil, ""
		}
		return mk.Generate(), ""
	case ObjectMock:
		if mk.Generate == nil {
			return map[string]any{}, mk.Typename
		}
		record := mk.Generate()
		if record == nil {
			return nil, mk.Typename
		}
		return record, mk.Typename
	case *ScalarMock:
		return generate(*mk)
	case *ObjectMock:
		return generate(*mk)
	default:
		return nil, ""
	}
}
