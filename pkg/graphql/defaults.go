package graphql

import (
	"fmt"
	"math"
	mathrand "math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// DefaultString is the value produced for String fields and for custom
// scalars that have no mock of their own.
const DefaultString = "Hello World"

// DefaultListLength is the number of elements generated for list fields
// whose value is not supplied by a mock.
const DefaultListLength = 2

// rngIntN returns a random int in [0, n) using the provided RNG if non-nil,
// otherwise falls back to the global math/rand/v2 source.
func rngIntN(rng *mathrand.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	if rng != nil {
		return rng.IntN(n)
	}
	return mathrand.IntN(n)
}

// rngFloat64 returns a random float64 in [0, 1).
func rngFloat64(rng *mathrand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return mathrand.Float64()
}

// rngUUID generates a UUID v4. A seeded rng gives reproducible IDs.
func rngUUID(rng *mathrand.Rand) string {
	if rng == nil {
		return uuid.NewString()
	}
	var b [16]byte
	for i := range b {
		b[i] = byte(rng.IntN(256))
	}
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		return uuid.NewString()
	}
	// Set version 4 and variant bits
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}

// defaultScalar produces the built-in mock for a scalar with no entry in
// the Mock Map.
func defaultScalar(rng *mathrand.Rand, name string) any {
	switch name {
	case "Int":
		return rngIntN(rng, 201) - 100
	case "Float":
		return rngFloat64(rng)*200 - 100
	case "Boolean":
		return rngIntN(rng, 2) == 1
	case "ID":
		return rngUUID(rng)
	default:
		return DefaultString
	}
}

// serializeScalar converts a generated value into its JSON-ready form for
// the named scalar type.
func serializeScalar(name string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		if name == "String" || name == "ID" {
			return t.String(), nil
		}
	}

	switch name {
	case "Int":
		return coerceInt(v)
	case "Float":
		return coerceFloat(v)
	case "Boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", v)
		}
		return b, nil
	case "String":
		switch s := v.(type) {
		case string:
			return s, nil
		case bool, int, int32, int64, float32, float64:
			return fmt.Sprint(s), nil
		}
		return nil, fmt.Errorf("String cannot represent value: %v", v)
	case "ID":
		switch s := v.(type) {
		case string:
			return s, nil
		case int, int32, int64, uint, uint32, uint64:
			return fmt.Sprint(s), nil
		}
		return nil, fmt.Errorf("ID cannot represent value: %v", v)
	default:
		// Custom scalars pass through untouched.
		return v, nil
	}
}

func coerceInt(v any) (any, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint:
		n = int64(min(x, math.MaxInt32+1))
	case uint64:
		n = int64(min(x, math.MaxInt32+1))
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %v", v)
		}
		n = int64(x)
	case float32:
		return coerceInt(float64(x))
	default:
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %v", v)
	}
	return int(n), nil
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return nil, fmt.Errorf("Float cannot represent non numeric value: %v", v)
}
