package jsonext

import (
	"encoding/json"
	"fmt"
)

// Canonical returns a stable serialization of v, usable as an equality key
// for structural comparison. encoding/json sorts map keys, which makes the
// output deterministic for any parsed JSON value.
func Canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

// Float converts any numeric value to float64. The second return is false
// for non-numeric values.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsIntegral reports whether v is numeric with no fractional part.
func IsIntegral(v any) bool {
	f, ok := Float(v)
	return ok && f == float64(int64(f))
}
