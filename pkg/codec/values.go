package codec

import (
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// epochMillisFloor separates Unix-millisecond timestamps from small numbers
// (durations, counters) that merely live under a time-like key.
const epochMillisFloor = 1_000_000_000_000

// Marshal serializes v with sorted object keys, so equal documents always
// produce equal bytes.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ToGeneric converts v into the generic JSON model used by every codec:
// map[string]any, []any, float64, string, bool and nil.
func ToGeneric(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SizeOf returns the serialized length of v in bytes, or 0 when v cannot be
// serialized.
func SizeOf(v any) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// IsTimeKey reports whether a field name looks like it holds a point in time.
func IsTimeKey(key string) bool {
	return strings.Contains(key, "timestamp") ||
		strings.Contains(key, "date") ||
		strings.Contains(key, "time")
}

// TimestampValue interprets v as a point in time. Numbers are read as Unix
// milliseconds and must be past epochMillisFloor; strings must be RFC 3339.
func TimestampValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		n, ok := asNumber(v)
		if !ok || n <= epochMillisFloor || math.IsInf(n, 0) || math.IsNaN(n) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(n)).UTC(), true
	}
}

// ExtractTimestamps walks v and collects every time-like value stored under a
// time-like key.
func ExtractTimestamps(v any) []time.Time {
	var out []time.Time
	var walk func(node any)
	walk = func(node any) {
		switch n := node.(type) {
		case []any:
			for _, item := range n {
				walk(item)
			}
		case map[string]any:
			for key, value := range n {
				if IsTimeKey(key) {
					if ts, ok := TimestampValue(value); ok {
						out = append(out, ts)
						continue
					}
				}
				switch value.(type) {
				case map[string]any, []any:
					walk(value)
				}
			}
		}
	}
	walk(v)
	return out
}

// HasTimeSeriesShape reports whether a keyed object has any time-like field name.
func HasTimeSeriesShape(v any) bool {
	obj, ok := asObject(v)
	if !ok {
		return false
	}
	for key := range obj {
		if IsTimeKey(key) {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := asNumber(v); ok {
		return "number"
	}
	return "unknown"
}
