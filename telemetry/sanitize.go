package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"
)

// DefaultMaxPayload is the default string length kept in span payloads.
const DefaultMaxPayload = 2048

const truncatedSuffix = "...(truncated)"

// Sanitize reduces v to values encoding/json can always encode: nil,
// bool, float64, string, []interface{} and map[string]interface{}.
// Values that cannot be marshalled are replaced with their fmt string
// form; strings longer than maxString bytes are truncated.
func Sanitize(v interface{}, maxString int) interface{} {
	if maxString <= 0 {
		maxString = DefaultMaxPayload
	}
	return sanitize(v, maxString, 0)
}

const maxDepth = 32

func sanitize(v interface{}, max, depth int) interface{} {
	if depth > maxDepth {
		return truncate(fmt.Sprintf("%v", v), max)
	}
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case string:
		return truncate(x, max)
	case int:
		return x
	case int32:
		return x
	case int64:
		return x
	case uint:
		return x
	case uint32:
		return x
	case uint64:
		return x
	case float32:
		return sanitizeFloat(float64(x))
	case float64:
		return sanitizeFloat(x)
	case json.Number:
		return x
	case error:
		return truncate(x.Error(), max)
	case fmt.Stringer:
		return truncate(x.String(), max)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = sanitize(val, max, depth+1)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = truncate(val, max)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = sanitize(val, max, depth+1)
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = truncate(val, max)
		}
		return out
	}

	// Structs, typed maps and slices: take the JSON view when there is one.
	data, err := json.Marshal(v)
	if err != nil {
		return truncate(fmt.Sprintf("%v", v), max)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return truncate(string(data), max)
	}
	return sanitize(generic, max, depth+1)
}

func sanitizeFloat(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%v", f)
	}
	return f
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
