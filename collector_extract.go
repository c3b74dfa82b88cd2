package vigil

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// coerceFloat converts loosely typed message values to float64. JSON
// decoding, YAML decoding, and host bridges each produce different
// numeric types for the same payload.
func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// coerceString renders a label value.
func coerceString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceVector extracts a feature vector from an array, object, or
// scalar value. Object keys are sorted for a stable ordering;
// non-numeric entries are dropped with a recorded issue.
func coerceVector(v any, prefix string) ([]float64, []string, []string) {
	var values []float64
	var names []string
	var issues []string

	switch x := v.(type) {
	case []float64:
		for i, f := range x {
			values = append(values, f)
			names = append(names, fmt.Sprintf("%s_%d", prefix, i))
		}
	case []any:
		for i, item := range x {
			f, ok := coerceFloat(item)
			if !ok {
				issues = append(issues, fmt.Sprintf("non-numeric element %d", i))
				continue
			}
			values = append(values, f)
			names = append(names, fmt.Sprintf("%s_%d", prefix, i))
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			f, ok := coerceFloat(x[k])
			if !ok {
				issues = append(issues, "non-numeric field "+k)
				continue
			}
			values = append(values, f)
			names = append(names, k)
		}
	case Envelope:
		return coerceVector(map[string]any(x), prefix)
	default:
		if f, ok := coerceFloat(v); ok {
			values = append(values, f)
			names = append(names, prefix)
		} else {
			issues = append(issues, "payload is not numeric")
		}
	}
	return values, names, issues
}

// resolvePath walks a dotted path through nested maps.
func resolvePath(msg Envelope, path string) any {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(msg)
	for _, part := range parts {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[part]
		case Envelope:
			cur = m[part]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// extractTimestamp pulls the sample timestamp, falling back to the wall
// clock when the message carries none.
func extractTimestamp(msg Envelope) int64 {
	for _, key := range []string{"timestamp", "ts", "time"} {
		if v, ok := coerceFloat(msg[key]); ok && v > 0 {
			return int64(v)
		}
	}
	return NowMillis()
}

// extractSeverity pulls a severity tag if the message carries one.
func extractSeverity(msg Envelope) string {
	if s, ok := msg["severity"].(string); ok {
		return s
	}
	if v, ok := msg["verdict"].(*Verdict); ok && v != nil {
		return v.Severity.String()
	}
	return ""
}
