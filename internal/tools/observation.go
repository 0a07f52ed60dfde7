package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	observationErrorPrefix = "ERROR: "
	noOutput               = "No output generated"
)

// NormalizeObservation turns a raw tool return into the text recorded for the
// round. A JSON envelope with a "success" field yields its trimmed output or
// "ERROR: <error>". Anything else is trimmed and unwrapped from one level of
// quoting and byte-literal syntax.
func NormalizeObservation(raw string) string {
	var envelope map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil {
		if success, ok := envelope["success"]; ok {
			if truthy(success) {
				return strings.TrimSpace(stringField(envelope, "output"))
			}
			return observationErrorPrefix + stringField(envelope, "error")
		}
	}

	result := strings.TrimSpace(raw)
	if len(result) >= 2 && strings.HasPrefix(result, "'") && strings.HasSuffix(result, "'") {
		result = result[1 : len(result)-1]
	}
	if strings.HasPrefix(result, `b"`) || strings.HasPrefix(result, "b'") {
		if len(result) > 2 {
			result = result[2 : len(result)-1]
		} else {
			result = ""
		}
	}
	if result == "" {
		return noOutput
	}
	return result
}

// IsErrorObservation reports whether a normalized observation describes a
// failure.
func IsErrorObservation(s string) bool {
	return strings.HasPrefix(s, observationErrorPrefix)
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	case string:
		return b != ""
	case float64:
		return b != 0
	default:
		return true
	}
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
