package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute value types with a native coercion. Every other value type is
// carried as an opaque string.
const (
	ValueBool  = "bool"
	ValueInt   = "int"
	ValueFloat = "float"

	wireTrue  = "true"
	wireFalse = "false"
)

// CoerceValue converts a wire-encoded attribute value into its native form:
// bool, int64, float64, or the raw string.
func CoerceValue(raw, valueType string) (any, error) {
	switch valueType {
	case ValueBool:
		switch raw {
		case wireTrue:
			return true, nil
		case wireFalse:
			return false, nil
		default:
			return nil, fmt.Errorf("%w: %q is not a bool", ErrValueCoercion, raw)
		}
	case ValueInt:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", ErrValueCoercion, raw)
		}
		return v, nil
	case ValueFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrValueCoercion, raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// FormatValue renders a native value in its wire form.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return wireTrue
		}
		return wireFalse
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
