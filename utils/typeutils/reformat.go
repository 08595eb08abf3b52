package typeutils

import (
	"fmt"
	"strconv"
	"time"
)

// ReformatBool accepts runtime values that safely coerce to bool.
func ReformatBool(v any) (bool, error) {
	switch value := v.(type) {
	case bool:
		return value, nil
	case string:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("value of type %T can't be converted to bool: %v", v, v)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("value of type %T can't be converted to bool: %v", v, v)
	}
}

func ReformatInt64(v any) (int64, error) {
	switch value := v.(type) {
	case int:
		return int64(value), nil
	case int8:
		return int64(value), nil
	case int16:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case uint:
		return int64(value), nil
	case uint8:
		return int64(value), nil
	case uint16:
		return int64(value), nil
	case uint32:
		return int64(value), nil
	case uint64:
		return int64(value), nil
	default:
		return 0, fmt.Errorf("value of type %T can't be converted to int64: %v", v, v)
	}
}

func ReformatFloat64(v any) (float64, error) {
	switch value := v.(type) {
	case float32:
		return float64(value), nil
	case float64:
		return value, nil
	case int:
		return float64(value), nil
	case int32:
		return float64(value), nil
	case int64:
		return float64(value), nil
	default:
		return 0, fmt.Errorf("value of type %T can't be converted to float64: %v", v, v)
	}
}

func ReformatTime(v any) (time.Time, error) {
	switch value := v.(type) {
	case time.Time:
		return value.UTC(), nil
	case *time.Time:
		if value == nil {
			return time.Time{}, fmt.Errorf("nil *time.Time can't be converted to timestamp")
		}
		return value.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, value); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("string %q can't be parsed as timestamp", value)
	default:
		return time.Time{}, fmt.Errorf("value of type %T can't be converted to timestamp: %v", v, v)
	}
}

// FormatCursorValue renders a raw cursor value as the opaque string stored in
// the state store. Timestamps round-trip through RFC3339Nano without losing
// precision.
func FormatCursorValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case time.Time:
		return value.UTC().Format(time.RFC3339Nano)
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}
