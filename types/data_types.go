package types

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

type DataType string

const (
	Bool      DataType = "boolean"
	Int64     DataType = "integer"
	Float64   DataType = "number"
	String    DataType = "string"
	Timestamp DataType = "timestamp" // microsecond precision, UTC
	JSON      DataType = "json"      // arbitrary nested objects/arrays, stored stringified
	Unknown   DataType = "unknown"
)

// Record is one raw row emitted by a table resolver before column resolution.
type Record map[string]any

func (r Record) GetStringifiedJSONValue(key string) (string, error) {
	value := r[key]
	switch value.(type) {
	case struct{}, map[string]any, []any:
		s, err := json.Marshal(value)
		return string(s), err
	default:
		return fmt.Sprintf("%v", value), nil
	}
}

// TypeFromValue infers the column type of a runtime value.
func TypeFromValue(v any) DataType {
	switch v.(type) {
	case nil:
		return Unknown
	case bool:
		return Bool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Int64
	case float32, float64:
		return Float64
	case string:
		return String
	case time.Time, *time.Time:
		return Timestamp
	case map[string]any, []any:
		return JSON
	default:
		return Unknown
	}
}
