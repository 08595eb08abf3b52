/*
 * Copyright 2025 Syncplane Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package codec encodes resolved resources into self-describing columnar
// record batches and decodes them back. The wire format is an Arrow IPC
// stream, so a decoder holding only the bytes recovers column names and
// types without any prior schema handshake; engine and plugin can version
// independently.
package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils/typeutils"
)

const (
	metaTable          = "syncplane:table"
	metaPrimaryKey     = "syncplane:primary_key"
	metaIncrementalKey = "syncplane:incremental_key"
)

// Batch is the unit exchanged over the transport boundary: the Arrow IPC
// bytes of one table's rows plus enough metadata to route without decoding.
type Batch struct {
	Table   string `json:"table"`
	Records int    `json:"records"`
	Data    []byte `json:"data"`
}

func arrowType(d types.DataType) arrow.DataType {
	switch d {
	case types.Bool:
		return arrow.FixedWidthTypes.Boolean
	case types.Int64:
		return arrow.PrimitiveTypes.Int64
	case types.Float64:
		return arrow.PrimitiveTypes.Float64
	case types.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		// strings, json and unknown travel as UTF-8
		return arrow.BinaryTypes.String
	}
}

func dataTypeFromArrow(d arrow.DataType) types.DataType {
	switch d.ID() {
	case arrow.BOOL:
		return types.Bool
	case arrow.INT64:
		return types.Int64
	case arrow.FLOAT64:
		return types.Float64
	case arrow.TIMESTAMP:
		return types.Timestamp
	case arrow.STRING:
		return types.String
	default:
		return types.Unknown
	}
}

func buildSchema(table *types.Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(table.Columns))
	for _, col := range table.Columns {
		var keys, values []string
		if col.PrimaryKey {
			keys = append(keys, metaPrimaryKey)
			values = append(values, "true")
		}
		if col.IncrementalKey {
			keys = append(keys, metaIncrementalKey)
			values = append(values, "true")
		}
		fields = append(fields, arrow.Field{
			Name:     col.Name,
			Type:     arrowType(col.Type),
			Nullable: !col.PrimaryKey,
			Metadata: arrow.NewMetadata(keys, values),
		})
	}
	md := arrow.MetadataFrom(map[string]string{metaTable: table.Name})
	return arrow.NewSchema(fields, &md)
}

func appendValue(builder array.Builder, col types.Column, val any) error {
	switch builder := builder.(type) {
	case *array.BooleanBuilder:
		boolVal, err := typeutils.ReformatBool(val)
		if err != nil {
			return err
		}
		builder.Append(boolVal)
	case *array.Int64Builder:
		intVal, err := typeutils.ReformatInt64(val)
		if err != nil {
			return err
		}
		builder.Append(intVal)
	case *array.Float64Builder:
		floatVal, err := typeutils.ReformatFloat64(val)
		if err != nil {
			return err
		}
		builder.Append(floatVal)
	case *array.TimestampBuilder:
		timeVal, err := typeutils.ReformatTime(val)
		if err != nil {
			return err
		}
		builder.Append(arrow.Timestamp(timeVal.UnixMicro()))
	case *array.StringBuilder:
		if col.Type == types.JSON {
			switch val.(type) {
			case string:
				builder.Append(val.(string))
			default:
				raw, err := json.Marshal(val)
				if err != nil {
					return fmt.Errorf("failed to stringify json value: %s", err)
				}
				builder.Append(string(raw))
			}
			return nil
		}
		strVal, ok := val.(string)
		if !ok {
			return fmt.Errorf("value of type %T is not a string", val)
		}
		builder.Append(strVal)
	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}
	return nil
}

// Encode validates and packs resolved resources of one table into a batch.
// Fails with an encoding error when a primary-key value is missing or a
// value's runtime type mismatches the column's declared type.
func Encode(table *types.Table, resources []*types.Resource) (*Batch, error) {
	schema := buildSchema(table)
	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()

	for _, resource := range resources {
		for idx, col := range table.Columns {
			val := resource.Get(col.Name)
			if val == nil {
				if col.PrimaryKey {
					return nil, types.NewEncodingError(table.Name,
						fmt.Errorf("missing value for primary key column %s", col.Name))
				}
				builder.Field(idx).AppendNull()
				continue
			}
			if err := appendValue(builder.Field(idx), col, val); err != nil {
				return nil, types.NewEncodingError(table.Name,
					fmt.Errorf("column %s: %s", col.Name, err))
			}
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		return nil, types.NewEncodingError(table.Name, fmt.Errorf("failed to write ipc stream: %s", err))
	}
	if err := writer.Close(); err != nil {
		return nil, types.NewEncodingError(table.Name, fmt.Errorf("failed to close ipc stream: %s", err))
	}

	return &Batch{Table: table.Name, Records: len(resources), Data: buf.Bytes()}, nil
}

// DecodedColumn describes one column recovered from the wire bytes.
type DecodedColumn struct {
	Name           string
	Type           types.DataType
	PrimaryKey     bool
	IncrementalKey bool
}

// Decoded is the in-memory form of a record batch after decoding.
type Decoded struct {
	Table   string
	Columns []DecodedColumn
	Records []map[string]any
}

// Decode recovers table name, column schema and row values from raw IPC
// bytes. Fails with a decoding error on malformed or truncated input.
func Decode(data []byte) (*Decoded, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewDecodingError(fmt.Errorf("failed to open ipc stream: %s", err))
	}
	defer reader.Release()

	schema := reader.Schema()
	decoded := &Decoded{}
	if idx := schema.Metadata().FindKey(metaTable); idx >= 0 {
		decoded.Table = schema.Metadata().Values()[idx]
	}

	for _, field := range schema.Fields() {
		col := DecodedColumn{Name: field.Name, Type: dataTypeFromArrow(field.Type)}
		if idx := field.Metadata.FindKey(metaPrimaryKey); idx >= 0 {
			col.PrimaryKey = field.Metadata.Values()[idx] == "true"
		}
		if idx := field.Metadata.FindKey(metaIncrementalKey); idx >= 0 {
			col.IncrementalKey = field.Metadata.Values()[idx] == "true"
		}
		decoded.Columns = append(decoded.Columns, col)
	}

	for reader.Next() {
		record := reader.Record()
		for row := 0; row < int(record.NumRows()); row++ {
			values := make(map[string]any, len(decoded.Columns))
			for colIdx, col := range decoded.Columns {
				value, err := readValue(record.Column(colIdx), row)
				if err != nil {
					return nil, types.NewDecodingError(fmt.Errorf("column %s: %s", col.Name, err))
				}
				values[col.Name] = value
			}
			decoded.Records = append(decoded.Records, values)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, types.NewDecodingError(fmt.Errorf("truncated or malformed ipc stream: %s", err))
	}
	return decoded, nil
}

func readValue(column arrow.Array, row int) (any, error) {
	if column.IsNull(row) {
		return nil, nil
	}
	switch arr := column.(type) {
	case *array.Boolean:
		return arr.Value(row), nil
	case *array.Int64:
		return arr.Value(row), nil
	case *array.Float64:
		return arr.Value(row), nil
	case *array.Timestamp:
		return time.UnixMicro(int64(arr.Value(row))).UTC(), nil
	case *array.String:
		return arr.Value(row), nil
	default:
		return nil, fmt.Errorf("unsupported arrow array type %T", column)
	}
}
