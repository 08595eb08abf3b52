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

// Package local writes record batches as JSON-lines files, one file per
// table. Mostly useful for debugging plugins without a real warehouse.
package local

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/syncplane/syncplane/codec"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
	"github.com/syncplane/syncplane/utils/logger"
	"github.com/syncplane/syncplane/utils/typeutils"
)

func init() {
	destination.RegisteredWriters["local"] = func(raw json.RawMessage) (destination.NewWriterFunc, error) {
		config := &Config{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, config); err != nil {
				return nil, fmt.Errorf("failed to parse local writer config: %s", err)
			}
		}
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid local writer config: %s", err)
		}
		return func() destination.Writer { return NewWriter(config) }, nil
	}
}

type Config struct {
	Directory string `json:"directory" validate:"required"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}

type Writer struct {
	config *Config
	table  string
	file   *os.File
	buf    *bufio.Writer
	rows   int64
}

func NewWriter(config *Config) *Writer {
	return &Writer{config: config}
}

func (w *Writer) Type() string {
	return "local"
}

func (w *Writer) Setup(_ context.Context, table string) error {
	if err := w.config.Validate(); err != nil {
		return fmt.Errorf("invalid local writer config: %s", err)
	}
	if err := os.MkdirAll(w.config.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %s", err)
	}

	path := filepath.Join(w.config.Directory, fmt.Sprintf("%s.jsonl", table))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %s", path, err)
	}
	w.table = table
	w.file = file
	w.buf = bufio.NewWriter(file)
	return nil
}

func (w *Writer) Write(_ context.Context, batch *codec.Batch) error {
	decoded, err := codec.Decode(batch.Data)
	if err != nil {
		return err
	}
	for _, record := range decoded.Records {
		// timestamps to strings so the output stays diffable
		for key, value := range record {
			if col := findColumn(decoded, key); col != nil && col.Type == types.Timestamp && value != nil {
				record[key] = typeutils.FormatCursorValue(value)
			}
		}
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %s", err)
		}
		if _, err := w.buf.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write record: %s", err)
		}
		w.rows++
	}
	return nil
}

func findColumn(decoded *codec.Decoded, name string) *codec.DecodedColumn {
	for i := range decoded.Columns {
		if decoded.Columns[i].Name == name {
			return &decoded.Columns[i]
		}
	}
	return nil
}

func (w *Writer) Close(_ context.Context) error {
	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %s", w.table, err)
	}
	logger.Infof("local writer flushed %d rows for table %s", w.rows, w.table)
	return w.file.Close()
}
