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

// Package destination is the batch-write boundary of the engine: an ordered
// stream of record batches per table, acknowledged or failed per batch.
// Storage engine internals live behind the Writer interface.
package destination

import (
	"context"

	"github.com/syncplane/syncplane/codec"
)

type Config interface {
	Validate() error
}

// Writer receives the record batches of one table. A fresh instance is
// created per table by the pool, so implementations don't need to be safe
// for concurrent Write calls.
type Writer interface {
	Type() string
	// Setup prepares the writer for one table before its first batch.
	Setup(ctx context.Context, table string) error
	// Write persists one batch; an error fails the owning table's remaining
	// stream and aborts the sync.
	Write(ctx context.Context, batch *codec.Batch) error
	Close(ctx context.Context) error
}

// NewWriterFunc creates a writer instance; called once per table.
type NewWriterFunc func() Writer
