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

// Package transport is the RPC boundary between engine and plugin: schema
// negotiation plus a streaming sync call carrying encoded record batches.
// The boundary is a capability interface, so a plugin can live in-process,
// behind a local socket or in a container without the engine noticing.
// Transport-level failures are always fatal to the whole sync, unlike
// per-table resolver errors.
package transport

import (
	"context"

	"github.com/syncplane/syncplane/codec"
	"github.com/syncplane/syncplane/types"
)

// CursorState is the wire form of one stored cursor.
type CursorState struct {
	Table  string       `json:"table"`
	Client string       `json:"client"`
	Cursor types.Cursor `json:"cursor"`
}

// SyncRequest selects tables and seeds incremental cursors for one sync.
type SyncRequest struct {
	Tables      []string      `json:"tables,omitempty"` // glob patterns, empty selects all
	Cursors     []CursorState `json:"cursors,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
	BatchSize   int           `json:"batch_size,omitempty"`
}

type FrameKind string

const (
	FrameBatch   FrameKind = "batch"
	FrameSummary FrameKind = "summary"
)

// Frame is one message on the sync stream: record batches while the sync
// runs, then exactly one terminal summary.
type Frame struct {
	Kind    FrameKind    `json:"kind"`
	Batch   *codec.Batch `json:"batch,omitempty"`
	Summary *WireSummary `json:"summary,omitempty"`
}

// WireSummary reports collected table-level errors and cursor advances of a
// completed (possibly partially failed) sync.
type WireSummary struct {
	Resources map[string]int64 `json:"resources,omitempty"`
	Errors    []WireError      `json:"errors,omitempty"`
	Cursors   []CursorState    `json:"cursors,omitempty"`
}

type WireError struct {
	Kind    types.ErrorKind `json:"kind"`
	Table   string          `json:"table,omitempty"`
	Client  string          `json:"client,omitempty"`
	Message string          `json:"message"`
}

// Stream yields frames until io.EOF. Any other error is fatal.
type Stream interface {
	Recv() (*Frame, error)
}

type Transport interface {
	// NegotiateSchema returns the plugin's table definitions in dependency
	// order.
	NegotiateSchema(ctx context.Context) ([]*types.TableDef, error)
	// Sync starts a sync pass and returns the lazy frame stream.
	Sync(ctx context.Context, req SyncRequest) (Stream, error)
	Close(ctx context.Context) error
}
