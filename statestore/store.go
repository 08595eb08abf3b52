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

// Package statestore persists per-(table, client) incremental cursors between
// sync runs. Backends are pluggable; the scheduler treats the store as an
// opaque capability and only requires atomic per-key upserts.
package statestore

import (
	"context"
	"fmt"

	"github.com/syncplane/syncplane/types"
)

// Key identifies one cursor: a table name plus the multiplexed client that
// fetched it. Writes are last-write-wins per key; no lock broader than the
// key is required of a backend.
type Key struct {
	Table  string `json:"table"`
	Client string `json:"client"`
}

func NewKey(table, client string) Key {
	return Key{Table: table, Client: client}
}

func (k Key) String() string {
	return fmt.Sprintf("%s.%s", k.Table, k.Client)
}

type Store interface {
	// Get returns the stored cursor for the key, zero Cursor when absent.
	Get(ctx context.Context, key Key) (types.Cursor, error)
	// Put atomically upserts the cursor for the key.
	Put(ctx context.Context, key Key, cursor types.Cursor) error
	Close(ctx context.Context) error
}

// Snapshotter is implemented by stores that can enumerate their contents;
// used by the transport server to report cursor updates back to the engine.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[Key]types.Cursor, error)
}
