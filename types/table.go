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

package types

import "context"

// Client is an opaque execution context bound to one table invocation, e.g.
// one organization's API client. Multiple clients for the same table run
// concurrently and independently.
type Client interface {
	ID() string
}

// Multiplexer expands one top-level table fetch into independent per-client
// fetches. Enumeration may itself require a network call; a failure is scoped
// to the affected table. Ordering of returned clients is not stable across
// runs and must not be relied on.
type Multiplexer interface {
	Expand(ctx context.Context, root Client) ([]Client, error)
}

type MultiplexerFunc func(ctx context.Context, root Client) ([]Client, error)

func (f MultiplexerFunc) Expand(ctx context.Context, root Client) ([]Client, error) {
	return f(ctx, root)
}

// Cursor is an opaque table-scoped watermark recorded in the incremental
// state store. Empty means "no cursor stored".
type Cursor string

func (c Cursor) IsZero() bool {
	return c == ""
}

// FetchRequest carries everything a table resolver needs for one pass.
type FetchRequest struct {
	Client Client
	Parent *Resource // nil for top-level tables
	Cursor Cursor    // fetch-lower-bound hint, empty unless the table is incremental
}

// TableResolver produces the raw records of one table for one client. The
// emitted sequence is finite, consumed once and not restartable; the resolver
// must not close the channel, the scheduler owns it.
type TableResolver interface {
	Resolve(ctx context.Context, req FetchRequest, out chan<- any) error
}

type TableResolverFunc func(ctx context.Context, req FetchRequest, out chan<- any) error

func (f TableResolverFunc) Resolve(ctx context.Context, req FetchRequest, out chan<- any) error {
	return f(ctx, req, out)
}

// ColumnResolver derives one column value on a resource. The default resolver
// copies the same-named field out of the raw record.
type ColumnResolver interface {
	Resolve(ctx context.Context, resource *Resource, column Column) error
}

type ColumnResolverFunc func(ctx context.Context, resource *Resource, column Column) error

func (f ColumnResolverFunc) Resolve(ctx context.Context, resource *Resource, column Column) error {
	return f(ctx, resource, column)
}

type Column struct {
	Name           string
	Type           DataType
	PrimaryKey     bool
	IncrementalKey bool // at most one per table; drives the stored cursor
	Resolver       ColumnResolver
}

type Table struct {
	Name        string
	Description string
	Columns     []Column
	Resolver    TableResolver
	Multiplexer Multiplexer // top-level tables only
	Relations   []*Table    // dependent tables, resolved per parent row

	// Parent is a weak back-reference linked by the schema registry; tables
	// with a parent are dependent, all others are top-level.
	Parent *Table
}

func (t *Table) IsDependent() bool {
	return t.Parent != nil
}

// CursorColumn returns the column flagged as incremental key, nil when the
// table syncs full-refresh.
func (t *Table) CursorColumn() *Column {
	for i := range t.Columns {
		if t.Columns[i].IncrementalKey {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) PrimaryKeys() []string {
	var keys []string
	for i := range t.Columns {
		if t.Columns[i].PrimaryKey {
			keys = append(keys, t.Columns[i].Name)
		}
	}
	return keys
}
