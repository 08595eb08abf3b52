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

// Package schema holds the static definition of every table a plugin serves:
// names, column types, parent/child relationships and resolver bindings.
package schema

import (
	"sync"

	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
	"github.com/syncplane/syncplane/utils/logger"
)

// Registry stores registered tables and their dependency tree. It is mutable
// during plugin construction and read-only once a sync starts (Freeze).
type Registry struct {
	mu       sync.Mutex
	tables   map[string]*types.Table
	topLevel []*types.Table
	frozen   bool
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*types.Table)}
}

// Register adds a top-level table and its relation subtree. It fails with a
// schema error on duplicate names, missing resolvers or columns. A
// multiplexer declared on a dependent table is ignored with a warning;
// dependent tables always fetch under the parent's client.
func (r *Registry) Register(table *types.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return types.NewSchemaError("registry is read-only after sync start")
	}
	if table == nil || table.Name == "" {
		return types.NewSchemaError("table must have a name")
	}

	if err := r.validateTree(table, make(map[string]bool)); err != nil {
		return err
	}

	// link parent back-references and index the whole subtree
	r.link(table, nil)
	r.topLevel = append(r.topLevel, table)
	return nil
}

func (r *Registry) validateTree(table *types.Table, seen map[string]bool) error {
	if table.Name == "" {
		return types.NewSchemaError("table must have a name")
	}
	if _, exists := r.tables[table.Name]; exists {
		return types.NewSchemaError("duplicate table name %s", table.Name)
	}
	if seen[table.Name] {
		// a table reachable twice within one registration is a cycle
		return types.NewSchemaError("cycle detected at table %s", table.Name)
	}
	if table.Resolver == nil {
		return types.NewSchemaError("table %s has no resolver", table.Name)
	}
	if len(table.Columns) == 0 {
		return types.NewSchemaError("table %s has no columns", table.Name)
	}

	cursors := 0
	for _, c := range table.Columns {
		if c.Name == "" {
			return types.NewSchemaError("table %s has an unnamed column", table.Name)
		}
		if c.IncrementalKey {
			cursors++
		}
	}
	if cursors > 1 {
		return types.NewSchemaError("table %s declares %d incremental cursor columns, at most one allowed", table.Name, cursors)
	}

	seen[table.Name] = true
	return utils.ForEach(table.Relations, func(rel *types.Table) error {
		if rel == nil {
			return types.NewSchemaError("table %s declares a nil relation", table.Name)
		}
		return r.validateTree(rel, seen)
	})
}

// link indexes a subtree and sets weak parent back-references; called with
// the registry lock held and only after validation passed.
func (r *Registry) link(table *types.Table, parent *types.Table) {
	table.Parent = parent
	if parent != nil && table.Multiplexer != nil {
		// dependent tables always fetch under the parent's client
		logger.Warnf("table %s is dependent on %s; ignoring its multiplexer", table.Name, parent.Name)
		table.Multiplexer = nil
	}
	r.tables[table.Name] = table
	for _, rel := range table.Relations {
		r.link(rel, table)
	}
}

// Freeze marks the registry read-only and returns all tables in dependency
// order, parents before children.
func (r *Registry) Freeze() ([]*types.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return r.dependencyOrder()
}

// DependencyOrder returns the registered tables topologically sorted, parents
// before children, failing with a schema error on a cycle.
func (r *Registry) DependencyOrder() ([]*types.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dependencyOrder()
}

func (r *Registry) dependencyOrder() ([]*types.Table, error) {
	var (
		order   []*types.Table
		onStack = make(map[string]bool)
		done    = make(map[string]bool)
		visit   func(table *types.Table) error
	)
	visit = func(table *types.Table) error {
		if done[table.Name] {
			return nil
		}
		if onStack[table.Name] {
			return types.NewSchemaError("cycle detected at table %s", table.Name)
		}
		onStack[table.Name] = true
		order = append(order, table)
		for _, rel := range table.Relations {
			if err := visit(rel); err != nil {
				return err
			}
		}
		onStack[table.Name] = false
		done[table.Name] = true
		return nil
	}
	for _, table := range r.topLevel {
		if err := visit(table); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// TopLevel returns the registered top-level tables matching the given glob
// patterns; an empty pattern list selects all of them.
func (r *Registry) TopLevel(patterns ...string) []*types.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	var selected []*types.Table
	for _, table := range r.topLevel {
		if utils.MatchesAny(table.Name, patterns) {
			selected = append(selected, table)
		}
	}
	return selected
}

// Get returns a registered table by name, nil if unknown.
func (r *Registry) Get(name string) *types.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[name]
}

// Defs returns the wire definitions of every registered table in dependency
// order, for schema negotiation.
func (r *Registry) Defs() ([]*types.TableDef, error) {
	tables, err := r.DependencyOrder()
	if err != nil {
		return nil, err
	}
	defs := make([]*types.TableDef, 0, len(tables))
	for _, table := range tables {
		defs = append(defs, table.Def())
	}
	return defs, nil
}

// Len returns the number of registered tables, dependents included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}
