package types

import (
	"fmt"
	"sync"
)

// Resource is one row produced by a table resolver for one table instance.
// It holds a handle to its parent resource so column resolvers and child
// resolvers can read ancestor data. A resource lives for one resolver pass:
// created, column-resolved, encoded, discarded.
type Resource struct {
	Table  *Table
	Parent *Resource

	// Item is the raw record the table resolver emitted.
	Item any

	mu     sync.RWMutex
	values map[string]any
}

func NewResource(table *Table, parent *Resource, item any) *Resource {
	return &Resource{
		Table:  table,
		Parent: parent,
		Item:   item,
		values: make(map[string]any, len(table.Columns)),
	}
}

func (r *Resource) Set(column string, value any) error {
	if r.Table.Column(column) == nil {
		return fmt.Errorf("column %s not part of table %s", column, r.Table.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[column] = value
	return nil
}

func (r *Resource) Get(column string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[column]
}

// Values returns a copy of the resolved column values.
func (r *Resource) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Record coerces the raw item into a Record when the resolver emitted a map.
func (r *Resource) Record() (Record, bool) {
	switch item := r.Item.(type) {
	case Record:
		return item, true
	case map[string]any:
		return Record(item), true
	default:
		return nil, false
	}
}
