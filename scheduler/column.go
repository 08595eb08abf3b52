package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/syncplane/syncplane/types"
)

// defaultColumnResolver extracts the same-named field from the raw record the
// table resolver emitted. Map records are matched by key, struct records by
// exported field name (case-insensitive).
var defaultColumnResolver types.ColumnResolver = types.ColumnResolverFunc(
	func(_ context.Context, resource *types.Resource, column types.Column) error {
		if record, ok := resource.Record(); ok {
			value, found := record[column.Name]
			if !found || value == nil {
				return nil
			}
			return resource.Set(column.Name, value)
		}
		value, err := structField(resource.Item, column.Name)
		if err != nil {
			return err
		}
		if value == nil {
			return nil
		}
		return resource.Set(column.Name, value)
	})

func structField(item any, name string) (any, error) {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record of type %T has no addressable fields", item)
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if strings.EqualFold(field.Name, name) {
			value := v.Field(i)
			if value.Kind() == reflect.Pointer && value.IsNil() {
				return nil, nil
			}
			return value.Interface(), nil
		}
	}
	return nil, nil
}

// ParentColumnResolver copies a resolved column value from the parent
// resource, for foreign-key style columns on dependent tables.
func ParentColumnResolver(parentColumn string) types.ColumnResolver {
	return types.ColumnResolverFunc(func(_ context.Context, resource *types.Resource, column types.Column) error {
		if resource.Parent == nil {
			return fmt.Errorf("table %s has no parent resource", resource.Table.Name)
		}
		return resource.Set(column.Name, resource.Parent.Get(parentColumn))
	})
}
