package database

import (
	"context"
	"fmt"
)

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name      string
	DataType  string
	Nullable  bool
	Default   *string
	IsPrimary bool
}

// TableInfo describes a table, its columns in ordinal order and its
// primary key in key order.
type TableInfo struct {
	Schema     string
	Name       string
	Columns    []ColumnInfo
	PrimaryKey []string
}

// ColumnNames returns the column names in ordinal order.
func (t *TableInfo) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ForeignKey is one column pair of a foreign key constraint. Composite
// constraints produce one entry per column.
type ForeignKey struct {
	Name       string
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// SchemaInfo is the full introspected schema.
type SchemaInfo struct {
	Schema      string
	Tables      []TableInfo
	ForeignKeys []ForeignKey
}

// Introspector reads the structure of a database (tables, columns, keys).
// Each driver implements the engine-specific queries; InspectSchema is shared.
type Introspector interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	InspectTable(ctx context.Context, schema, table string) (*TableInfo, error)
	ListForeignKeys(ctx context.Context, schema string) ([]ForeignKey, error)
}

// InspectSchema builds the full SchemaInfo by orchestrating the Introspector.
// When only is non-empty, tables outside it are skipped and so are foreign
// keys leaving them.
func InspectSchema(ctx context.Context, i Introspector, schema string, only ...string) (*SchemaInfo, error) {
	tables, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	keep := func(string) bool { return true }
	if len(only) > 0 {
		set := make(map[string]bool, len(only))
		for _, t := range only {
			set[t] = true
		}
		keep = func(t string) bool { return set[t] }
	}

	info := &SchemaInfo{Schema: schema}
	for _, table := range tables {
		if !keep(table) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ti, err := i.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %q: %w", table, err)
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := i.ListForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		if keep(fk.FromTable) {
			info.ForeignKeys = append(info.ForeignKeys, fk)
		}
	}
	return info, nil
}
