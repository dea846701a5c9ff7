// Package inference derives primary keys, foreign keys and payload columns
// for every table in a catalog. It never mutates the catalog.
//
// Inference runs in two steps. ResolveKeys settles the primary key of every
// table first, since foreign key validation needs the key of the referenced
// table. Infer then derives one table at a time and is safe to call
// concurrently for different tables.
package inference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/naming"
)

// Keys maps a table name to its resolved primary key, in observed spelling.
type Keys map[string][]string

// Engine holds the classification policy.
type Engine struct {
	reserved    ReservedColumns
	reservedSet map[string]bool
}

// NewEngine returns an Engine using the given reserved-column configuration.
func NewEngine(reserved ReservedColumns) (*Engine, error) {
	if err := reserved.Validate(); err != nil {
		return nil, err
	}
	return &Engine{reserved: reserved, reservedSet: reserved.set()}, nil
}

// Reserved returns the configuration the engine was built with.
func (e *Engine) Reserved() ReservedColumns {
	return e.reserved
}

// ResolveKeys resolves the primary key of every table. A table without a
// declaration defaults to <TABLE>_ID. Every key column must appear in the
// table header; all missing columns are reported together, in catalog order.
func (e *Engine) ResolveKeys(c *catalog.Catalog) (Keys, error) {
	keys := make(Keys, c.Len())
	var problems []error

	for _, t := range c.Tables() {
		declared := t.PrimaryKey
		if len(declared) == 0 {
			declared = []string{naming.DefaultKeyColumn(t.Name)}
		}

		resolved := make([]string, 0, len(declared))
		for _, col := range declared {
			observed, ok := t.Column(col)
			if !ok {
				problems = append(problems, errs.ForColumn(errs.ErrKindMissingKeyColumn, t.Name, col,
					"primary key column is not present in the extract header"))
				continue
			}
			resolved = append(resolved, observed)
		}
		keys[t.Name] = resolved
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return keys, nil
}

// Infer derives the metadata of table t. keys must come from ResolveKeys on
// the same catalog.
func (e *Engine) Infer(c *catalog.Catalog, keys Keys, t *catalog.SourceTable) (TableMetadata, error) {
	pk := keys[t.Name]

	fks, err := e.foreignKeys(c, keys, t)
	if err != nil {
		return TableMetadata{}, err
	}

	return TableMetadata{
		TableName:   t.Name,
		PrimaryKey:  append([]string(nil), pk...),
		ForeignKeys: fks,
		Columns:     append([]string(nil), t.Columns...),
		Payload:     e.payload(t, pk),
	}, nil
}

// InferAll runs ResolveKeys and Infer sequentially for every table.
// Errors from all tables are joined in catalog order.
func (e *Engine) InferAll(c *catalog.Catalog) ([]TableMetadata, error) {
	keys, err := e.ResolveKeys(c)
	if err != nil {
		return nil, err
	}

	out := make([]TableMetadata, 0, c.Len())
	var problems []error
	for _, t := range c.Tables() {
		md, err := e.Infer(c, keys, t)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		out = append(out, md)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return out, nil
}

func (e *Engine) foreignKeys(c *catalog.Catalog, keys Keys, t *catalog.SourceTable) ([]ForeignKey, error) {
	fks := make([]ForeignKey, 0, len(t.ForeignKeys))
	var problems []error

	for _, ref := range t.ForeignKeys {
		column, ok := t.Column(ref.Column)
		if !ok {
			problems = append(problems, errs.ForColumn(errs.ErrKindReferentialIntegrity, t.Name, ref.Column,
				"foreign key column is not present in the extract header"))
			continue
		}

		if _, ok := c.Table(ref.RefTable); !ok {
			problems = append(problems, errs.ForColumn(errs.ErrKindReferentialIntegrity, t.Name, column,
				fmt.Sprintf("references table %s which has no extract", ref.RefTable)))
			continue
		}

		target, ok := keyColumn(keys[ref.RefTable], ref.RefColumn)
		if !ok {
			problems = append(problems, errs.ForColumn(errs.ErrKindReferentialIntegrity, t.Name, column,
				fmt.Sprintf("references %s.%s which is not part of its primary key [%s]",
					ref.RefTable, ref.RefColumn, strings.Join(keys[ref.RefTable], ", "))))
			continue
		}

		fks = append(fks, ForeignKey{
			Column:     column,
			References: Reference{Table: ref.RefTable, Column: target},
		})
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return fks, nil
}

// payload keeps header order and drops key, reserved and generated columns.
func (e *Engine) payload(t *catalog.SourceTable, pk []string) []string {
	skip := make(map[string]bool, len(pk)+2)
	for _, c := range pk {
		skip[strings.ToUpper(c)] = true
	}
	skip[strings.ToUpper(naming.HashKey(t.Name))] = true
	skip[strings.ToUpper(naming.HashDiff(t.Name))] = true

	out := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		key := strings.ToUpper(col)
		if skip[key] || e.reservedSet[key] {
			continue
		}
		out = append(out, col)
	}
	return out
}

func keyColumn(pk []string, name string) (string, bool) {
	for _, c := range pk {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}
