// Package catalog builds the in-memory catalog of source tables for one
// generation request.
//
// Input is a list of extracts (file name plus observed CSV header) and the
// declared schema document. Output is an ordered, read-only Catalog keyed by
// normalised table name. Nothing in this package performs I/O beyond the
// io.Reader handed to ReadHeader.
package catalog

import (
	"fmt"
	"strings"

	"github.com/koustreak/stagegen/internal/errs"
)

// Extract is one uploaded tabular extract as handed over by ingestion.
type Extract struct {
	FileName string   `json:"fileName"`
	Columns  []string `json:"columns"`
}

// ForeignKeyRef is a declared relationship from a column of this table to a
// column of another catalog table.
type ForeignKeyRef struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

// SourceTable is one catalog entry. It must not be modified after Build
// returns; downstream stages only read it.
type SourceTable struct {
	Name     string
	FileName string
	Columns  []string

	// PrimaryKey is the declared key, nil when the schema is silent.
	PrimaryKey  []string
	ForeignKeys []ForeignKeyRef
}

// Column returns the observed spelling of name, matched case-insensitively.
func (t *SourceTable) Column(name string) (string, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Catalog is the ordered set of source tables for one request.
type Catalog struct {
	tables    []*SourceTable
	byName    map[string]*SourceTable
	unmatched []string
}

// Tables returns the tables in extract order.
func (c *Catalog) Tables() []*SourceTable {
	out := make([]*SourceTable, len(c.tables))
	copy(out, c.tables)
	return out
}

// Table looks a table up by name (case-insensitive).
func (c *Catalog) Table(name string) (*SourceTable, bool) {
	t, ok := c.byName[NormalizeTableName(name)]
	return t, ok
}

// Len returns the number of tables.
func (c *Catalog) Len() int {
	return len(c.tables)
}

// Unmatched lists schema declarations that have no corresponding extract.
// They are not an error; callers typically log them.
func (c *Catalog) Unmatched() []string {
	return append([]string(nil), c.unmatched...)
}

// Build assembles the catalog from extracts and a parsed schema document.
// A nil doc is treated as an empty document.
func Build(extracts []Extract, doc *SchemaDocument) (*Catalog, error) {
	if len(extracts) == 0 {
		return nil, errs.New(errs.ErrKindEmptyInput, "no table extracts supplied")
	}
	if doc == nil {
		doc = &SchemaDocument{}
	}

	c := &Catalog{
		tables: make([]*SourceTable, 0, len(extracts)),
		byName: make(map[string]*SourceTable, len(extracts)),
	}

	for _, ex := range extracts {
		name, err := TableNameFromFile(ex.FileName)
		if err != nil {
			return nil, err
		}
		if prev, dup := c.byName[name]; dup {
			return nil, errs.ForTable(errs.ErrKindNameCollision, name,
				fmt.Sprintf("extracts %q and %q both map to this table", prev.FileName, ex.FileName))
		}

		cols, err := normalizeColumns(ex.Columns)
		if err != nil {
			if e, ok := err.(*errs.Error); ok {
				e.Table = name
			}
			return nil, err
		}

		t := &SourceTable{
			Name:     name,
			FileName: ex.FileName,
			Columns:  cols,
		}
		if decl, ok := doc.table(name); ok {
			if len(decl.PrimaryKey) > 0 {
				t.PrimaryKey = append([]string(nil), decl.PrimaryKey...)
			}
			for _, fk := range decl.ForeignKeys {
				refTable, refCol := fk.Target()
				t.ForeignKeys = append(t.ForeignKeys, ForeignKeyRef{
					Table:     name,
					Column:    fk.Column,
					RefTable:  NormalizeTableName(refTable),
					RefColumn: refCol,
				})
			}
		}

		c.tables = append(c.tables, t)
		c.byName[name] = t
	}

	for _, decl := range doc.Tables {
		if _, ok := c.byName[decl.Name]; !ok {
			c.unmatched = append(c.unmatched, decl.Name)
		}
	}

	return c, nil
}
