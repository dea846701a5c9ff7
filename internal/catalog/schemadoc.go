package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/stagegen/internal/errs"
)

// SchemaDocument is the declared schema accompanying a set of extracts.
//
// Two layouts are accepted: a top-level `tables` list, or dbt-style
// `sources[].tables`. ParseSchema flattens both into Tables.
type SchemaDocument struct {
	Tables  []TableDecl  `yaml:"tables,omitempty"`
	Sources []SourceDecl `yaml:"sources,omitempty"`
}

// SourceDecl is a dbt-style source grouping.
type SourceDecl struct {
	Name   string      `yaml:"name,omitempty"`
	Tables []TableDecl `yaml:"tables"`
}

// TableDecl holds the explicit declarations for one table.
type TableDecl struct {
	Name        string           `yaml:"name"`
	PrimaryKey  StringList       `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKeyDecl `yaml:"foreign_keys,omitempty"`
}

// ForeignKeyDecl declares one relationship. Both the nested form
// (`references: {table, column}`) and the flat form
// (`referencesTable`, `referencesColumn`) are accepted.
type ForeignKeyDecl struct {
	Column           string         `yaml:"column"`
	References       *ReferenceDecl `yaml:"references,omitempty"`
	ReferencesTable  string         `yaml:"referencesTable,omitempty"`
	ReferencesColumn string         `yaml:"referencesColumn,omitempty"`
}

// ReferenceDecl is the target side of a foreign key.
type ReferenceDecl struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// Target returns the referenced table and column regardless of form.
func (fk ForeignKeyDecl) Target() (table, column string) {
	if fk.References != nil {
		return fk.References.Table, fk.References.Column
	}
	return fk.ReferencesTable, fk.ReferencesColumn
}

// StringList accepts either a YAML sequence or a single scalar,
// so `primary_key: ORDER_ID` and `primary_key: [ORDER_ID]` are equivalent.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a column name or list of column names", value.Line)
	}
}

// tableDeclYAML mirrors TableDecl with the camelCase spellings used by the
// JSON input contract, so either spelling works in a schema file.
type tableDeclYAML struct {
	Name             string           `yaml:"name"`
	PrimaryKey       StringList       `yaml:"primary_key"`
	PrimaryKeyCamel  StringList       `yaml:"primaryKey"`
	ForeignKeys      []ForeignKeyDecl `yaml:"foreign_keys"`
	ForeignKeysCamel []ForeignKeyDecl `yaml:"foreignKeys"`
}

func (d *TableDecl) UnmarshalYAML(value *yaml.Node) error {
	var raw tableDeclYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d.Name = raw.Name
	d.PrimaryKey = raw.PrimaryKey
	if len(d.PrimaryKey) == 0 {
		d.PrimaryKey = raw.PrimaryKeyCamel
	}
	d.ForeignKeys = append(raw.ForeignKeys, raw.ForeignKeysCamel...)
	return nil
}

// ParseSchema decodes and validates a schema document. Empty content is a
// valid document with no declarations. Table names are normalised to upper
// case and foreign keys are rewritten to the nested form.
func ParseSchema(content []byte) (*SchemaDocument, error) {
	doc := &SchemaDocument{}
	if len(bytes.TrimSpace(content)) == 0 {
		return doc, nil
	}

	if err := yaml.Unmarshal(content, doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindSchemaParse, "schema document is not valid YAML", err)
	}

	tables := doc.Tables
	for _, src := range doc.Sources {
		tables = append(tables, src.Tables...)
	}

	seen := make(map[string]bool, len(tables))
	out := make([]TableDecl, 0, len(tables))
	for i, t := range tables {
		name := NormalizeTableName(t.Name)
		if name == "" {
			return nil, errs.Newf(errs.ErrKindSchemaParse, "table declaration %d has no name", i+1)
		}
		if seen[name] {
			return nil, errs.ForTable(errs.ErrKindSchemaParse, name, "table declared more than once")
		}
		seen[name] = true

		decl := TableDecl{Name: name}
		keyCols := make(map[string]bool, len(t.PrimaryKey))
		for _, col := range t.PrimaryKey {
			col = strings.TrimSpace(col)
			if col == "" {
				return nil, errs.ForTable(errs.ErrKindSchemaParse, name, "primary key contains an empty column name")
			}
			if keyCols[strings.ToUpper(col)] {
				return nil, errs.ForColumn(errs.ErrKindSchemaParse, name, col, "primary key lists the column twice")
			}
			keyCols[strings.ToUpper(col)] = true
			decl.PrimaryKey = append(decl.PrimaryKey, col)
		}

		relations := make(map[[3]string]bool, len(t.ForeignKeys))
		for j, fk := range t.ForeignKeys {
			col := strings.TrimSpace(fk.Column)
			refTable, refCol := fk.Target()
			refTable = NormalizeTableName(refTable)
			refCol = strings.TrimSpace(refCol)
			switch {
			case col == "":
				return nil, errs.ForTable(errs.ErrKindSchemaParse, name,
					fmt.Sprintf("foreign key %d has no column", j+1))
			case refTable == "":
				return nil, errs.ForColumn(errs.ErrKindSchemaParse, name, col, "foreign key has no referenced table")
			case refCol == "":
				return nil, errs.ForColumn(errs.ErrKindSchemaParse, name, col, "foreign key has no referenced column")
			}
			rel := [3]string{strings.ToUpper(col), refTable, strings.ToUpper(refCol)}
			if relations[rel] {
				return nil, errs.ForColumn(errs.ErrKindSchemaParse, name, col,
					fmt.Sprintf("foreign key to %s.%s declared more than once", refTable, refCol))
			}
			relations[rel] = true
			decl.ForeignKeys = append(decl.ForeignKeys, ForeignKeyDecl{
				Column:     col,
				References: &ReferenceDecl{Table: refTable, Column: refCol},
			})
		}
		out = append(out, decl)
	}

	return &SchemaDocument{Tables: out}, nil
}

// Marshal renders the document as YAML. Used when a schema document is
// synthesised from a live database rather than uploaded.
func (d *SchemaDocument) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode schema document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode schema document: %w", err)
	}
	return buf.Bytes(), nil
}

// table returns the declaration for name, if any.
func (d *SchemaDocument) table(name string) (TableDecl, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDecl{}, false
}
