// Package bundle assembles the output of one generation request: the
// rendered staging models and the inferred metadata, both in catalog order.
package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/inference"
	"github.com/koustreak/stagegen/internal/naming"
)

// MetadataFileName is the name under which sinks publish Tables as JSON.
const MetadataFileName = "metadata.json"

// GeneratedFile is one rendered staging model.
type GeneratedFile struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// Bundle is read-only once returned by New.
type Bundle struct {
	Files  []GeneratedFile           `json:"files"`
	Tables []inference.TableMetadata `json:"tables"`
}

// New pairs files with tables. Both slices must be in the same table order;
// the file at index i must be the model of the table at index i.
func New(files []GeneratedFile, tables []inference.TableMetadata) (*Bundle, error) {
	if len(files) != len(tables) {
		return nil, fmt.Errorf("bundle: %d files for %d tables", len(files), len(tables))
	}
	for i := range tables {
		if want := naming.FileName(tables[i].TableName); files[i].FileName != want {
			return nil, fmt.Errorf("bundle: file %d is %s, want %s", i, files[i].FileName, want)
		}
	}
	return &Bundle{Files: files, Tables: tables}, nil
}

// File returns the generated file of table.
func (b *Bundle) File(table string) (GeneratedFile, bool) {
	i := b.index(table)
	if i < 0 {
		return GeneratedFile{}, false
	}
	return b.Files[i], true
}

// Table returns the metadata record of table.
func (b *Bundle) Table(table string) (inference.TableMetadata, bool) {
	i := b.index(table)
	if i < 0 {
		return inference.TableMetadata{}, false
	}
	return b.Tables[i], true
}

// Len returns the number of tables in the bundle.
func (b *Bundle) Len() int {
	return len(b.Tables)
}

// MetadataJSON encodes Tables the way sinks publish them.
func (b *Bundle) MetadataJSON() ([]byte, error) {
	return MarshalTables(b.Tables)
}

// MarshalTables encodes metadata records as indented JSON with a trailing
// newline.
func MarshalTables(tables []inference.TableMetadata) ([]byte, error) {
	if tables == nil {
		tables = []inference.TableMetadata{}
	}
	data, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode table metadata: %w", err)
	}
	return append(data, '\n'), nil
}

func (b *Bundle) index(table string) int {
	name := catalog.NormalizeTableName(table)
	for i, t := range b.Tables {
		if t.TableName == name {
			return i
		}
	}
	return -1
}
