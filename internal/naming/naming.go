// Package naming derives the Data Vault identifiers used for a staged table.
// Every function here is a pure function of the table name.
package naming

import "strings"

// Names holds the resolved identifiers for one table.
type Names struct {
	Table       string
	HashKey     string // <TABLE>_HK
	HashDiff    string // <TABLE>_HASHDIFF
	SourceModel string // STG_<TABLE>
	FileName    string // v_stg_<table>.sql
}

// Resolve computes the identifiers for table. The table name is expected to
// be already normalised by the catalog; it is used verbatim.
func Resolve(table string) Names {
	return Names{
		Table:       table,
		HashKey:     HashKey(table),
		HashDiff:    HashDiff(table),
		SourceModel: SourceModel(table),
		FileName:    FileName(table),
	}
}

func HashKey(table string) string {
	return table + "_HK"
}

func HashDiff(table string) string {
	return table + "_HASHDIFF"
}

func SourceModel(table string) string {
	return "STG_" + table
}

// FileName returns the output file name for the staging model of table.
func FileName(table string) string {
	return "v_stg_" + strings.ToLower(table) + ".sql"
}

// DefaultKeyColumn is the primary key assumed when the schema declares none.
func DefaultKeyColumn(table string) string {
	return table + "_ID"
}
