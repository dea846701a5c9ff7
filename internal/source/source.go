// Package source turns extracts stored somewhere (a local directory, an
// object-store prefix, a live database) into pipeline input.
package source

import (
	"path"
	"sort"
	"strings"
)

// SchemaFileNames are the schema document names looked up next to the
// extracts, in order of preference.
var SchemaFileNames = []string{"schema.yml", "schema.yaml"}

// isExtract reports whether name looks like a CSV extract.
func isExtract(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

// schemaRank returns the index of name in SchemaFileNames, or -1.
func schemaRank(name string) int {
	for i, s := range SchemaFileNames {
		if strings.EqualFold(name, s) {
			return i
		}
	}
	return -1
}

// schemaPick tracks the most preferred schema document seen so far.
type schemaPick struct {
	found string
	rank  int
}

func (p *schemaPick) offer(name, found string) {
	r := schemaRank(name)
	if r < 0 || (p.found != "" && r >= p.rank) {
		return
	}
	p.found, p.rank = found, r
}

// sortNames orders extract names so catalog order is reproducible across
// file systems and object stores.
func sortNames(names []string) {
	sort.Strings(names)
}
