package catalog

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/koustreak/stagegen/internal/errs"
)

// stagingFile matches extracts exported with the staging prefix,
// e.g. STG_ORDERS.csv or stg_order_lines.CSV.
var stagingFile = regexp.MustCompile(`(?i)^stg_(.+)\.csv$`)

// TableNameFromFile derives the catalog table name from an extract file name.
//
// STG_<NAME>.csv yields <NAME>; any other name has its extension stripped.
// The result is upper-cased. Names that do not form a usable identifier
// (empty, containing whitespace, path separators or punctuation other than
// underscore) are rejected so they never reach the naming resolver.
func TableNameFromFile(fileName string) (string, error) {
	base := strings.TrimSpace(fileName)
	if strings.ContainsAny(base, `/\`) {
		return "", errs.Newf(errs.ErrKindInvalidInput,
			"extract file name %q must not contain path separators", fileName)
	}

	var name string
	if m := stagingFile.FindStringSubmatch(base); m != nil {
		name = m[1]
	} else {
		name = strings.TrimSuffix(base, path.Ext(base))
	}
	name = NormalizeTableName(name)

	if name == "" {
		return "", errs.Newf(errs.ErrKindInvalidInput,
			"extract file name %q does not contain a table name", fileName)
	}
	if i := strings.IndexFunc(name, notIdentRune); i >= 0 {
		r, _ := utf8.DecodeRuneInString(name[i:])
		return "", errs.Newf(errs.ErrKindInvalidInput,
			"table name %q derived from %q contains invalid character %q", name, fileName, r)
	}
	return name, nil
}

// NormalizeTableName is the case normalisation applied to every table name,
// whether it comes from a file name or a schema declaration.
func NormalizeTableName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func notIdentRune(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}
