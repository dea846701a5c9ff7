package catalog

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/koustreak/stagegen/internal/errs"
)

const utf8BOM = "\ufeff"

// ReadHeader reads the first record of a CSV extract and returns its column
// names in order. Only the header is consumed; data rows are never read.
func ReadHeader(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	record, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.New(errs.ErrKindInvalidInput, "extract has no header row")
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read CSV header", err)
	}
	if len(record) > 0 {
		record[0] = strings.TrimPrefix(record[0], utf8BOM)
	}
	return normalizeColumns(record)
}

// normalizeColumns trims each column name and rejects empty or duplicate
// names. Duplicates are detected case-insensitively because column matching
// throughout the pipeline is case-insensitive.
func normalizeColumns(cols []string) ([]string, error) {
	if len(cols) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "extract has no columns")
	}
	out := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	for i, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "column %d has an empty name", i+1)
		}
		key := strings.ToUpper(c)
		if j, dup := seen[key]; dup {
			return nil, errs.Newf(errs.ErrKindInvalidInput,
				"duplicate column %q at positions %d and %d", c, j+1, i+1)
		}
		seen[key] = i
		out[i] = c
	}
	return out, nil
}
