package inference

import (
	"strings"
	"unicode"

	"github.com/koustreak/stagegen/internal/errs"
)

// ReservedColumns names the audit columns recognised by convention. They are
// excluded from payload classification and rendered as the load-date,
// record-source and effective-from identifiers of every staging model.
type ReservedColumns struct {
	LoadDate      string   `koanf:"load_date" json:"loadDate"`
	RecordSource  string   `koanf:"record_source" json:"recordSource"`
	EffectiveFrom string   `koanf:"effective_from" json:"effectiveFrom"`
	Extra         []string `koanf:"extra" json:"extra,omitempty"`
}

// DefaultReservedColumns returns the standard automate_dv audit names.
// CREATED_AT and similar source timestamps are payload unless listed in Extra.
func DefaultReservedColumns() ReservedColumns {
	return ReservedColumns{
		LoadDate:      "LOAD_DATE",
		RecordSource:  "RECORD_SOURCE",
		EffectiveFrom: "EFFECTIVE_FROM",
	}
}

// Names returns every reserved name in declaration order.
func (r ReservedColumns) Names() []string {
	out := []string{r.LoadDate, r.RecordSource, r.EffectiveFrom}
	return append(out, r.Extra...)
}

// Validate rejects empty, duplicate or non-identifier names.
func (r ReservedColumns) Validate() error {
	seen := make(map[string]bool)
	for i, name := range r.Names() {
		if strings.TrimSpace(name) == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "reserved column %d is empty", i+1)
		}
		if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			return errs.Newf(errs.ErrKindInvalidInput, "reserved column %q contains whitespace", name)
		}
		key := strings.ToUpper(name)
		if seen[key] {
			return errs.Newf(errs.ErrKindInvalidInput, "reserved column %q listed twice", name)
		}
		seen[key] = true
	}
	return nil
}

// set returns the upper-cased lookup set.
func (r ReservedColumns) set() map[string]bool {
	s := make(map[string]bool)
	for _, name := range r.Names() {
		s[strings.ToUpper(name)] = true
	}
	return s
}
