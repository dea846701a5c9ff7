// Package render produces the dbt staging model for one table.
//
// The model is a fixed automate_dv.stage skeleton. Only identifiers and
// column lists are substituted, so the output for a given TableMetadata is
// byte-stable: no timestamps, fixed indentation and \n line endings.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/koustreak/stagegen/internal/bundle"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/inference"
	"github.com/koustreak/stagegen/internal/naming"
)

// DefaultMaterialization is used when none is configured.
const DefaultMaterialization = "view"

// listIndent is the indentation of list items inside a Jinja set block.
const listIndent = "    "

//go:embed stage.sql.tmpl
var stageTemplate string

// Renderer renders staging models. It is safe for concurrent use.
type Renderer struct {
	tmpl            *template.Template
	materialization string
	reserved        inference.ReservedColumns
}

// stageData is the substitution context of stage.sql.tmpl.
type stageData struct {
	Table           string
	Materialization string
	SourceModel     string
	HashKey         string
	HashDiff        string
	NaturalKey      []string
	Payload         []string
	EffectiveFrom   string
	LoadDate        string
	RecordSource    string
}

// New returns a Renderer. An empty materialization means DefaultMaterialization.
// The audit identifiers of every model come from reserved.
func New(materialization string, reserved inference.ReservedColumns) (*Renderer, error) {
	if materialization == "" {
		materialization = DefaultMaterialization
	}
	if !isIdentifier(materialization) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "materialization %q is not a dbt identifier", materialization)
	}
	if err := reserved.Validate(); err != nil {
		return nil, err
	}

	// dbt owns {{ }} and {% %}, so the Go template uses [[ ]].
	tmpl, err := template.New("stage").
		Delims("[[", "]]").
		Funcs(template.FuncMap{"quote": quote, "list": list}).
		Option("missingkey=error").
		Parse(stageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse stage template: %w", err)
	}

	return &Renderer{
		tmpl:            tmpl,
		materialization: materialization,
		reserved:        reserved,
	}, nil
}

// Materialization returns the configured dbt materialization.
func (r *Renderer) Materialization() string {
	return r.materialization
}

// Render substitutes names and md into the staging skeleton. The payload
// list is rendered in md.Payload order.
func (r *Renderer) Render(names naming.Names, md inference.TableMetadata) (string, error) {
	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, stageData{
		Table:           names.Table,
		Materialization: r.materialization,
		SourceModel:     names.SourceModel,
		HashKey:         names.HashKey,
		HashDiff:        names.HashDiff,
		NaturalKey:      md.PrimaryKey,
		Payload:         md.Payload,
		EffectiveFrom:   r.reserved.EffectiveFrom,
		LoadDate:        r.reserved.LoadDate,
		RecordSource:    r.reserved.RecordSource,
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindUnknown, "render staging model for "+names.Table, err)
	}
	return buf.String(), nil
}

// File resolves the names of md.TableName and renders its model.
func (r *Renderer) File(md inference.TableMetadata) (bundle.GeneratedFile, error) {
	names := naming.Resolve(md.TableName)
	content, err := r.Render(names, md)
	if err != nil {
		return bundle.GeneratedFile{}, err
	}
	return bundle.GeneratedFile{FileName: names.FileName, Content: content}, nil
}

func quote(s string) string {
	return strconv.Quote(s)
}

// list renders a Jinja list literal, one quoted item per line.
func list(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteString("[\n")
	for i, item := range items {
		b.WriteString(listIndent)
		b.WriteString(quote(item))
		if i < len(items)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("]")
	return b.String()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
