package source

import (
	"context"
	"strings"

	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/database"
	"github.com/koustreak/stagegen/internal/database/mysql"
	"github.com/koustreak/stagegen/internal/database/postgres"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
)

// OpenDatabase connects to the configured database.
func OpenDatabase(ctx context.Context, cfg database.Config) (database.Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case database.DriverPostgres:
		d, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	case database.DriverMySQL:
		d, err := mysql.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported database driver %q", cfg.Driver)
	}
}

// FromDatabase introspects schema and returns one extract per table, with
// the table's columns as header, plus a schema document declaring the
// primary and foreign keys found in the catalog. When tables is non-empty
// only those tables are read, and foreign keys pointing outside them are
// left out of the document.
func FromDatabase(ctx context.Context, db database.Introspector, schema string, tables ...string) (pipeline.Input, error) {
	log := logger.FromContext(ctx)

	info, err := database.InspectSchema(ctx, db, schema, tables...)
	if err != nil {
		return pipeline.Input{}, err
	}

	doc, skipped := SchemaFromDatabase(info)
	for _, fk := range skipped {
		log.With().Str("constraint", fk.Name).Str("table", fk.FromTable).Str("references", fk.ToTable).Logger().
			Warn("foreign key targets a table outside the selection; not declared")
	}

	data, err := doc.Marshal()
	if err != nil {
		return pipeline.Input{}, err
	}

	in := pipeline.Input{Schema: data}
	for _, t := range info.Tables {
		in.Extracts = append(in.Extracts, catalog.Extract{
			FileName: t.Name + ".csv",
			Columns:  t.ColumnNames(),
		})
	}

	log.With().Str("schema", schema).Int("tables", len(in.Extracts)).Logger().
		Debug("loaded extracts from database")
	return in, nil
}

// SchemaFromDatabase converts introspected keys into a schema document.
// Foreign keys whose target table was not inspected are returned
// separately instead of being declared. Repeated constraints over the same
// columns are declared once.
func SchemaFromDatabase(info *database.SchemaInfo) (*catalog.SchemaDocument, []database.ForeignKey) {
	doc := &catalog.SchemaDocument{}
	index := make(map[string]int, len(info.Tables))
	for _, t := range info.Tables {
		index[strings.ToUpper(t.Name)] = len(doc.Tables)
		doc.Tables = append(doc.Tables, catalog.TableDecl{
			Name:       catalog.NormalizeTableName(t.Name),
			PrimaryKey: catalog.StringList(append([]string(nil), t.PrimaryKey...)),
		})
	}

	var skipped []database.ForeignKey
	declared := make(map[[4]string]bool, len(info.ForeignKeys))
	for _, fk := range info.ForeignKeys {
		from, ok := index[strings.ToUpper(fk.FromTable)]
		if !ok {
			continue
		}
		if _, ok := index[strings.ToUpper(fk.ToTable)]; !ok {
			skipped = append(skipped, fk)
			continue
		}
		// Identical constraints under different names declare one relationship.
		rel := [4]string{
			strings.ToUpper(fk.FromTable), strings.ToUpper(fk.FromColumn),
			strings.ToUpper(fk.ToTable), strings.ToUpper(fk.ToColumn),
		}
		if declared[rel] {
			continue
		}
		declared[rel] = true
		doc.Tables[from].ForeignKeys = append(doc.Tables[from].ForeignKeys, catalog.ForeignKeyDecl{
			Column: fk.FromColumn,
			References: &catalog.ReferenceDecl{
				Table:  catalog.NormalizeTableName(fk.ToTable),
				Column: fk.ToColumn,
			},
		})
	}
	return doc, skipped
}
