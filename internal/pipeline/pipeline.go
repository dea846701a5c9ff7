// Package pipeline runs one generation request end to end: catalog build,
// key resolution, per-table inference and rendering, packaging.
//
// Per-table work fans out on a bounded errgroup. Results land in slots
// indexed by catalog position, so output order never depends on
// scheduling. Cancellation is observed between tables only, and any
// failure returns no bundle at all.
package pipeline

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/stagegen/internal/bundle"
	"github.com/koustreak/stagegen/internal/catalog"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/inference"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/render"
)

// Options configures a Generator.
type Options struct {
	Materialization string                    `koanf:"materialization"`
	Workers         int                       `koanf:"workers"`
	Reserved        inference.ReservedColumns `koanf:"reserved"`
}

// DefaultOptions returns a view materialization, the standard audit columns
// and one worker per CPU.
func DefaultOptions() Options {
	return Options{
		Materialization: render.DefaultMaterialization,
		Workers:         runtime.GOMAXPROCS(0),
		Reserved:        inference.DefaultReservedColumns(),
	}
}

// Validate reports the first problem New would reject.
func (o Options) Validate() error {
	if o.Workers < 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "workers must not be negative, got %d", o.Workers)
	}
	_, err := render.New(o.Materialization, o.Reserved)
	return err
}

// Input is the raw material of one request.
type Input struct {
	Extracts []catalog.Extract
	Schema   []byte
}

// Generator is safe for concurrent use; each call owns its own catalog.
type Generator struct {
	engine   *inference.Engine
	renderer *render.Renderer
	workers  int
	log      *logger.Logger
}

// New builds a Generator. A nil log discards output.
func New(opts Options, log *logger.Logger) (*Generator, error) {
	engine, err := inference.NewEngine(opts.Reserved)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(opts.Materialization, opts.Reserved)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{engine: engine, renderer: renderer, workers: workers, log: log}, nil
}

// Generate renders one staging model per extract and returns them with the
// inferred metadata, in extract order.
func (g *Generator) Generate(ctx context.Context, in Input) (*bundle.Bundle, error) {
	r, err := g.prepare(ctx, in, "generate")
	if err != nil {
		return nil, err
	}

	n := r.catalog.Len()
	files := make([]bundle.GeneratedFile, n)
	tables := make([]inference.TableMetadata, n)

	err = g.forEachTable(ctx, r, func(i int, t *catalog.SourceTable) error {
		md, err := g.engine.Infer(r.catalog, r.keys, t)
		if err != nil {
			return err
		}
		f, err := g.renderer.File(md)
		if err != nil {
			return err
		}
		tables[i] = md
		files[i] = f
		return nil
	})
	if err != nil {
		return nil, r.fail(err)
	}

	b, err := bundle.New(files, tables)
	if err != nil {
		return nil, r.fail(err)
	}
	r.log.InfoWith("generation finished", map[string]interface{}{
		"files":       len(files),
		"duration_ms": time.Since(r.start).Milliseconds(),
	})
	return b, nil
}

// Analyze runs inference only and returns the metadata records in extract
// order.
func (g *Generator) Analyze(ctx context.Context, in Input) ([]inference.TableMetadata, error) {
	r, err := g.prepare(ctx, in, "analyze")
	if err != nil {
		return nil, err
	}

	tables := make([]inference.TableMetadata, r.catalog.Len())
	err = g.forEachTable(ctx, r, func(i int, t *catalog.SourceTable) error {
		md, err := g.engine.Infer(r.catalog, r.keys, t)
		if err != nil {
			return err
		}
		tables[i] = md
		return nil
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.log.InfoWith("analysis finished", map[string]interface{}{
		"tables":      len(tables),
		"duration_ms": time.Since(r.start).Milliseconds(),
	})
	return tables, nil
}

// run is the per-request state shared by Generate and Analyze.
type run struct {
	catalog *catalog.Catalog
	keys    inference.Keys
	log     *logger.Logger
	start   time.Time
}

func (r *run) fail(err error) error {
	r.log.With().Err(err).Logger().Warn("request failed")
	return err
}

// prepare builds the catalog and resolves every primary key. This is the
// barrier before per-table work starts.
func (g *Generator) prepare(ctx context.Context, in Input, op string) (*run, error) {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	r := &run{
		log:   g.log.With().Str("request_id", id).Str("op", op).Logger(),
		start: time.Now(),
	}

	if err := ctx.Err(); err != nil {
		return nil, r.fail(cancelled(err))
	}

	doc, err := catalog.ParseSchema(in.Schema)
	if err != nil {
		return nil, r.fail(err)
	}
	c, err := catalog.Build(in.Extracts, doc)
	if err != nil {
		return nil, r.fail(err)
	}
	for _, name := range c.Unmatched() {
		r.log.With().Str("table", name).Logger().Warn("schema declares a table with no extract; ignoring")
	}
	r.log.InfoWith("request started", map[string]interface{}{
		"tables":  c.Len(),
		"workers": g.workers,
	})

	keys, err := g.engine.ResolveKeys(c)
	if err != nil {
		return nil, r.fail(err)
	}
	r.catalog = c
	r.keys = keys
	return r, nil
}

// forEachTable calls fn for every table with at most g.workers in flight.
// Table errors are joined in catalog order. Cancellation stops scheduling
// new tables and discards everything.
func (g *Generator) forEachTable(ctx context.Context, r *run, fn func(int, *catalog.SourceTable) error) error {
	tables := r.catalog.Tables()
	problems := make([]error, len(tables))

	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i, t := range tables {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			problems[i] = fn(i, t)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return cancelled(err)
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	return errors.Join(problems...)
}

func cancelled(err error) error {
	return errs.FromContext("generation cancelled", err)
}
