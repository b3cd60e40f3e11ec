// Package importer runs product records through footprint normalization and
// the catalog's validate-then-add protocol, one outcome per record.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/catalog-importer/internal/core/observability"
	"github.com/mohammed-shakir/catalog-importer/internal/events"
	"github.com/mohammed-shakir/catalog-importer/internal/footprint"
	"github.com/mohammed-shakir/catalog-importer/internal/ledger"
	"github.com/mohammed-shakir/catalog-importer/internal/logger"
	"github.com/mohammed-shakir/catalog-importer/internal/product"
)

var (
	// ErrBatchAborted is returned when the run stopped before every record
	// was attempted.
	ErrBatchAborted = errors.New("import run aborted")
	// ErrTransportEscalated means too many records in a row could not reach
	// the catalog. It always matches ErrBatchAborted too.
	ErrTransportEscalated = errors.New("catalog unreachable for consecutive records")

	ErrCollectionImportUnimplemented = errors.New("collection import is not implemented")
)

// Catalog is the remote product API.
type Catalog interface {
	ValidateProduct(ctx context.Context, body []byte) error
	AddProduct(ctx context.Context, body []byte) (string, error)
}

type ChangePublisher interface {
	ProductImported(ctx context.Context, im events.Imported) error
}

type Options struct {
	Logger *slog.Logger
	// Workers <= 1 imports records one after another.
	Workers int
	Policy  FailurePolicy
	// MaxConsecutiveTransportFailures of 0 disables escalation.
	MaxConsecutiveTransportFailures int
	DefaultCollection               string
	DefaultCRS                      bool
	// Ledger enables skipping products imported by an earlier run. Nil means
	// ledger.Nop.
	Ledger    ledger.Ledger
	Publisher ChangePublisher
}

type Importer struct {
	norm    footprint.Normalizer
	catalog Catalog
	log     *slog.Logger
	opts    Options
}

func New(norm footprint.Normalizer, cat Catalog, opts Options) (*Importer, error) {
	if norm == nil {
		return nil, errors.New("importer: normalizer is required")
	}
	if cat == nil {
		return nil, errors.New("importer: catalog is required")
	}
	if opts.Policy == "" {
		opts.Policy = PolicyContinue
	}
	if opts.Policy != PolicyContinue && opts.Policy != PolicyAbort {
		return nil, fmt.Errorf("importer: unknown failure policy %q", opts.Policy)
	}
	if opts.MaxConsecutiveTransportFailures < 0 {
		opts.MaxConsecutiveTransportFailures = 0
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.Nop{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Importer{norm: norm, catalog: cat, log: log, opts: opts}, nil
}

// ImportFile parses path and imports its records. A file that cannot be
// parsed is reported before any catalog request is made.
func (imp *Importer) ImportFile(ctx context.Context, path string) ([]Outcome, error) {
	recs, err := product.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return imp.ImportBatch(ctx, recs)
}

func (imp *Importer) ImportReader(ctx context.Context, r io.Reader) ([]Outcome, error) {
	recs, err := product.Decode(r)
	if err != nil {
		return nil, err
	}
	return imp.ImportBatch(ctx, recs)
}

// ImportCollection exists for parity with the catalog's collection endpoints.
func (imp *Importer) ImportCollection(context.Context, string) error {
	return ErrCollectionImportUnimplemented
}

// ImportBatch imports recs and returns one outcome per record in input order.
// Per-record failures never produce an error; a non-nil error means the run
// stopped early and the unattempted records carry StageAborted.
func (imp *Importer) ImportBatch(ctx context.Context, recs []product.Record) ([]Outcome, error) {
	if logger.RunID(ctx) == "" {
		ctx = logger.WithRunID(ctx, uuid.NewString())
	}
	ctx = logger.WithComponent(ctx, "importer")

	imp.log.InfoContext(ctx, "import started", "records", len(recs), "workers", max(imp.opts.Workers, 1))

	tr := &tracker{policy: imp.opts.Policy, maxTransport: imp.opts.MaxConsecutiveTransportFailures}
	var outcomes []Outcome
	if imp.opts.Workers <= 1 {
		outcomes = imp.sequential(ctx, recs, tr)
	} else {
		outcomes = imp.pooled(ctx, recs, tr)
	}

	err := tr.stopped()
	if err == nil && ctx.Err() != nil && hasAborted(outcomes) {
		err = fmt.Errorf("%w: %w", ErrBatchAborted, ctx.Err())
	}

	sum := Summarize(outcomes)
	args := []any{"total", sum.Total, "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped}
	if err != nil {
		imp.log.ErrorContext(ctx, "import aborted", append(args, "err", err)...)
	} else {
		imp.log.InfoContext(ctx, "import finished", args...)
	}
	return outcomes, err
}

func (imp *Importer) sequential(ctx context.Context, recs []product.Record, tr *tracker) []Outcome {
	out := make([]Outcome, len(recs))
	for i, rec := range recs {
		if stop := tr.stopCause(ctx); stop != nil {
			for j := i; j < len(recs); j++ {
				out[j] = imp.aborted(ctx, j, recs[j], stop)
			}
			break
		}
		out[i] = imp.importOne(ctx, i, rec)
		tr.record(out[i])
	}
	return out
}

func (imp *Importer) pooled(ctx context.Context, recs []product.Record, tr *tracker) []Outcome {
	jobs := make(chan int)
	results := make(chan Outcome, len(recs))

	workerN := min(imp.opts.Workers, max(len(recs), 1))
	var wg sync.WaitGroup
	wg.Add(workerN)
	for range workerN {
		go func() {
			defer wg.Done()
			for i := range jobs {
				o := imp.importOne(ctx, i, recs[i])
				tr.record(o)
				results <- o
			}
		}()
	}

	dispatched := make([]bool, len(recs))
	var stop error
dispatch:
	for i := range recs {
		if stop = tr.stopCause(ctx); stop != nil {
			break
		}
		select {
		case jobs <- i:
			dispatched[i] = true
		case <-ctx.Done():
			stop = fmt.Errorf("%w: %w", ErrBatchAborted, ctx.Err())
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]Outcome, len(recs))
	for o := range results {
		out[o.Index] = o
	}
	for i, ok := range dispatched {
		if !ok {
			if stop == nil {
				stop = tr.stopCause(ctx)
			}
			out[i] = imp.aborted(ctx, i, recs[i], stop)
		}
	}
	return out
}

func (imp *Importer) aborted(ctx context.Context, i int, rec product.Record, cause error) Outcome {
	if cause == nil {
		cause = ErrBatchAborted
	}
	o := failed(i, rec.Label(), StageAborted, fmt.Errorf("not attempted: %w", cause))
	observability.IncImportRecord(string(o.State), string(o.Stage))
	return o
}

// importOne takes a single record through normalize, validate and persist.
func (imp *Importer) importOne(ctx context.Context, i int, rec product.Record) Outcome {
	name := rec.Label()
	ctx = logger.WithRecord(ctx, recordLabel(i, name))

	o := imp.run(ctx, i, rec, name)
	observability.IncImportRecord(string(o.State), string(o.Stage))

	switch {
	case o.State == StateSucceeded:
		imp.log.InfoContext(ctx, "product imported", "id", o.ID)
	case o.State == StateSkipped:
		imp.log.InfoContext(ctx, "product skipped, already imported", "id", o.ID)
	case o.Stage == StagePersist:
		imp.log.ErrorContext(ctx, "product not imported", "stage", string(o.Stage), "err", o.Err)
	default:
		imp.log.WarnContext(ctx, "product not imported", "stage", string(o.Stage), "err", o.Err)
	}
	return o
}

func (imp *Importer) run(ctx context.Context, i int, rec product.Record, name string) Outcome {
	if err := rec.Err(); err != nil {
		return failed(i, name, StageValidate, err)
	}
	canon, err := imp.norm.Normalize(logger.WithStage(ctx, string(StageNormalize)), rec.Footprint)
	if err != nil {
		return failed(i, name, StageNormalize, err)
	}

	fp := canon
	if imp.opts.DefaultCRS {
		if fp, err = footprint.WithDefaultCRS(canon); err != nil {
			return failed(i, name, StageNormalize, err)
		}
	}
	rec = rec.WithFootprint(fp)
	if rec.CollectionName == "" {
		rec.CollectionName = imp.opts.DefaultCollection
	}

	key := ledger.Key(rec.Name, canon)
	id, seen, err := imp.opts.Ledger.Seen(ctx, key)
	if err != nil {
		imp.log.WarnContext(ctx, "ledger lookup failed, importing anyway", "err", err)
	} else if seen {
		return skipped(i, name, id)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return failed(i, name, StageValidate, fmt.Errorf("encode product: %w", err))
	}

	if err := imp.catalog.ValidateProduct(logger.WithStage(ctx, string(StageValidate)), body); err != nil {
		return failed(i, name, StageValidate, err)
	}
	id, err = imp.catalog.AddProduct(logger.WithStage(ctx, string(StagePersist)), body)
	if err != nil {
		return failed(i, name, StagePersist, err)
	}

	imp.afterImport(ctx, key, id, rec, canon)
	return succeeded(i, name, id)
}

// afterImport runs the side effects of a stored product. Their failures are
// logged and never change the record's outcome.
func (imp *Importer) afterImport(ctx context.Context, key, id string, rec product.Record, canon json.RawMessage) {
	if err := imp.opts.Ledger.Mark(ctx, key, id); err != nil {
		imp.log.WarnContext(ctx, "ledger mark failed", "err", err)
	}
	if imp.opts.Publisher == nil {
		return
	}
	g, err := footprint.Parse(canon)
	if err != nil {
		imp.log.WarnContext(ctx, "change event skipped", "err", err)
		return
	}
	err = imp.opts.Publisher.ProductImported(ctx, events.Imported{
		ID:         id,
		Name:       rec.Name,
		Collection: rec.CollectionName,
		Footprint:  g.Multi(),
		Geometry:   canon,
	})
	if err != nil {
		imp.log.WarnContext(ctx, "change event not published", "err", err)
	}
}

func recordLabel(i int, name string) string {
	if name == "" {
		return fmt.Sprintf("#%d", i)
	}
	return fmt.Sprintf("#%d %s", i, name)
}

func hasAborted(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Stage == StageAborted {
			return true
		}
	}
	return false
}
