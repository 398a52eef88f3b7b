package loader

import (
	"context"
	"runtime"

	"github.com/bruin-data/tripfacts/pkg/date"
	"github.com/bruin-data/tripfacts/pkg/enrich"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/logger"
	"github.com/bruin-data/tripfacts/pkg/staging"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

var ErrNoSources = errors.New("no staged data to load")

// Loader runs the whole pipeline for one window: reconcile, identify and deduplicate
// every staged source in parallel, deduplicate across sources, enrich, then merge.
type Loader struct {
	reconciler *trip.Reconciler
	enricher   *enrich.Enricher
	engine     *fact.Engine
	logger     logger.Logger
	workers    int
}

type Option func(*Loader)

func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

func New(reconciler *trip.Reconciler, enricher *enrich.Enricher, engine *fact.Engine, logger logger.Logger, opts ...Option) *Loader {
	l := &Loader{
		reconciler: reconciler,
		enricher:   enricher,
		engine:     engine,
		logger:     logger,
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Prepared is the enriched, deduplicated content of one window.
type Prepared struct {
	RunID    string
	Window   date.Window
	Sources  int
	Observed int
	Records  []enrich.Record
}

type shard struct {
	source   string
	observed int
	records  []trip.Record
}

// Prepare runs every pure stage. Column checks for all sources happen before any row
// is read, so a misconfigured family fails the run without touching data.
func (l *Loader) Prepare(ctx context.Context, window date.Window, sources []staging.Source) (*Prepared, error) {
	if len(sources) == 0 {
		return nil, errors.Wrapf(ErrNoSources, "window %s", window)
	}

	for _, src := range sources {
		cols, err := src.Columns(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read the columns of '%s'", src.Name())
		}
		if err := l.reconciler.CheckColumns(src.Family(), cols); err != nil {
			return nil, errors.Wrapf(err, "staged source '%s'", src.Name())
		}
	}

	runID := uuid.New().String()
	l.logger.Debugw("preparing window", "run_id", runID, "window", window.String(), "sources", len(sources))

	p := pool.NewWithResults[shard]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(l.workers)
	for _, src := range sources {
		p.Go(func(ctx context.Context) (shard, error) {
			return l.prepareSource(ctx, src)
		})
	}

	shards, err := p.Wait()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to prepare window %s", window)
	}

	observed := 0
	dedup := trip.NewDeduplicator()
	for _, s := range shards {
		observed += s.observed
		dedup.Add(s.records...)
	}

	records := dedup.Records()
	l.logger.Debugf("window %s: %d observations reduced to %d trips", window, observed, len(records))

	return &Prepared{
		RunID:    runID,
		Window:   window,
		Sources:  len(sources),
		Observed: observed,
		Records:  l.enricher.Enrich(records),
	}, nil
}

func (l *Loader) prepareSource(ctx context.Context, src staging.Source) (shard, error) {
	family := src.Family()
	dedup := trip.NewDeduplicator()

	row := 0
	err := src.Each(ctx, func(raw trip.RawRecord) error {
		rec, err := l.reconciler.Reconcile(family, row, raw)
		if err != nil {
			return err
		}
		row++

		rec.TripID = trip.ComputeID(rec)
		dedup.Add(rec)
		return nil
	})
	if err != nil {
		return shard{}, errors.Wrapf(err, "failed to process '%s'", src.Name())
	}

	l.logger.Debugf("%s: %d rows, %d distinct trips", src.Name(), row, dedup.Len())

	return shard{source: src.Name(), observed: row, records: dedup.Records()}, nil
}

// Result is the outcome of one window.
type Result struct {
	*fact.MergeResult

	RunID    string
	Sources  int
	Observed int
}

// Run prepares the window and merges it into the fact table.
func (l *Loader) Run(ctx context.Context, window date.Window, sources []staging.Source) (*Result, error) {
	return l.run(ctx, window, sources, l.engine.Merge)
}

// Preview prepares the window and reports what a merge would change without writing.
func (l *Loader) Preview(ctx context.Context, window date.Window, sources []staging.Source) (*Result, error) {
	return l.run(ctx, window, sources, l.engine.Preview)
}

func (l *Loader) run(ctx context.Context, window date.Window, sources []staging.Source, apply func(context.Context, *fact.Batch) (*fact.MergeResult, error)) (*Result, error) {
	prepared, err := l.Prepare(ctx, window, sources)
	if err != nil {
		return nil, err
	}

	batch, err := fact.NewBatch(window, prepared.Records)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build the batch for window %s", window)
	}

	res, err := apply(ctx, batch)
	if err != nil {
		return nil, err
	}

	l.logger.Infow("window processed",
		"run_id", prepared.RunID,
		"window", window.String(),
		"table", res.Table,
		"rows", res.Rows,
		"inserted", res.Inserted,
		"replaced", res.Replaced,
	)

	return &Result{
		MergeResult: res,
		RunID:       prepared.RunID,
		Sources:     prepared.Sources,
		Observed:    prepared.Observed,
	}, nil
}
