package fact

import (
	"context"
	"sort"
	"time"

	"github.com/bruin-data/tripfacts/pkg/date"
	"github.com/bruin-data/tripfacts/pkg/logger"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// MergeResult summarizes the net effect of one merged batch.
type MergeResult struct {
	Table        string
	Window       date.Window
	Rows         int
	Inserted     int
	Replaced     int
	Created      bool
	AddedColumns []Column
	Partitions   []time.Time
}

// Engine upserts batches into a single fact table.
type Engine struct {
	store  Store
	logger logger.Logger
}

func NewEngine(store Store, logger logger.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Merge inserts the batch's new trips, replaces the ones already stored, and adds any
// columns the table does not have yet. Merging the same batch again is a no-op on the
// table's content. Nothing is committed when an error is returned.
func (e *Engine) Merge(ctx context.Context, batch *Batch) (*MergeResult, error) {
	if err := e.validate(batch); err != nil {
		return nil, errors.Wrapf(err, "failed to merge window %s", batch.Window)
	}

	table := e.store.Name()
	LockTable(table)
	defer UnlockTable(table)

	plan, err := e.plan(ctx, batch)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to plan merge of window %s into '%s'", batch.Window, table)
	}

	e.logger.Debugw("applying merge plan",
		"table", table,
		"window", batch.Window.String(),
		"rows", len(plan.Rows),
		"create", plan.CreateTable,
		"added_columns", len(plan.AddColumns),
		"partitions", len(plan.Partitions),
	)

	// once started, a merge runs to commit or rollback even if the caller gives up
	res, err := e.store.Apply(context.WithoutCancel(ctx), plan)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to merge window %s into '%s'", batch.Window, table)
	}

	if res.Inserted+res.Replaced != len(plan.Rows) {
		return nil, errors.Wrapf(&ConsistencyError{
			Table:  table,
			Reason: "store reported a different number of affected rows than the batch holds",
		}, "merge of window %s", batch.Window)
	}

	e.logger.Debugf("merged %d rows into '%s': %d inserted, %d replaced", len(plan.Rows), table, res.Inserted, res.Replaced)

	return &MergeResult{
		Table:        table,
		Window:       batch.Window,
		Rows:         len(plan.Rows),
		Inserted:     res.Inserted,
		Replaced:     res.Replaced,
		Created:      plan.CreateTable,
		AddedColumns: plan.AddColumns,
		Partitions:   plan.Partitions,
	}, nil
}

// Preview plans the batch against the current table and reports what Merge would do,
// without writing anything.
func (e *Engine) Preview(ctx context.Context, batch *Batch) (*MergeResult, error) {
	if err := e.validate(batch); err != nil {
		return nil, errors.Wrapf(err, "failed to preview window %s", batch.Window)
	}

	plan, err := e.plan(ctx, batch)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to plan merge of window %s", batch.Window)
	}

	replaced := 0
	if !plan.CreateTable && len(plan.Rows) > 0 {
		existing, err := e.store.Exists(ctx, plan.TripIDs())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to look up existing trips for window %s", batch.Window)
		}
		replaced = lo.CountBy(plan.TripIDs(), func(id string) bool { return existing[id] })
	}

	return &MergeResult{
		Table:        e.store.Name(),
		Window:       batch.Window,
		Rows:         len(plan.Rows),
		Inserted:     len(plan.Rows) - replaced,
		Replaced:     replaced,
		Created:      plan.CreateTable,
		AddedColumns: plan.AddColumns,
		Partitions:   plan.Partitions,
	}, nil
}

func (e *Engine) validate(batch *Batch) error {
	if batch == nil {
		return &DataError{Reason: "batch is nil"}
	}
	if err := batch.check(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(batch.Rows))
	var dupes []string
	for _, id := range batch.TripIDs() {
		if _, ok := seen[id]; ok {
			dupes = append(dupes, id)
			continue
		}
		seen[id] = struct{}{}
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		return &ConsistencyError{
			Table:   e.store.Name(),
			TripIDs: lo.Uniq(dupes),
			Reason:  "batch contains the same trip more than once",
		}
	}

	return nil
}

func (e *Engine) plan(ctx context.Context, batch *Batch) (*Plan, error) {
	existing, exists, err := e.store.Describe(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to describe the fact table")
	}

	plan := &Plan{
		Table:       e.store.Name(),
		CreateTable: !exists,
		Partitions:  batch.Partitions(),
	}

	if !exists {
		plan.Schema = batch.Schema.Typed()
	} else {
		for _, required := range []string{ColumnTripID, ColumnDropoffDate} {
			if existing.Index(required) < 0 {
				return nil, &DataError{Column: required, Reason: "existing fact table has no such column"}
			}
		}

		added, err := batch.Schema.Diff(existing)
		if err != nil {
			return nil, err
		}
		plan.AddColumns = added
		plan.Schema = append(append(Schema{}, existing...), added...)
	}

	positions := make([]int, len(batch.Schema))
	for j, c := range batch.Schema {
		positions[j] = plan.Schema.Index(c.Name)
	}

	plan.Rows = make([]Row, len(batch.Rows))
	for i, row := range batch.Rows {
		out := make(Row, len(plan.Schema))
		for j, v := range row {
			// untyped columns the table lacks only hold nulls
			if k := positions[j]; k >= 0 {
				out[k] = coerce(plan.Schema[k].Type, v)
			}
		}
		plan.Rows[i] = out
	}

	return plan, nil
}
