package fact

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// TableInfo describes the current state of a fact table.
type TableInfo struct {
	Table      string
	Exists     bool
	Schema     Schema
	Partitions []PartitionCount
	Rows       int64
}

// Inspect reads the schema and the per-day row counts of the store's table concurrently.
func Inspect(ctx context.Context, store Store) (*TableInfo, error) {
	info := &TableInfo{Table: store.Name()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		schema, exists, err := store.Describe(ctx)
		if err != nil {
			return err
		}
		info.Schema = schema
		info.Exists = exists
		return nil
	})
	g.Go(func() error {
		partitions, err := store.PartitionCounts(ctx)
		if err != nil {
			return err
		}
		info.Partitions = partitions
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "failed to inspect '%s'", store.Name())
	}

	for _, p := range info.Partitions {
		info.Rows += p.Rows
	}

	return info, nil
}
