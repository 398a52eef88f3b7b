package fact

import (
	"context"
	"time"
)

// Store is a persistent fact table.
type Store interface {
	// Name identifies the table; merges against the same name are serialized in-process.
	Name() string
	// Describe returns the current schema, or false when the table does not exist yet.
	Describe(ctx context.Context) (Schema, bool, error)
	// Apply executes a plan atomically: either every effect is committed or none.
	Apply(ctx context.Context, plan *Plan) (*ApplyResult, error)
	// Exists reports which of the given trip ids are already stored.
	Exists(ctx context.Context, ids []string) (map[string]bool, error)
	// PartitionCounts returns the number of rows per dropoff date.
	PartitionCounts(ctx context.Context) ([]PartitionCount, error)
}

// Plan is everything a store needs to apply one merge.
type Plan struct {
	Table       string
	CreateTable bool
	// Schema is the table's full column list once the plan is applied.
	Schema     Schema
	AddColumns []Column
	// Rows are laid out according to Schema.
	Rows       []Row
	Partitions []time.Time
}

func (p *Plan) TripIDs() []string {
	idx := p.Schema.Index(ColumnTripID)
	out := make([]string, len(p.Rows))
	for i, r := range p.Rows {
		out[i], _ = r[idx].(string)
	}
	return out
}

type ApplyResult struct {
	Inserted int
	Replaced int
}

type PartitionCount struct {
	Date time.Time
	Rows int64
}
