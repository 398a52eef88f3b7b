package fact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStore is an in-process fact table. Apply builds the next table state on a
// copy and swaps it in, so a failed apply leaves the previous state untouched.
type MemoryStore struct {
	name string

	mu         sync.RWMutex
	exists     bool
	schema     Schema
	partitions map[time.Time]map[string]Row
	index      map[string]time.Time

	// BeforeCommit runs after the new state is built and before it is published. An
	// error aborts the apply.
	BeforeCommit func(plan *Plan) error
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:       name,
		partitions: make(map[time.Time]map[string]Row),
		index:      make(map[string]time.Time),
	}
}

func (m *MemoryStore) Name() string {
	return m.name
}

func (m *MemoryStore) Describe(ctx context.Context) (Schema, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.exists {
		return nil, false, nil
	}
	return append(Schema{}, m.schema...), true, nil
}

func (m *MemoryStore) Apply(ctx context.Context, plan *Plan) (*ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if plan.CreateTable && m.exists {
		return nil, &ConsistencyError{Table: m.name, Reason: "table was created by another writer"}
	}
	if !plan.CreateTable && !m.exists {
		return nil, &DataError{Reason: "table does not exist"}
	}

	schema := append(append(Schema{}, m.schema...), plan.AddColumns...)
	if plan.CreateTable {
		schema = append(Schema{}, plan.Schema...)
	}
	if len(schema) != len(plan.Schema) {
		return nil, &DataError{Reason: "plan schema does not match the table"}
	}

	// copy-on-write: widen every stored row, then replace or insert
	partitions := make(map[time.Time]map[string]Row, len(m.partitions))
	for day, rows := range m.partitions {
		copied := make(map[string]Row, len(rows))
		for id, row := range rows {
			widened := make(Row, len(schema))
			copy(widened, row)
			copied[id] = widened
		}
		partitions[day] = copied
	}
	index := make(map[string]time.Time, len(m.index))
	for id, day := range m.index {
		index[id] = day
	}

	idIdx := schema.Index(ColumnTripID)
	dayIdx := schema.Index(ColumnDropoffDate)
	res := &ApplyResult{}
	for _, row := range plan.Rows {
		id, _ := row[idIdx].(string)
		day, _ := row[dayIdx].(time.Time)

		if prev, ok := index[id]; ok {
			delete(partitions[prev], id)
			if len(partitions[prev]) == 0 {
				delete(partitions, prev)
			}
			res.Replaced++
		} else {
			res.Inserted++
		}

		if partitions[day] == nil {
			partitions[day] = make(map[string]Row)
		}
		partitions[day][id] = append(Row{}, row...)
		index[id] = day
	}

	total := 0
	for _, rows := range partitions {
		total += len(rows)
	}
	if total != len(index) {
		return nil, &ConsistencyError{Table: m.name, Reason: "trip index and partitions disagree"}
	}

	if m.BeforeCommit != nil {
		if err := m.BeforeCommit(plan); err != nil {
			return nil, err
		}
	}

	m.exists = true
	m.schema = schema
	m.partitions = partitions
	m.index = index

	return res, nil
}

func (m *MemoryStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, ok := m.index[id]
		out[id] = ok
	}
	return out, nil
}

func (m *MemoryStore) PartitionCounts(ctx context.Context) ([]PartitionCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PartitionCount, 0, len(m.partitions))
	for day, rows := range m.partitions {
		out = append(out, PartitionCount{Date: day, Rows: int64(len(rows))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Rows returns every stored row ordered by trip id.
func (m *MemoryStore) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := lo.Keys(m.index)
	sort.Strings(ids)

	return lo.Map(ids, func(id string, _ int) Row {
		return append(Row{}, m.partitions[m.index[id]][id]...)
	})
}

// Schema returns the current table schema.
func (m *MemoryStore) Schema() Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append(Schema{}, m.schema...)
}
