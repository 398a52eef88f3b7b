package staging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/samber/lo"
)

// DefaultPathTemplate is where staged files land when the config does not say otherwise.
const DefaultPathTemplate = "data/{family}/{family}_tripdata_{year}-{month}.parquet"

// Source is one staged, column-named record stream of a single family.
type Source interface {
	Family() trip.Family
	// Name identifies the source in logs and errors, usually the file path.
	Name() string
	Columns(ctx context.Context) ([]string, error)
	// Each calls fn for every row until fn returns an error or the rows are exhausted.
	Each(ctx context.Context, fn func(trip.RawRecord) error) error
}

// MemorySource serves rows held in memory.
type MemorySource struct {
	family  trip.Family
	name    string
	columns []string
	rows    []trip.RawRecord
}

// NewMemorySource builds a source whose column list is the union of the rows' keys
// unless columns are given explicitly.
func NewMemorySource(family trip.Family, name string, rows []trip.RawRecord, columns ...string) *MemorySource {
	if len(columns) == 0 {
		set := make(map[string]struct{})
		for _, r := range rows {
			for k := range r {
				set[k] = struct{}{}
			}
		}
		columns = lo.Keys(set)
		sort.Strings(columns)
	}

	return &MemorySource{family: family, name: name, columns: columns, rows: rows}
}

func (m *MemorySource) Family() trip.Family {
	return m.family
}

func (m *MemorySource) Name() string {
	return m.name
}

func (m *MemorySource) Columns(ctx context.Context) ([]string, error) {
	return append([]string{}, m.columns...), nil
}

func (m *MemorySource) Each(ctx context.Context, fn func(trip.RawRecord) error) error {
	for _, r := range m.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Path renders a staged file path template. {family}, {year} and {month} are replaced,
// the month zero-padded to two digits.
func Path(template string, family trip.Family, year int, month time.Month) string {
	if template == "" {
		template = DefaultPathTemplate
	}

	return strings.NewReplacer(
		"{family}", string(family),
		"{year}", fmt.Sprintf("%04d", year),
		"{month}", fmt.Sprintf("%02d", int(month)),
	).Replace(template)
}
