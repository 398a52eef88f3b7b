package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bruin-data/tripfacts/pkg/config"
	"github.com/bruin-data/tripfacts/pkg/date"
	"github.com/bruin-data/tripfacts/pkg/enrich"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/loader"
	"github.com/bruin-data/tripfacts/pkg/staging"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func yellowRow(pickup int64, dropoff time.Time) trip.RawRecord {
	return trip.RawRecord{
		"VendorID":              int64(2),
		"tpep_pickup_datetime":  dropoff.Add(-15 * time.Minute),
		"tpep_dropoff_datetime": dropoff,
		"passenger_count":       float64(1),
		"trip_distance":         1.9,
		"RatecodeID":            float64(1),
		"store_and_fwd_flag":    "N",
		"PULocationID":          pickup,
		"DOLocationID":          int64(75),
		"payment_type":          int64(1),
		"fare_amount":           11.4,
		"extra":                 1.0,
		"mta_tax":               0.5,
		"tip_amount":            2.0,
		"tolls_amount":          0.0,
		"improvement_surcharge": 1.0,
		"total_amount":          18.4,
		"congestion_surcharge":  2.5,
		"Airport_fee":           0.0,
	}
}

func greenRow(pickup int64, dropoff time.Time) trip.RawRecord {
	return trip.RawRecord{
		"VendorID":              int64(1),
		"lpep_pickup_datetime":  dropoff.Add(-10 * time.Minute).Format("2006-01-02 15:04:05"),
		"lpep_dropoff_datetime": dropoff.Format("2006-01-02 15:04:05"),
		"store_and_fwd_flag":    "N",
		"RatecodeID":            int64(1),
		"PULocationID":          pickup,
		"DOLocationID":          int64(74),
		"passenger_count":       int64(1),
		"trip_distance":         0.8,
		"fare_amount":           6.5,
		"extra":                 0.0,
		"mta_tax":               0.5,
		"tip_amount":            0.0,
		"tolls_amount":          0.0,
		"ehail_fee":             nil,
		"improvement_surcharge": 1.0,
		"total_amount":          8.0,
		"payment_type":          int64(2),
		"trip_type":             int64(1),
		"congestion_surcharge":  0.0,
	}
}

func newTestMerge(t *testing.T, files map[string][]trip.RawRecord, dryRun bool) (*MergeCommand, *loader.Loader, *fact.MemoryStore, *bytes.Buffer) {
	t.Helper()

	env := &config.Environment{
		FactTable: config.FactTable{Type: config.StoreMemory},
		Staging:   config.Staging{PathTemplate: "staged/{family}_tripdata_{year}-{month}.parquet"},
	}

	reconciler, err := trip.NewReconciler(env.FamilySpecs()...)
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	store := fact.NewMemoryStore(env.FactTable.TableName())
	enricher := enrich.NewEnricher(enrich.Zones{}, enrich.DefaultPaymentTypes(), enrich.DefaultVendorNames())
	ld := loader.New(reconciler, enricher, fact.NewEngine(store, log), log, loader.WithWorkers(2))

	out := &bytes.Buffer{}
	m := &MergeCommand{
		env:      env,
		families: trip.Families(),
		dryRun:   dryRun,
		logger:   log,
		open: func(family trip.Family, path string) staging.Source {
			return staging.NewMemorySource(family, path, files[path])
		},
		exists: func(path string) bool {
			_, ok := files[path]
			return ok
		},
		out: out,
	}

	return m, ld, store, out
}

func TestMergeCommand_Run(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 18, 30, 0, 0, time.UTC)
	m, ld, store, out := newTestMerge(t, map[string][]trip.RawRecord{
		"staged/yellow_tripdata_2024-01.parquet": {yellowRow(161, jan), yellowRow(162, jan)},
		"staged/green_tripdata_2024-02.parquet":  {greenRow(74, feb)},
	}, false)

	windows := date.ChunkMonths(2024, []time.Month{time.January, time.February, time.March, time.April}, 3)
	results, err := m.Run(context.Background(), ld, windows)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "2024-{01,02,03}", res.Window.String())
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 3, res.Observed)
	assert.Equal(t, 3, res.Inserted)
	assert.Len(t, store.Rows(), 3)

	assert.Contains(t, out.String(), "Skipping green 2024-01, 'staged/green_tripdata_2024-01.parquet' does not exist.")
	assert.Contains(t, out.String(), "No staged files found for 2024-04, skipping.")

	again, err := m.Run(context.Background(), ld, windows)
	require.NoError(t, err)
	assert.Equal(t, 0, again[0].Inserted)
	assert.Equal(t, 3, again[0].Replaced)
	assert.Len(t, store.Rows(), 3)
}

func TestMergeCommand_Run_DryRun(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	m, ld, store, _ := newTestMerge(t, map[string][]trip.RawRecord{
		"staged/yellow_tripdata_2024-01.parquet": {yellowRow(161, jan)},
	}, true)

	results, err := m.Run(context.Background(), ld, date.ChunkMonths(2024, []time.Month{time.January}, 3))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Inserted)
	assert.Empty(t, store.Rows())
}

func TestMergeCommand_Run_NothingStaged(t *testing.T) {
	t.Parallel()

	m, ld, _, _ := newTestMerge(t, map[string][]trip.RawRecord{}, false)

	_, err := m.Run(context.Background(), ld, date.ChunkMonths(2024, []time.Month{time.January, time.February}, 1))
	require.ErrorIs(t, err, loader.ErrNoSources)
	assert.Contains(t, err.Error(), "no staged files found for 2 window(s)")
}

func TestMergeCommand_Run_StopsAtFailingWindow(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	broken := yellowRow(161, time.Date(2024, 2, 3, 9, 0, 0, 0, time.UTC))
	broken["VendorID"] = "two"

	m, ld, store, _ := newTestMerge(t, map[string][]trip.RawRecord{
		"staged/yellow_tripdata_2024-01.parquet": {yellowRow(161, jan)},
		"staged/yellow_tripdata_2024-02.parquet": {broken},
	}, false)

	results, err := m.Run(context.Background(), ld, date.ChunkMonths(2024, []time.Month{time.January, time.February}, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window 2024-02")

	var dataErr *trip.DataError
	require.ErrorAs(t, err, &dataErr)

	require.Len(t, results, 1)
	assert.Len(t, store.Rows(), 1)
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	results := []*loader.Result{
		{
			MergeResult: &fact.MergeResult{
				Table:        "trips.fact_trips",
				Window:       date.Window{Year: 2024, Months: []time.Month{time.January}},
				Rows:         10,
				Inserted:     7,
				Replaced:     3,
				AddedColumns: []fact.Column{{Name: "cbd_congestion_fee", Type: fact.TypeFloat}},
				Partitions:   []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			},
			RunID:    "run-1",
			Sources:  2,
			Observed: 12,
		},
	}

	out := &bytes.Buffer{}
	renderSummary(out, results, true)
	assert.Contains(t, out.String(), "Dry run, nothing was written")
	assert.Contains(t, out.String(), "2024-01")
	assert.Contains(t, out.String(), "cbd_congestion_fee")
	assert.Contains(t, out.String(), "TOTAL")

	js := &bytes.Buffer{}
	require.NoError(t, printSummaryJSON(js, results))
	assert.JSONEq(t, `[{
		"run_id": "run-1",
		"window": "2024-01",
		"table": "trips.fact_trips",
		"sources": 2,
		"observed": 12,
		"trips": 10,
		"inserted": 7,
		"replaced": 3,
		"created": false,
		"added_columns": ["cbd_congestion_fee"],
		"partitions": ["2024-01-01"]
	}]`, js.String())
}
