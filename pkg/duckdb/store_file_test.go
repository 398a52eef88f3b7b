package duck

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bruin-data/tripfacts/pkg/date"
	"github.com/bruin-data/tripfacts/pkg/enrich"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fileTrip(pickupLocation int64, dropoff time.Time, tip float64) trip.Record {
	return trip.Record{
		ServiceType:       trip.FamilyYellow,
		VendorID:          2,
		PickupDatetime:    dropoff.Add(-18 * time.Minute),
		DropoffDatetime:   dropoff,
		PickupLocationID:  pickupLocation,
		DropoffLocationID: 236,
		PassengerCount:    1,
		TripDistance:      2.1,
		FareAmount:        13.5,
		TipAmount:         tip,
		TotalAmount:       19.8,
		PaymentType:       1,
		TripType:          1,
	}
}

func TestFactStore_MergeIntoDatabaseFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewClient(Config{Path: filepath.Join(t.TempDir(), "trips.duckdb")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewFactStore(client, "trips.fact_trips")
	engine := fact.NewEngine(store, zap.NewNop().Sugar())
	enricher := enrich.NewEnricher(nil, enrich.DefaultPaymentTypes(), enrich.DefaultVendorNames())
	window := date.Window{Year: 2024, Months: []time.Month{time.January}}

	merge := func(records ...trip.Record) *fact.MergeResult {
		t.Helper()

		batch, err := fact.NewBatch(window, enricher.Enrich(trip.Identify(records)))
		require.NoError(t, err)
		res, err := engine.Merge(ctx, batch)
		require.NoError(t, err)
		return res
	}

	day1 := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 16, 22, 30, 0, 0, time.UTC)

	t1 := fileTrip(161, day1, 2.0)
	t2 := fileTrip(162, day2, 0.0)
	t2Updated := fileTrip(162, day2, 3.5)
	t3 := fileTrip(163, day2, 1.0)
	t3.Extras = map[string]any{"cbd_congestion_fee": 0.75}

	first := merge(t1, t2)
	assert.True(t, first.Created)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Replaced)

	second := merge(t2Updated, t3)
	assert.False(t, second.Created)
	assert.Equal(t, 1, second.Inserted)
	assert.Equal(t, 1, second.Replaced)
	assert.Equal(t, []fact.Column{{Name: "cbd_congestion_fee", Type: fact.TypeFloat}}, second.AddedColumns)

	rerun := merge(t2Updated, t3)
	assert.Equal(t, 0, rerun.Inserted)
	assert.Equal(t, 2, rerun.Replaced)
	assert.Empty(t, rerun.AddedColumns)

	ids := trip.Identify([]trip.Record{t1, t2Updated, t3})
	rows, err := client.Select(ctx, `SELECT "trip_id", "tip_amount", "cbd_congestion_fee" FROM "trips"."fact_trips"`)
	require.NoError(t, err)

	got := make(map[any][]any, len(rows))
	for _, r := range rows {
		got[r[0]] = r[1:]
	}
	assert.Equal(t, map[any][]any{
		ids[0].TripID: {2.0, nil},
		ids[1].TripID: {3.5, nil},
		ids[2].TripID: {1.0, 0.75},
	}, got)

	partitions, err := store.PartitionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fact.PartitionCount{
		{Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Rows: 1},
		{Date: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), Rows: 2},
	}, partitions)
}
