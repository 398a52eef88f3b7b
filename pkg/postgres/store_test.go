package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	day1 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
)

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func newMockStore(t *testing.T, table string) (*FactStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewFactStore(&Client{connection: mock}, table), mock
}

func testPlan() *fact.Plan {
	return &fact.Plan{
		Table: "trips.fact_trips",
		Schema: fact.Schema{
			{Name: "trip_id", Type: fact.TypeString},
			{Name: "dropoff_date", Type: fact.TypeDate},
			{Name: "fare_amount", Type: fact.TypeFloat},
			{Name: "note", Type: fact.TypeString},
		},
		AddColumns: []fact.Column{{Name: "note", Type: fact.TypeString}},
		Rows: []fact.Row{
			{"aaaa", day1, 11.5, "first"},
			{"bbbb", day2, 7.0, nil},
		},
		Partitions: []time.Time{day1, day2},
	}
}

func TestPartitionName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "trips.fact_trips_p20240115", PartitionName("trips.fact_trips", day1))
	assert.Equal(t, "public.fact_trips_p20240116", PartitionName("fact_trips", day2))
}

func expectMerge(mock pgxmock.PgxPoolIface) {
	ids := []string{"aaaa", "bbbb"}

	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("trips.fact_trips").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(q("ALTER TABLE \"trips\".\"fact_trips\"\n  ADD COLUMN IF NOT EXISTS \"note\" TEXT")).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(q(`CREATE TABLE IF NOT EXISTS "trips"."fact_trips_p20240115" PARTITION OF "trips"."fact_trips" FOR VALUES FROM ('2024-01-15') TO ('2024-01-16')`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q(`CREATE TABLE IF NOT EXISTS "trips"."fact_trips_p20240116" PARTITION OF "trips"."fact_trips" FOR VALUES FROM ('2024-01-16') TO ('2024-01-17')`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "trips"."fact_trips" WHERE "trip_id" = ANY($1)`)).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectExec(q(`INSERT INTO "trips"."fact_trips" ("trip_id", "dropoff_date", "fare_amount", "note") VALUES ($1, $2, $3, $4), ($5, $6, $7, $8) ON CONFLICT ("trip_id", "dropoff_date") DO UPDATE SET "fare_amount" = EXCLUDED."fare_amount", "note" = EXCLUDED."note"`)).
		WithArgs("aaaa", day1, 11.5, "first", "bbbb", day2, 7.0, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
}

func TestFactStore_Apply(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "trips.fact_trips")
	expectMerge(mock)
	mock.ExpectQuery(q(`GROUP BY "trip_id" HAVING COUNT(*) > 1`)).
		WithArgs([]string{"aaaa", "bbbb"}).
		WillReturnRows(pgxmock.NewRows([]string{"trip_id"}))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, &fact.ApplyResult{Inserted: 1, Replaced: 1}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactStore_Apply_DuplicateRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "trips.fact_trips")
	expectMerge(mock)
	mock.ExpectQuery(q(`GROUP BY "trip_id" HAVING COUNT(*) > 1`)).
		WithArgs([]string{"aaaa", "bbbb"}).
		WillReturnRows(pgxmock.NewRows([]string{"trip_id"}).AddRow("bbbb"))
	mock.ExpectRollback()

	_, err := store.Apply(context.Background(), testPlan())

	var consistency *fact.ConsistencyError
	require.True(t, errors.As(err, &consistency))
	assert.Equal(t, []string{"bbbb"}, consistency.TripIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactStore_Apply_CreatesPartitionedTable(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "trips.fact_trips")
	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("trips.fact_trips").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(q(`CREATE SCHEMA IF NOT EXISTS "trips"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS \"trips\".\"fact_trips\" (\n  \"trip_id\" TEXT,\n  \"dropoff_date\" DATE\n) PARTITION BY RANGE (\"dropoff_date\")")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q(`CREATE UNIQUE INDEX IF NOT EXISTS "fact_trips_trip_key" ON "trips"."fact_trips" ("trip_id", "dropoff_date")`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	plan := &fact.Plan{
		Table:       "trips.fact_trips",
		CreateTable: true,
		Schema: fact.Schema{
			{Name: "trip_id", Type: fact.TypeString},
			{Name: "dropoff_date", Type: fact.TypeDate},
		},
	}

	res, err := store.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, &fact.ApplyResult{}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactStore_Apply_LockFailureRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "trips.fact_trips")
	mock.ExpectBegin()
	mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("trips.fact_trips").
		WillReturnError(errors.New("canceling statement due to lock timeout"))
	mock.ExpectRollback()

	_, err := store.Apply(context.Background(), testPlan())
	require.EqualError(t, err, "failed to lock 'trips.fact_trips': canceling statement due to lock timeout")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactStore_Describe(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "fact_trips")
	mock.ExpectQuery(q("FROM information_schema.columns")).
		WithArgs("public", "fact_trips").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("trip_id", "text").
			AddRow("pickup_datetime", "timestamp without time zone").
			AddRow("fare_amount", "double precision").
			AddRow("dropoff_date", "date"))

	got, exists, err := store.Describe(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, fact.Schema{
		{Name: "trip_id", Type: fact.TypeString},
		{Name: "pickup_datetime", Type: fact.TypeTimestamp},
		{Name: "fare_amount", Type: fact.TypeFloat},
		{Name: "dropoff_date", Type: fact.TypeDate},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactStore_Exists_MissingTable(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "trips.fact_trips")
	mock.ExpectQuery(q("FROM information_schema.columns")).
		WithArgs("trips", "fact_trips").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type"}))

	got, err := store.Exists(context.Background(), []string{"aaaa"})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactStore_PartitionCounts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, "trips.fact_trips")
	mock.ExpectQuery(q("FROM information_schema.columns")).
		WithArgs("trips", "fact_trips").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "data_type"}).AddRow("dropoff_date", "date"))
	mock.ExpectQuery(q(`SELECT "dropoff_date", COUNT(*) FROM "trips"."fact_trips" GROUP BY "dropoff_date" ORDER BY "dropoff_date"`)).
		WillReturnRows(pgxmock.NewRows([]string{"dropoff_date", "count"}).
			AddRow(day1, int64(4)).
			AddRow(day2, int64(9)))

	got, err := store.PartitionCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []fact.PartitionCount{{Date: day1, Rows: 4}, {Date: day2, Rows: 9}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
