package fact

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatch(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 1, 3, 23, 50, 0, 0, time.UTC)
	a := newTrip(161, day, 1)
	a.Extras = map[string]any{"Surcharge_B": int32(2), "note": nil}
	b := newTrip(170, day.Add(20*time.Minute), 1)
	b.Extras = map[string]any{"surcharge_b": 2.5, "note": []byte("late")}

	batch, err := NewBatch(window, enriched(a, b))
	require.NoError(t, err)

	assert.Equal(t, BaseSchema, batch.Schema[:len(BaseSchema)])
	assert.Equal(t, Schema{
		{Name: "note", Type: TypeString},
		{Name: "surcharge_b", Type: TypeFloat},
	}, batch.Schema[len(BaseSchema):])

	require.Len(t, batch.Rows, 2)
	assert.Equal(t, []string{a.TripID, b.TripID}, batch.TripIDs())
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}, batch.Partitions())

	row := batch.Rows[0]
	assert.Equal(t, "Midtown Center", row[batch.Schema.Index("pickup_zone")])
	assert.Nil(t, row[batch.Schema.Index("dropoff_zone")])
	assert.Equal(t, "Credit card", row[batch.Schema.Index("payment_type_description")])
	assert.Equal(t, "Creative Mobile Technologies, LLC", row[batch.Schema.Index("vendor_name")])
	assert.Equal(t, 2.0, row[batch.Schema.Index("surcharge_b")])
	assert.Nil(t, row[batch.Schema.Index("note")])
	assert.Equal(t, "late", batch.Rows[1][batch.Schema.Index("note")])

	require.NoError(t, batch.check())
}

func TestNewBatch_AllNullExtraIsUntyped(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)
	a := newTrip(161, day, 1)
	a.Extras = map[string]any{"rate_code_extra": nil}
	b := newTrip(170, day, 1)

	batch, err := NewBatch(window, enriched(a, b))
	require.NoError(t, err)

	assert.Equal(t, Schema{{Name: "rate_code_extra", Type: TypeNull}}, batch.Schema[len(BaseSchema):])
	assert.Equal(t, BaseSchema, batch.Schema.Typed())
	require.NoError(t, batch.check())
}

func TestNewBatch_RejectsInconsistentExtras(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		extras []map[string]any
		column string
	}{
		{
			name:   "mixed string and number",
			extras: []map[string]any{{"code": "A"}, {"code": 1.5}},
			column: "code",
		},
		{
			name:   "unsupported type",
			extras: []map[string]any{{"tags": []string{"a"}}},
			column: "tags",
		},
		{
			name:   "shadows a base column",
			extras: []map[string]any{{"Fare_Amount": 1.0}},
			column: "Fare_Amount",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			records := enriched()
			for i, extras := range tt.extras {
				r := newTrip(int64(100+i), day, 1)
				r.Extras = extras
				records = append(records, enriched(r)...)
			}

			_, err := NewBatch(window, records)
			var dataErr *DataError
			require.True(t, errors.As(err, &dataErr))
			assert.Equal(t, tt.column, dataErr.Column)
		})
	}
}

func TestSchema_Diff(t *testing.T) {
	t.Parallel()

	existing := Schema{{Name: "trip_id", Type: TypeString}, {Name: "fee", Type: TypeFloat}}

	added, err := Schema{
		{Name: "TRIP_ID", Type: TypeString},
		{Name: "fee", Type: TypeInteger},
		{Name: "zone", Type: TypeString},
	}.Diff(existing)
	require.NoError(t, err)
	assert.Equal(t, []Column{{Name: "zone", Type: TypeString}}, added)

	_, err = Schema{{Name: "fee", Type: TypeString}}.Diff(existing)
	require.Error(t, err)

	added, err = Schema{{Name: "fee", Type: TypeNull}, {Name: "rate", Type: TypeNull}}.Diff(existing)
	require.NoError(t, err)
	assert.Empty(t, added)

	added, err = existing.Diff(nil)
	require.NoError(t, err)
	assert.Equal(t, []Column(existing), added)
}
