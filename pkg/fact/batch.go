package fact

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/date"
	"github.com/bruin-data/tripfacts/pkg/enrich"
	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

const (
	ColumnTripID      = "trip_id"
	ColumnDropoffDate = "dropoff_date"
)

// BaseSchema is the column layout every fact table starts with.
var BaseSchema = Schema{
	{Name: ColumnTripID, Type: TypeString},
	{Name: "service_type", Type: TypeString},
	{Name: "vendor_id", Type: TypeInteger},
	{Name: "vendor_name", Type: TypeString},
	{Name: "pickup_datetime", Type: TypeTimestamp},
	{Name: "dropoff_datetime", Type: TypeTimestamp},
	{Name: ColumnDropoffDate, Type: TypeDate},
	{Name: "store_and_fwd_flag", Type: TypeString},
	{Name: "ratecode_id", Type: TypeInteger},
	{Name: "pickup_location_id", Type: TypeInteger},
	{Name: "pickup_borough", Type: TypeString},
	{Name: "pickup_zone", Type: TypeString},
	{Name: "pickup_service_zone", Type: TypeString},
	{Name: "dropoff_location_id", Type: TypeInteger},
	{Name: "dropoff_borough", Type: TypeString},
	{Name: "dropoff_zone", Type: TypeString},
	{Name: "dropoff_service_zone", Type: TypeString},
	{Name: "passenger_count", Type: TypeInteger},
	{Name: "trip_distance", Type: TypeFloat},
	{Name: "fare_amount", Type: TypeFloat},
	{Name: "extra", Type: TypeFloat},
	{Name: "mta_tax", Type: TypeFloat},
	{Name: "tip_amount", Type: TypeFloat},
	{Name: "tolls_amount", Type: TypeFloat},
	{Name: "ehail_fee", Type: TypeFloat},
	{Name: "improvement_surcharge", Type: TypeFloat},
	{Name: "total_amount", Type: TypeFloat},
	{Name: "payment_type", Type: TypeInteger},
	{Name: "payment_type_description", Type: TypeString},
	{Name: "trip_type", Type: TypeInteger},
	{Name: "congestion_surcharge", Type: TypeFloat},
	{Name: "airport_fee", Type: TypeFloat},
}

// Row holds one value per column of the schema it was built for.
type Row []any

// Batch is the unit of one merge: the rows of one window, typed and in column order.
type Batch struct {
	Window date.Window
	Schema Schema
	Rows   []Row
}

// NewBatch lays out enriched records as rows. Passthrough columns are appended after the
// base columns in name order; their type is taken from the first non-null value, or
// TypeNull when the batch has none.
func NewBatch(window date.Window, records []enrich.Record) (*Batch, error) {
	extras, err := extraColumns(records)
	if err != nil {
		return nil, err
	}

	schema := append(append(Schema{}, BaseSchema...), extras...)
	rows := make([]Row, 0, len(records))
	for i, r := range records {
		row := baseRow(r)
		for _, c := range extras {
			v, err := normalize(lookupExtra(r.Extras, c.Name))
			if err != nil {
				return nil, &DataError{Row: i + 1, TripID: r.TripID, Column: c.Name, Reason: err.Error()}
			}
			if !conforms(c.Type, v) {
				return nil, &DataError{Row: i + 1, TripID: r.TripID, Column: c.Name, Value: v, Reason: "value does not match column type " + string(c.Type)}
			}
			row = append(row, coerce(c.Type, v))
		}
		rows = append(rows, row)
	}

	return &Batch{Window: window, Schema: schema, Rows: rows}, nil
}

func baseRow(r enrich.Record) Row {
	var puBorough, puZone, puService, doBorough, doZone, doService any
	if r.PickupZone != nil {
		puBorough, puZone, puService = r.PickupZone.Borough, r.PickupZone.Zone, r.PickupZone.ServiceZone
	}
	if r.DropoffZone != nil {
		doBorough, doZone, doService = r.DropoffZone.Borough, r.DropoffZone.Zone, r.DropoffZone.ServiceZone
	}
	var payment any
	if r.PaymentTypeDescription != nil {
		payment = *r.PaymentTypeDescription
	}

	return Row{
		r.TripID,
		string(r.ServiceType),
		r.VendorID,
		r.VendorName,
		r.PickupDatetime,
		r.DropoffDatetime,
		r.DropoffDate(),
		r.StoreAndFwdFlag,
		r.RatecodeID,
		r.PickupLocationID,
		puBorough,
		puZone,
		puService,
		r.DropoffLocationID,
		doBorough,
		doZone,
		doService,
		r.PassengerCount,
		r.TripDistance,
		r.FareAmount,
		r.Extra,
		r.MtaTax,
		r.TipAmount,
		r.TollsAmount,
		r.EhailFee,
		r.ImprovementSurcharge,
		r.TotalAmount,
		r.PaymentType,
		payment,
		r.TripType,
		r.CongestionSurcharge,
		r.AirportFee,
	}
}

func extraColumns(records []enrich.Record) (Schema, error) {
	types := make(map[string]ColumnType)
	for i, r := range records {
		for name, raw := range r.Extras {
			col := strings.ToLower(name)
			if BaseSchema.Index(col) >= 0 {
				return nil, &DataError{Row: i + 1, TripID: r.TripID, Column: name, Reason: "passthrough column shadows a fact table column"}
			}

			v, err := normalize(raw)
			if err != nil {
				return nil, &DataError{Row: i + 1, TripID: r.TripID, Column: name, Reason: err.Error()}
			}

			t, seen := types[col]
			if v == nil {
				if !seen {
					types[col] = TypeNull
				}
				continue
			}

			vt, _ := TypeOf(v)
			switch {
			case t == "", t == TypeNull:
				types[col] = vt
			case t == vt:
			case t == TypeInteger && vt == TypeFloat, t == TypeFloat && vt == TypeInteger:
				types[col] = TypeFloat
			default:
				return nil, &DataError{Row: i + 1, TripID: r.TripID, Column: name, Value: v, Reason: fmt.Sprintf("mixed types %s and %s", t, vt)}
			}
		}
	}

	names := lo.Keys(types)
	sort.Strings(names)

	return lo.Map(names, func(name string, _ int) Column {
		return Column{Name: name, Type: types[name]}
	}), nil
}

func lookupExtra(extras map[string]any, col string) any {
	if v, ok := extras[col]; ok {
		return v
	}
	for k, v := range extras {
		if strings.EqualFold(k, col) {
			return v
		}
	}
	return nil
}

// normalize maps decoded values onto the small set of Go types rows carry.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, int64, float64, bool:
		return v, nil
	case int, int8, int16, int32, uint8, uint16, uint32:
		return cast.ToInt64E(t)
	case uint, uint64:
		i, err := cast.ToInt64E(t)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("integer %v is out of range", t)
		}
		return i, nil
	case float32:
		return cast.ToFloat64E(t)
	case []byte:
		return string(t), nil
	case time.Time:
		return t.UTC().Truncate(time.Microsecond), nil
	}

	return nil, fmt.Errorf("unsupported value type %T", v)
}

// TripIDs returns the trip ids of the batch in row order.
func (b *Batch) TripIDs() []string {
	idx := b.Schema.Index(ColumnTripID)
	return lo.Map(b.Rows, func(r Row, _ int) string {
		id, _ := r[idx].(string)
		return id
	})
}

// Partitions returns the distinct dropoff dates of the batch, ascending.
func (b *Batch) Partitions() []time.Time {
	return partitionsOf(b.Schema, b.Rows)
}

func partitionsOf(schema Schema, rows []Row) []time.Time {
	idx := schema.Index(ColumnDropoffDate)
	if idx < 0 {
		return nil
	}

	seen := make(map[time.Time]struct{})
	for _, r := range rows {
		if d, ok := r[idx].(time.Time); ok {
			seen[d] = struct{}{}
		}
	}

	out := lo.Keys(seen)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// check verifies every row against the schema.
func (b *Batch) check() error {
	if b.Schema.Index(ColumnTripID) != 0 {
		return &DataError{Column: ColumnTripID, Reason: "batch schema must start with trip_id"}
	}
	if b.Schema.Index(ColumnDropoffDate) < 0 {
		return &DataError{Column: ColumnDropoffDate, Reason: "batch schema has no partition column"}
	}

	for i, row := range b.Rows {
		if len(row) != len(b.Schema) {
			return &DataError{Row: i + 1, Reason: fmt.Sprintf("row has %d values, schema has %d columns", len(row), len(b.Schema))}
		}

		id, ok := row[0].(string)
		if !ok || len(id) != trip.IDLength {
			return &DataError{Row: i + 1, Column: ColumnTripID, Value: row[0], Reason: "trip id must be a 32 character digest"}
		}

		for j, c := range b.Schema {
			if !conforms(c.Type, row[j]) {
				return &DataError{Row: i + 1, TripID: id, Column: c.Name, Value: row[j], Reason: "value does not match column type " + string(c.Type)}
			}
		}

		if row[b.Schema.Index(ColumnDropoffDate)] == nil {
			return &DataError{Row: i + 1, TripID: id, Column: ColumnDropoffDate, Reason: "partition value is null"}
		}
	}

	return nil
}
