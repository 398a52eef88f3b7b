package trip

// Family identifies the service variant a raw record was produced by. It is also the
// value of the service_type discriminator on reconciled records.
type Family string

const (
	FamilyYellow Family = "yellow"
	FamilyGreen  Family = "green"
)

func (f Family) String() string {
	return string(f)
}

// Families returns the known families in a fixed order.
func Families() []Family {
	return []Family{FamilyYellow, FamilyGreen}
}

// Field is the canonical name of a reconciled record attribute.
type Field string

const (
	FieldTripID               Field = "trip_id"
	FieldServiceType          Field = "service_type"
	FieldVendorID             Field = "vendor_id"
	FieldPickupDatetime       Field = "pickup_datetime"
	FieldDropoffDatetime      Field = "dropoff_datetime"
	FieldStoreAndFwdFlag      Field = "store_and_fwd_flag"
	FieldRatecodeID           Field = "ratecode_id"
	FieldPickupLocationID     Field = "pickup_location_id"
	FieldDropoffLocationID    Field = "dropoff_location_id"
	FieldPassengerCount       Field = "passenger_count"
	FieldTripDistance         Field = "trip_distance"
	FieldFareAmount           Field = "fare_amount"
	FieldExtra                Field = "extra"
	FieldMtaTax               Field = "mta_tax"
	FieldTipAmount            Field = "tip_amount"
	FieldTollsAmount          Field = "tolls_amount"
	FieldEhailFee             Field = "ehail_fee"
	FieldImprovementSurcharge Field = "improvement_surcharge"
	FieldTotalAmount          Field = "total_amount"
	FieldPaymentType          Field = "payment_type"
	FieldTripType             Field = "trip_type"
	FieldCongestionSurcharge  Field = "congestion_surcharge"
	FieldAirportFee           Field = "airport_fee"
)

// Kind is the value domain of a canonical field.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindString
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// FieldDef describes one canonical field. Required fields may not be null in a raw
// record; optional ones fall back to the typed zero value.
type FieldDef struct {
	Name     Field
	Kind     Kind
	Required bool
}

var canonicalFields = []FieldDef{
	{Name: FieldVendorID, Kind: KindInteger, Required: true},
	{Name: FieldPickupDatetime, Kind: KindTimestamp, Required: true},
	{Name: FieldDropoffDatetime, Kind: KindTimestamp, Required: true},
	{Name: FieldStoreAndFwdFlag, Kind: KindString},
	{Name: FieldRatecodeID, Kind: KindInteger},
	{Name: FieldPickupLocationID, Kind: KindInteger, Required: true},
	{Name: FieldDropoffLocationID, Kind: KindInteger, Required: true},
	{Name: FieldPassengerCount, Kind: KindInteger},
	{Name: FieldTripDistance, Kind: KindFloat},
	{Name: FieldFareAmount, Kind: KindFloat},
	{Name: FieldExtra, Kind: KindFloat},
	{Name: FieldMtaTax, Kind: KindFloat},
	{Name: FieldTipAmount, Kind: KindFloat},
	{Name: FieldTollsAmount, Kind: KindFloat},
	{Name: FieldEhailFee, Kind: KindFloat},
	{Name: FieldImprovementSurcharge, Kind: KindFloat},
	{Name: FieldTotalAmount, Kind: KindFloat},
	{Name: FieldPaymentType, Kind: KindInteger},
	{Name: FieldTripType, Kind: KindInteger},
	{Name: FieldCongestionSurcharge, Kind: KindFloat},
	{Name: FieldAirportFee, Kind: KindFloat},
}

// CanonicalFields returns the union schema shared by every family, in column order.
func CanonicalFields() []FieldDef {
	out := make([]FieldDef, len(canonicalFields))
	copy(out, canonicalFields)
	return out
}

// FamilySpec is the per-family reconciliation table: where each canonical field lives
// in the family's native schema, and what to use when the family does not carry it.
type FamilySpec struct {
	Family Family
	// Columns maps a canonical field to the family's native column name.
	Columns map[Field]string
	// Defaults holds the typed value for canonical fields the family lacks.
	Defaults map[Field]any
	// Passthrough lists native columns copied as-is into Record.Extras.
	Passthrough []string
}

// DropoffColumn is the native dropoff timestamp column, the source of the partition date.
func (s FamilySpec) DropoffColumn() string {
	return s.Columns[FieldDropoffDatetime]
}

// WithPassthrough returns a copy of the spec that also carries the given native columns.
func (s FamilySpec) WithPassthrough(columns ...string) FamilySpec {
	out := s
	out.Passthrough = append(append([]string{}, s.Passthrough...), columns...)
	return out
}

var YellowSpec = FamilySpec{
	Family: FamilyYellow,
	Columns: map[Field]string{
		FieldVendorID:             "VendorID",
		FieldPickupDatetime:       "tpep_pickup_datetime",
		FieldDropoffDatetime:      "tpep_dropoff_datetime",
		FieldStoreAndFwdFlag:      "store_and_fwd_flag",
		FieldRatecodeID:           "RatecodeID",
		FieldPickupLocationID:     "PULocationID",
		FieldDropoffLocationID:    "DOLocationID",
		FieldPassengerCount:       "passenger_count",
		FieldTripDistance:         "trip_distance",
		FieldFareAmount:           "fare_amount",
		FieldExtra:                "extra",
		FieldMtaTax:               "mta_tax",
		FieldTipAmount:            "tip_amount",
		FieldTollsAmount:          "tolls_amount",
		FieldImprovementSurcharge: "improvement_surcharge",
		FieldTotalAmount:          "total_amount",
		FieldPaymentType:          "payment_type",
		FieldCongestionSurcharge:  "congestion_surcharge",
		FieldAirportFee:           "Airport_fee",
	},
	Defaults: map[Field]any{
		FieldEhailFee: float64(0),
		// yellow cabs are street-hail only
		FieldTripType: int64(1),
	},
}

var GreenSpec = FamilySpec{
	Family: FamilyGreen,
	Columns: map[Field]string{
		FieldVendorID:             "VendorID",
		FieldPickupDatetime:       "lpep_pickup_datetime",
		FieldDropoffDatetime:      "lpep_dropoff_datetime",
		FieldStoreAndFwdFlag:      "store_and_fwd_flag",
		FieldRatecodeID:           "RatecodeID",
		FieldPickupLocationID:     "PULocationID",
		FieldDropoffLocationID:    "DOLocationID",
		FieldPassengerCount:       "passenger_count",
		FieldTripDistance:         "trip_distance",
		FieldFareAmount:           "fare_amount",
		FieldExtra:                "extra",
		FieldMtaTax:               "mta_tax",
		FieldTipAmount:            "tip_amount",
		FieldTollsAmount:          "tolls_amount",
		FieldEhailFee:             "ehail_fee",
		FieldImprovementSurcharge: "improvement_surcharge",
		FieldTotalAmount:          "total_amount",
		FieldPaymentType:          "payment_type",
		FieldTripType:             "trip_type",
		FieldCongestionSurcharge:  "congestion_surcharge",
	},
	Defaults: map[Field]any{
		FieldAirportFee: float64(0),
	},
}

// DefaultSpecs returns the built-in specs for every known family.
func DefaultSpecs() []FamilySpec {
	return []FamilySpec{YellowSpec, GreenSpec}
}
