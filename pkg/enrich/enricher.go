package enrich

import (
	"github.com/bruin-data/tripfacts/pkg/trip"
)

// Record is a deduplicated trip with its descriptive attributes. Nil pointers mean the
// lookup had no match.
type Record struct {
	trip.Record

	PickupZone             *Zone
	DropoffZone            *Zone
	PaymentTypeDescription *string
	VendorName             string
}

type Enricher struct {
	zones    Zones
	payments PaymentTypes
	vendors  VendorNames
}

func NewEnricher(zones Zones, payments PaymentTypes, vendors VendorNames) *Enricher {
	if zones == nil {
		zones = Zones{}
	}
	if payments == nil {
		payments = PaymentTypes{}
	}

	return &Enricher{zones: zones, payments: payments, vendors: vendors}
}

// EnrichOne attaches the lookups to a single record.
func (e *Enricher) EnrichOne(r trip.Record) Record {
	out := Record{
		Record:     r,
		VendorName: e.vendors.Name(r.VendorID),
	}
	out.PickupZone, _ = e.zones.Lookup(r.PickupLocationID)
	out.DropoffZone, _ = e.zones.Lookup(r.DropoffLocationID)
	out.PaymentTypeDescription, _ = e.payments.Lookup(r.PaymentType)

	return out
}

// Enrich left-joins every record against the lookups; the output has one row per input
// row, in the same order.
func (e *Enricher) Enrich(records []trip.Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = e.EnrichOne(r)
	}
	return out
}
