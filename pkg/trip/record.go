package trip

import (
	"time"
)

// RawRecord is one decoded row of a staged file, keyed by the family's native column names.
type RawRecord map[string]any

// Record is a reconciled trip: every canonical field is populated, either from the
// family's native column or from the family's default.
type Record struct {
	TripID      string
	ServiceType Family

	VendorID          int64
	PickupDatetime    time.Time
	DropoffDatetime   time.Time
	StoreAndFwdFlag   string
	RatecodeID        int64
	PickupLocationID  int64
	DropoffLocationID int64
	PassengerCount    int64

	TripDistance         float64
	FareAmount           float64
	Extra                float64
	MtaTax               float64
	TipAmount            float64
	TollsAmount          float64
	EhailFee             float64
	ImprovementSurcharge float64
	TotalAmount          float64

	PaymentType         int64
	TripType            int64
	CongestionSurcharge float64
	AirportFee          float64

	// Extras holds passthrough columns, keyed by their native name.
	Extras map[string]any
}

// DropoffDate is the day the record's fact table partition is keyed on.
func (r Record) DropoffDate() time.Time {
	d := r.DropoffDatetime.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Value returns the typed value of a canonical field.
func (r Record) Value(f Field) (any, bool) {
	switch f {
	case FieldTripID:
		return r.TripID, true
	case FieldServiceType:
		return string(r.ServiceType), true
	case FieldVendorID:
		return r.VendorID, true
	case FieldPickupDatetime:
		return r.PickupDatetime, true
	case FieldDropoffDatetime:
		return r.DropoffDatetime, true
	case FieldStoreAndFwdFlag:
		return r.StoreAndFwdFlag, true
	case FieldRatecodeID:
		return r.RatecodeID, true
	case FieldPickupLocationID:
		return r.PickupLocationID, true
	case FieldDropoffLocationID:
		return r.DropoffLocationID, true
	case FieldPassengerCount:
		return r.PassengerCount, true
	case FieldTripDistance:
		return r.TripDistance, true
	case FieldFareAmount:
		return r.FareAmount, true
	case FieldExtra:
		return r.Extra, true
	case FieldMtaTax:
		return r.MtaTax, true
	case FieldTipAmount:
		return r.TipAmount, true
	case FieldTollsAmount:
		return r.TollsAmount, true
	case FieldEhailFee:
		return r.EhailFee, true
	case FieldImprovementSurcharge:
		return r.ImprovementSurcharge, true
	case FieldTotalAmount:
		return r.TotalAmount, true
	case FieldPaymentType:
		return r.PaymentType, true
	case FieldTripType:
		return r.TripType, true
	case FieldCongestionSurcharge:
		return r.CongestionSurcharge, true
	case FieldAirportFee:
		return r.AirportFee, true
	}

	return nil, false
}

func (r *Record) set(f Field, v any) {
	switch f {
	case FieldVendorID:
		r.VendorID = v.(int64)
	case FieldPickupDatetime:
		r.PickupDatetime = v.(time.Time)
	case FieldDropoffDatetime:
		r.DropoffDatetime = v.(time.Time)
	case FieldStoreAndFwdFlag:
		r.StoreAndFwdFlag = v.(string)
	case FieldRatecodeID:
		r.RatecodeID = v.(int64)
	case FieldPickupLocationID:
		r.PickupLocationID = v.(int64)
	case FieldDropoffLocationID:
		r.DropoffLocationID = v.(int64)
	case FieldPassengerCount:
		r.PassengerCount = v.(int64)
	case FieldTripDistance:
		r.TripDistance = v.(float64)
	case FieldFareAmount:
		r.FareAmount = v.(float64)
	case FieldExtra:
		r.Extra = v.(float64)
	case FieldMtaTax:
		r.MtaTax = v.(float64)
	case FieldTipAmount:
		r.TipAmount = v.(float64)
	case FieldTollsAmount:
		r.TollsAmount = v.(float64)
	case FieldEhailFee:
		r.EhailFee = v.(float64)
	case FieldImprovementSurcharge:
		r.ImprovementSurcharge = v.(float64)
	case FieldTotalAmount:
		r.TotalAmount = v.(float64)
	case FieldPaymentType:
		r.PaymentType = v.(int64)
	case FieldTripType:
		r.TripType = v.(int64)
	case FieldCongestionSurcharge:
		r.CongestionSurcharge = v.(float64)
	case FieldAirportFee:
		r.AirportFee = v.(float64)
	}
}
