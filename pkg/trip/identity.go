package trip

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cast"
	"github.com/zeebo/blake3"
)

const (
	// IDLength is the number of hex characters in a trip id.
	IDLength = 32

	timeLayout = "2006-01-02T15:04:05.000000"
)

// identityFields is the ordered tuple a trip id is derived from.
var identityFields = []Field{
	FieldServiceType,
	FieldVendorID,
	FieldPickupDatetime,
	FieldDropoffDatetime,
	FieldPickupLocationID,
	FieldDropoffLocationID,
	FieldPassengerCount,
	FieldTripDistance,
	FieldFareAmount,
	FieldTotalAmount,
}

// IdentityFields returns the fields that define a trip, in hashing order.
func IdentityFields() []Field {
	return append([]Field{}, identityFields...)
}

// ComputeID returns the 128-bit BLAKE3 digest of the record's identity tuple as 32
// lowercase hex characters. Each field is prefixed with the length of its encoding.
func ComputeID(r Record) string {
	h := blake3.New()
	var buf []byte
	for _, f := range identityFields {
		v, _ := r.Value(f)
		buf = appendField(buf[:0], encodeValue(v))
		_, _ = h.Write(buf)
	}

	var sum [16]byte
	_, _ = h.Digest().Read(sum[:])
	return hex.EncodeToString(sum[:])
}

// Identify sets TripID on every record in place and returns the slice.
func Identify(records []Record) []Record {
	for i := range records {
		records[i].TripID = ComputeID(records[i])
	}
	return records
}

func appendField(buf []byte, encoded string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(encoded)))
	return append(buf, encoded...)
}

// encodeValue is the canonical text form of a field value used for hashing and
// ordering.
func encodeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(timeLayout)
	case []byte:
		return string(t)
	}

	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	if f == 0 {
		// collapses -0
		return "0"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
