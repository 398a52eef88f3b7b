package enrich

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// PaymentTypes maps a payment code to its description.
type PaymentTypes map[int64]string

func DefaultPaymentTypes() PaymentTypes {
	return PaymentTypes{
		1: "Credit card",
		2: "Cash",
		3: "No charge",
		4: "Dispute",
		5: "Unknown",
		6: "Voided trip",
	}
}

func (p PaymentTypes) Lookup(code int64) (*string, bool) {
	desc, ok := p[code]
	if !ok {
		return nil, false
	}
	return &desc, true
}

// LoadPaymentTypes reads a CSV with the header payment_type,description.
func LoadPaymentTypes(fs afero.Fs, path string) (PaymentTypes, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open payment type lookup '%s'", path)
	}
	defer f.Close()

	out, err := ParsePaymentTypes(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read payment type lookup '%s'", path)
	}
	return out, nil
}

func ParsePaymentTypes(r io.Reader) (PaymentTypes, error) {
	rows, index, err := readTable(r, []string{"payment_type", "description"})
	if err != nil {
		return nil, err
	}

	out := make(PaymentTypes, len(rows))
	for i, row := range rows {
		code, err := strconv.ParseInt(strings.TrimSpace(row[index["payment_type"]]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid payment type", i+2)
		}
		out[code] = row[index["description"]]
	}

	return out, nil
}
