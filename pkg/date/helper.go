package date

import (
	"time"

	"github.com/pkg/errors"
)

// timestampLayouts are the textual timestamp forms found in staged trip files, ISO and the
// US form of the public CSV downloads. Fractional seconds are optional when parsing.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
}

// ParseTime parses a staged timestamp. Inputs without a zone are read as UTC.
func ParseTime(input string) (time.Time, error) {
	t, _, err := ParseTimeWithFormat(input)
	return t, err
}

// ParseTimeWithFormat also returns the layout that matched.
func ParseTimeWithFormat(input string) (time.Time, string, error) {
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, input, time.UTC)
		if err == nil {
			return t, layout, nil
		}
	}

	return time.Time{}, "", errors.Errorf("invalid datetime format '%s'", input)
}
