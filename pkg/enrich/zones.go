package enrich

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Zone is one row of the taxi zone lookup.
type Zone struct {
	LocationID  int64
	Borough     string
	Zone        string
	ServiceZone string
}

// Zones maps a location id to its zone.
type Zones map[int64]Zone

func (z Zones) Lookup(id int64) (*Zone, bool) {
	zone, ok := z[id]
	if !ok {
		return nil, false
	}
	return &zone, true
}

var zoneColumns = []string{"locationid", "borough", "zone", "service_zone"}

// LoadZones reads a zone lookup CSV with the header LocationID,Borough,Zone,service_zone.
func LoadZones(fs afero.Fs, path string) (Zones, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open zone lookup '%s'", path)
	}
	defer f.Close()

	zones, err := ParseZones(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read zone lookup '%s'", path)
	}

	return zones, nil
}

func ParseZones(r io.Reader) (Zones, error) {
	rows, index, err := readTable(r, zoneColumns)
	if err != nil {
		return nil, err
	}

	zones := make(Zones, len(rows))
	for i, row := range rows {
		id, err := strconv.ParseInt(strings.TrimSpace(row[index["locationid"]]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid location id", i+2)
		}
		if _, ok := zones[id]; ok {
			return nil, errors.Errorf("line %d: location id %d is listed twice", i+2, id)
		}

		zones[id] = Zone{
			LocationID:  id,
			Borough:     row[index["borough"]],
			Zone:        row[index["zone"]],
			ServiceZone: row[index["service_zone"]],
		}
	}

	return zones, nil
}

// readTable reads a headed CSV and returns the data rows plus the position of each
// required column. Header names are matched case-insensitively.
func readTable(r io.Reader, required []string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range required {
		if _, ok := index[c]; !ok {
			return nil, nil, errors.Errorf("missing column '%s' in header", c)
		}
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read rows")
	}

	return rows, index, nil
}
