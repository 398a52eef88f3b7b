package helpers

import (
	"flag"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const stagingMarker = "__tripfacts_tmp_"

// StagingTableName returns a fresh name for a scratch table that holds a batch before it
// is merged into base. The random part is fixed under go test.
func StagingTableName(base string) string {
	return base + stagingMarker + randomSuffix()
}

func randomSuffix() string {
	if flag.Lookup("test.v") != nil {
		return "abcefghi"
	}

	letters := []rune("abcdefghijklmnopqrstuvwxyz")
	b := make([]rune, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))] //nolint:gosec
	}
	return string(b)
}

// ScalarInt reads the single integer a COUNT style query returns.
func ScalarInt(res [][]any) (int64, error) {
	if len(res) != 1 || len(res[0]) != 1 {
		return 0, errors.Errorf("expected a single value from the query, got %d row(s)", len(res))
	}

	return ToInt64(res[0][0])
}

// ToInt64 converts a value scanned from any of the supported databases to an integer.
// Drivers disagree on how they return counts: DuckDB gives int64 or a decimal string,
// BigQuery gives int64 and some Postgres aggregates come back as text.
func ToInt64(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, errors.New("expected an integer from the query, got NULL")
	case []byte:
		return ToInt64(string(v))
	case string:
		if n, err := cast.ToInt64E(v); err == nil {
			return n, nil
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, errors.Errorf("expected an integer from the query, got '%s'", v)
		}
		return int64(f), nil
	}

	n, err := cast.ToInt64E(value)
	if err != nil {
		return 0, errors.Errorf("expected an integer from the query, got %T", value)
	}
	return n, nil
}
