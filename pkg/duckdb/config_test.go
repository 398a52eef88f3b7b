package duck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ToDBConnectionURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		dsn    string
		str    string
	}{
		{
			name:   "in memory",
			config: Config{},
			dsn:    "",
			str:    "duckdb (in-memory)",
		},
		{
			name:   "file",
			config: Config{Path: "/data/tripfacts.duckdb"},
			dsn:    "/data/tripfacts.duckdb",
			str:    "duckdb:////data/tripfacts.duckdb",
		},
		{
			name:   "tuned",
			config: Config{Path: "tripfacts.duckdb", Threads: 4, MemoryLimit: "2GB"},
			dsn:    "tripfacts.duckdb?memory_limit=2GB&threads=4",
			str:    "duckdb:///tripfacts.duckdb",
		},
		{
			name:   "tuned in memory",
			config: Config{Threads: 2},
			dsn:    "?threads=2",
			str:    "duckdb (in-memory)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.dsn, tt.config.ToDBConnectionURI())
			assert.Equal(t, tt.str, tt.config.String())
		})
	}
}
