package duck

import (
	"fmt"
	"net/url"
	"strconv"
)

type Config struct {
	// Path of the database file, empty for an in-memory database.
	Path string
	// Threads caps the worker threads DuckDB uses for a query, zero keeps its default.
	Threads int
	// MemoryLimit is passed as is, e.g. "4GB".
	MemoryLimit string
}

// ToDBConnectionURI returns the DSN understood by the go-duckdb driver.
func (c Config) ToDBConnectionURI() string {
	params := url.Values{}
	if c.Threads > 0 {
		params.Set("threads", strconv.Itoa(c.Threads))
	}
	if c.MemoryLimit != "" {
		params.Set("memory_limit", c.MemoryLimit)
	}

	if len(params) == 0 {
		return c.Path
	}
	return c.Path + "?" + params.Encode()
}

func (c Config) String() string {
	if c.Path == "" {
		return "duckdb (in-memory)"
	}
	return fmt.Sprintf("duckdb:///%s", c.Path)
}
