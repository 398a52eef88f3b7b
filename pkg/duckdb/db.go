package duck

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/marcboeker/go-duckdb" //nolint:stylecheck
	"github.com/pkg/errors"
)

// Client wraps a DuckDB database. It serves both the fact table and the in-memory
// database used to read staged files.
type Client struct {
	connection connection
	config     Config
}

type connection interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

func NewClient(c Config) (*Client, error) {
	conn, err := sqlx.Open("duckdb", c.ToDBConnectionURI())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", c)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to open %s", c)
	}

	return &Client{
		connection: conn,
		config:     c,
	}, nil
}

func (c *Client) Close() error {
	if closer, ok := c.connection.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// InTx runs fn in a transaction while holding the database file for this process.
func (c *Client) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	defer acquireFile(c.config.Path)()

	tx, err := c.connection.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback also failed: %s", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// Select returns every row of the query with DuckDB specific values converted to plain
// Go types.
func (c *Client) Select(ctx context.Context, query string, args ...any) ([][]any, error) {
	defer acquireFile(c.config.Path)()

	rows, err := c.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	_, result, err := scanAll(rows)
	return result, err
}

// scanAll reads every row, converting DuckDB-specific types along the way.
func scanAll(rows *sql.Rows) ([]string, [][]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := make([][]any, 0)
	for rows.Next() {
		row, err := scanRow(rows, len(names))
		if err != nil {
			return nil, nil, err
		}
		out = append(out, row)
	}

	return names, out, rows.Err()
}

// scanRow scans the current row into width converted values.
func scanRow(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	targets := make([]any, width)
	for i := range values {
		targets[i] = &values[i]
	}

	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}

	for i := range values {
		values[i] = convertValue(values[i])
	}
	return values, nil
}

func convertValue(val any) any {
	switch v := val.(type) {
	case duckdb.Decimal:
		return v.Float64()
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	}

	return val
}
