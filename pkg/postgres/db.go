package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const applicationName = "tripfacts"

type connection interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Client is a pooled connection to the Postgres database holding the fact table.
type Client struct {
	connection connection
	config     Config
}

func NewClient(ctx context.Context, c Config) (*Client, error) {
	poolConfig, err := pgxpool.ParseConfig(c.ToDBConnectionURI())
	if err != nil {
		return nil, errors.Wrap(err, "invalid postgres connection settings")
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to postgres at %s:%d", c.Host, c.Port)
	}

	return &Client{connection: pool, config: c}, nil
}

func (c *Client) Close() {
	c.connection.Close()
}

// Select returns every row of the query as a slice of column values.
func (c *Client) Select(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := c.connection.Query(ctx, query, args...)
	if err != nil {
		return nil, formatError(err)
	}
	defer rows.Close()

	values, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) {
		return row.Values()
	})
	if err != nil {
		return nil, errors.Wrap(formatError(err), "failed to read result rows")
	}
	if values == nil {
		values = [][]any{}
	}

	return values, nil
}

// InTx runs fn inside a transaction that is committed when fn succeeds and rolled back
// otherwise.
func (c *Client) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.connection.Begin(ctx)
	if err != nil {
		return errors.Wrap(formatError(err), "failed to start transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Wrapf(err, "rollback also failed: %s", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(formatError(err), "failed to commit transaction")
	}

	return nil
}

// Ping makes sure the server is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.connection.Exec(ctx, "SELECT 1"); err != nil {
		return errors.Wrapf(formatError(err), "failed to reach postgres database '%s'", c.config.Database)
	}

	return nil
}

// formatError flattens server errors into their message and detail, dropping the
// severity prefix pgconn adds.
func formatError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	msg := fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
	if pgErr.Detail != "" {
		msg += ": " + pgErr.Detail
	}

	return errors.New(msg)
}
