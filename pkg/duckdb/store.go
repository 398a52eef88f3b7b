package duck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/diff"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/helpers"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	defaultSchema = "main"
	insertChunk   = 500
	lookupChunk   = 1000
)

// FactStore keeps the fact table in a DuckDB database file. Every merge runs as a
// single transaction holding the database lock.
type FactStore struct {
	client *Client
	table  string
	ddl    *diff.AlterStatementGenerator
}

func NewFactStore(client *Client, table string) *FactStore {
	return &FactStore{
		client: client,
		table:  table,
		ddl:    diff.NewAlterStatementGenerator(diff.DialectDuckDB),
	}
}

func (s *FactStore) Name() string {
	return s.table
}

func splitTableName(table string) (string, string) {
	parts := strings.Split(table, ".")
	if len(parts) == 1 {
		return defaultSchema, parts[0]
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func (s *FactStore) Describe(ctx context.Context) (fact.Schema, bool, error) {
	schemaName, tableName := splitTableName(s.table)

	res, err := s.client.Select(ctx, `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read the columns of '%s'", s.table)
	}
	if len(res) == 0 {
		return nil, false, nil
	}

	schema := make(fact.Schema, 0, len(res))
	for _, row := range res {
		name, _ := row[0].(string)
		native, _ := row[1].(string)
		t, ok := s.ddl.Types().CommonType(native)
		if !ok {
			return nil, false, errors.Errorf("column '%s' of '%s' has unsupported type %s", name, s.table, native)
		}
		schema = append(schema, fact.Column{Name: name, Type: t})
	}

	return schema, true, nil
}

func (s *FactStore) Apply(ctx context.Context, plan *fact.Plan) (*fact.ApplyResult, error) {
	var res *fact.ApplyResult
	err := s.client.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		res, err = s.apply(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *FactStore) apply(ctx context.Context, tx *sqlx.Tx, plan *fact.Plan) (*fact.ApplyResult, error) {
	table := s.ddl.QuoteTable(plan.Table)
	schemaName, _ := splitTableName(plan.Table)

	var statements []string
	if plan.CreateTable {
		statements = append(statements,
			"CREATE SCHEMA IF NOT EXISTS "+s.ddl.QuoteIdentifier(schemaName),
			s.ddl.GenerateCreateTable(plan.Table, plan.Schema, ""),
		)
	}
	statements = append(statements, s.ddl.GenerateAddColumns(plan.Table, plan.AddColumns)...)

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrapf(err, "failed to evolve table '%s'", plan.Table)
		}
	}

	if len(plan.Rows) == 0 {
		return &fact.ApplyResult{}, nil
	}

	tmp := helpers.StagingTableName("")
	columns := strings.Join(lo.Map(plan.Schema.Names(), func(n string, _ int) string {
		return s.ddl.QuoteIdentifier(n)
	}), ", ")
	tripID := s.ddl.QuoteIdentifier(fact.ColumnTripID)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s LIMIT 0", tmp, columns, table)); err != nil {
		return nil, errors.Wrap(err, "failed to create staging table")
	}

	for _, rows := range lo.Chunk(plan.Rows, insertChunk) {
		query, args := insertStatement(tmp, columns, len(plan.Schema), rows)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, errors.Wrap(err, "failed to stage rows")
		}
	}

	replaced, err := countRows(ctx, tx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IN (SELECT %s FROM %s)", table, tripID, tripID, tmp))
	if err != nil {
		return nil, errors.Wrap(err, "failed to count existing trips")
	}

	queries := []string{
		fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s)", table, tripID, tripID, tmp),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", table, columns, columns, tmp),
	}
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return nil, errors.Wrapf(err, "failed to merge into '%s'", plan.Table)
		}
	}

	dupes, err := duplicateIDs(ctx, tx, fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s) GROUP BY %s HAVING COUNT(*) > 1 ORDER BY %s",
		tripID, table, tripID, tripID, tmp, tripID, tripID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify trip uniqueness")
	}
	if len(dupes) > 0 {
		return nil, &fact.ConsistencyError{Table: plan.Table, TripIDs: dupes, Reason: "merge would store the same trip more than once"}
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tmp); err != nil {
		return nil, errors.Wrap(err, "failed to drop staging table")
	}

	return &fact.ApplyResult{
		Inserted: len(plan.Rows) - int(replaced),
		Replaced: int(replaced),
	}, nil
}

func insertStatement(table, columns string, width int, rows []fact.Row) (string, []any) {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)*width)
	for i, r := range rows {
		values[i] = placeholder
		args = append(args, r...)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ", ")), args
}

func countRows(ctx context.Context, tx *sqlx.Tx, query string) (int64, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	_, res, err := scanAll(rows)
	if err != nil {
		return 0, err
	}
	return helpers.ScalarInt(res)
}

func duplicateIDs(ctx context.Context, tx *sqlx.Tx, query string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *FactStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if _, exists, err := s.Describe(ctx); err != nil || !exists {
		return out, err
	}

	tripID := s.ddl.QuoteIdentifier(fact.ColumnTripID)
	for _, chunk := range lo.Chunk(ids, lookupChunk) {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			tripID, s.ddl.QuoteTable(s.table), tripID, strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", "))
		res, err := s.client.Select(ctx, query, lo.ToAnySlice(chunk)...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to look up trips in '%s'", s.table)
		}
		for _, row := range res {
			if id, ok := row[0].(string); ok {
				out[id] = true
			}
		}
	}

	return out, nil
}

func (s *FactStore) PartitionCounts(ctx context.Context) ([]fact.PartitionCount, error) {
	if _, exists, err := s.Describe(ctx); err != nil || !exists {
		return nil, err
	}

	dropoff := s.ddl.QuoteIdentifier(fact.ColumnDropoffDate)
	res, err := s.client.Select(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s ORDER BY %s",
		dropoff, s.ddl.QuoteTable(s.table), dropoff, dropoff))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count partitions of '%s'", s.table)
	}

	out := make([]fact.PartitionCount, 0, len(res))
	for _, row := range res {
		day, ok := row[0].(time.Time)
		if !ok {
			return nil, errors.Errorf("unexpected partition value %v in '%s'", row[0], s.table)
		}
		n, err := helpers.ToInt64(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, fact.PartitionCount{Date: day.UTC(), Rows: n})
	}

	return out, nil
}
