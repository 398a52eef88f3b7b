package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/diff"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	defaultSchema = "public"
	// keeps every INSERT well below the 65535 bind parameter limit
	maxParams = 30000
)

// FactStore keeps the fact table as a Postgres table range-partitioned by dropoff date,
// one child table per day. Writers to the same table are serialized through an
// advisory lock held for the duration of the merge transaction.
type FactStore struct {
	client *Client
	table  string
	ddl    *diff.AlterStatementGenerator
}

func NewFactStore(client *Client, table string) *FactStore {
	return &FactStore{
		client: client,
		table:  table,
		ddl:    diff.NewAlterStatementGenerator(diff.DialectPostgreSQL),
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

// PartitionName returns the child table holding the given dropoff date.
func PartitionName(table string, day time.Time) string {
	schema, name := splitTableName(table)
	return fmt.Sprintf("%s.%s_p%s", schema, name, day.UTC().Format("20060102"))
}

func (s *FactStore) Describe(ctx context.Context) (fact.Schema, bool, error) {
	schemaName, tableName := splitTableName(s.table)

	res, err := s.client.Select(ctx, `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
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
	err := s.client.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		res, err = s.apply(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *FactStore) apply(ctx context.Context, tx pgx.Tx, plan *fact.Plan) (*fact.ApplyResult, error) {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", plan.Table); err != nil {
		return nil, errors.Wrapf(err, "failed to lock '%s'", plan.Table)
	}

	table := s.ddl.QuoteTable(plan.Table)
	tripID := s.ddl.QuoteIdentifier(fact.ColumnTripID)
	dropoff := s.ddl.QuoteIdentifier(fact.ColumnDropoffDate)

	var statements []string
	if plan.CreateTable {
		schemaName, tableName := splitTableName(plan.Table)
		statements = append(statements,
			"CREATE SCHEMA IF NOT EXISTS "+s.ddl.QuoteIdentifier(schemaName),
			s.ddl.GenerateCreateTable(plan.Table, plan.Schema, fmt.Sprintf("PARTITION BY RANGE (%s)", dropoff)),
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
				s.ddl.QuoteIdentifier(tableName+"_trip_key"), table, tripID, dropoff),
		)
	}
	statements = append(statements, s.ddl.GenerateAddColumns(plan.Table, plan.AddColumns)...)

	for _, day := range plan.Partitions {
		statements = append(statements, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
			s.ddl.QuoteTable(PartitionName(plan.Table, day)), table,
			day.Format(time.DateOnly), day.AddDate(0, 0, 1).Format(time.DateOnly)))
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, errors.Wrapf(err, "failed to evolve table '%s'", plan.Table)
		}
	}

	if len(plan.Rows) == 0 {
		return &fact.ApplyResult{}, nil
	}

	ids := plan.TripIDs()
	var replaced int64
	err := tx.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ANY($1)", table, tripID), ids).Scan(&replaced)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count existing trips")
	}

	rowsPerStatement := max(1, maxParams/len(plan.Schema))
	for _, rows := range lo.Chunk(plan.Rows, rowsPerStatement) {
		query, args := s.upsertStatement(plan, rows)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return nil, errors.Wrapf(err, "failed to upsert into '%s'", plan.Table)
		}
	}

	rows, err := tx.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1) GROUP BY %s HAVING COUNT(*) > 1 ORDER BY %s", tripID, table, tripID, tripID, tripID),
		ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify trip uniqueness")
	}
	dupes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify trip uniqueness")
	}
	if len(dupes) > 0 {
		return nil, &fact.ConsistencyError{Table: plan.Table, TripIDs: dupes, Reason: "merge would store the same trip more than once"}
	}

	return &fact.ApplyResult{
		Inserted: len(plan.Rows) - int(replaced),
		Replaced: int(replaced),
	}, nil
}

func (s *FactStore) upsertStatement(plan *fact.Plan, rows []fact.Row) (string, []any) {
	names := plan.Schema.Names()
	quoted := lo.Map(names, func(n string, _ int) string { return s.ddl.QuoteIdentifier(n) })

	width := len(names)
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)*width)
	for i, r := range rows {
		placeholders := make([]string, width)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		values[i] = "(" + strings.Join(placeholders, ", ") + ")"
		args = append(args, r...)
	}

	updates := make([]string, 0, width)
	for _, n := range names {
		if strings.EqualFold(n, fact.ColumnTripID) || strings.EqualFold(n, fact.ColumnDropoffDate) {
			continue
		}
		q := s.ddl.QuoteIdentifier(n)
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s, %s) DO UPDATE SET %s",
		s.ddl.QuoteTable(plan.Table),
		strings.Join(quoted, ", "),
		strings.Join(values, ", "),
		s.ddl.QuoteIdentifier(fact.ColumnTripID),
		s.ddl.QuoteIdentifier(fact.ColumnDropoffDate),
		strings.Join(updates, ", "),
	)
	return query, args
}

func (s *FactStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if _, exists, err := s.Describe(ctx); err != nil || !exists {
		return out, err
	}

	tripID := s.ddl.QuoteIdentifier(fact.ColumnTripID)
	res, err := s.client.Select(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)", tripID, s.ddl.QuoteTable(s.table), tripID), ids)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up trips in '%s'", s.table)
	}
	for _, row := range res {
		if id, ok := row[0].(string); ok {
			out[id] = true
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
		n, ok := row[1].(int64)
		if !ok {
			return nil, errors.Errorf("unexpected row count %v in '%s'", row[1], s.table)
		}
		out = append(out, fact.PartitionCount{Date: day.UTC(), Rows: n})
	}

	return out, nil
}
