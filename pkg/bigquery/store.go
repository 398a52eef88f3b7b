package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/bruin-data/tripfacts/pkg/diff"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	duplicateAssertion = "tripfacts: trip_id is not unique after merge"
	stagingExpiration  = time.Hour
)

// FactStore keeps the fact table in BigQuery, partitioned by day on dropoff_date and
// clustered by trip_id. Rows are loaded into a short-lived staging table and merged by a
// single transactional script.
//
// Creating the table and adding columns cannot run inside a BigQuery transaction, so
// they are applied first. A batch that fails later leaves those columns in place; they
// hold nulls for every stored row and the retried batch reuses them.
type FactStore struct {
	client  *Client
	project string
	dataset string
	table   string
	ddl     *diff.AlterStatementGenerator
}

// NewFactStore accepts "dataset.table" or "project.dataset.table".
func NewFactStore(client *Client, table string) (*FactStore, error) {
	parts := strings.Split(table, ".")
	s := &FactStore{client: client, ddl: diff.NewAlterStatementGenerator(diff.DialectBigQuery)}

	switch len(parts) {
	case 2:
		s.project, s.dataset, s.table = client.ProjectID(), parts[0], parts[1]
	case 3:
		s.project, s.dataset, s.table = parts[0], parts[1], parts[2]
	default:
		return nil, errors.Errorf("bigquery table name '%s' must be in the form dataset.table or project.dataset.table", table)
	}

	return s, nil
}

func (s *FactStore) Name() string {
	return fmt.Sprintf("%s.%s.%s", s.project, s.dataset, s.table)
}

// datasetRef connects if needed and returns the handle of the table's dataset.
func (s *FactStore) datasetRef(ctx context.Context) (*bigquery.Dataset, error) {
	client, err := s.client.api(ctx)
	if err != nil {
		return nil, err
	}
	return client.DatasetInProject(s.project, s.dataset), nil
}

func (s *FactStore) Describe(ctx context.Context) (fact.Schema, bool, error) {
	dataset, err := s.datasetRef(ctx)
	if err != nil {
		return nil, false, err
	}

	meta, err := dataset.Table(s.table).Metadata(ctx)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(formatError(err), "failed to read the metadata of '%s'", s.Name())
	}

	schema := make(fact.Schema, 0, len(meta.Schema))
	for _, field := range meta.Schema {
		t, ok := s.ddl.Types().CommonType(string(field.Type))
		if !ok || field.Repeated {
			return nil, false, errors.Errorf("column '%s' of '%s' has unsupported type %s", field.Name, s.Name(), field.Type)
		}
		schema = append(schema, fact.Column{Name: field.Name, Type: t})
	}

	return schema, true, nil
}

func (s *FactStore) bigquerySchema(schema fact.Schema) bigquery.Schema {
	out := make(bigquery.Schema, len(schema))
	for i, c := range schema {
		out[i] = &bigquery.FieldSchema{
			Name: c.Name,
			Type: bigquery.FieldType(s.ddl.Types().NativeType(c.Type)),
		}
	}
	return out
}

// Apply evolves the table first and then merges the rows. Table creation and added
// columns are idempotent, so a retried merge converges to the same state; the row
// changes themselves are committed by one transaction.
func (s *FactStore) Apply(ctx context.Context, plan *fact.Plan) (*fact.ApplyResult, error) {
	dataset, err := s.datasetRef(ctx)
	if err != nil {
		return nil, err
	}

	if plan.CreateTable {
		if err := s.createTable(ctx, dataset, plan.Schema); err != nil {
			return nil, err
		}
	}
	if err := s.addColumns(ctx, dataset.Table(s.table), plan.AddColumns); err != nil {
		return nil, err
	}

	if len(plan.Rows) == 0 {
		return &fact.ApplyResult{}, nil
	}

	staging := dataset.Table(helpers.StagingTableName(s.table))
	if err := s.stage(ctx, staging, plan); err != nil {
		return nil, err
	}
	defer func() {
		_ = staging.Delete(context.WithoutCancel(ctx))
	}()

	res, err := s.client.Select(ctx, renderMerge(s.ddl, s.Name(), fmt.Sprintf("%s.%s.%s", s.project, s.dataset, staging.TableID), plan.Schema))
	if err != nil {
		if strings.Contains(err.Error(), duplicateAssertion) {
			return nil, &fact.ConsistencyError{Table: s.Name(), Reason: "merge would store the same trip more than once"}
		}
		return nil, errors.Wrapf(err, "failed to merge into '%s'", s.Name())
	}

	replaced, err := helpers.ScalarInt(lo.Map(res, func(r []bigquery.Value, _ int) []interface{} {
		return lo.ToAnySlice(r)
	}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the number of replaced trips")
	}

	return &fact.ApplyResult{
		Inserted: len(plan.Rows) - int(replaced),
		Replaced: int(replaced),
	}, nil
}

func (s *FactStore) createTable(ctx context.Context, dataset *bigquery.Dataset, schema fact.Schema) error {
	if _, err := dataset.Metadata(ctx); err != nil {
		if !hasStatus(err, http.StatusNotFound) {
			return errors.Wrapf(formatError(err), "failed to read dataset '%s'", s.dataset)
		}
		err = dataset.Create(ctx, &bigquery.DatasetMetadata{Location: s.client.config.GetLocation()})
		if err != nil && !hasStatus(err, http.StatusConflict) {
			return errors.Wrapf(formatError(err), "failed to create dataset '%s'", s.dataset)
		}
	}

	err := dataset.Table(s.table).Create(ctx, &bigquery.TableMetadata{
		Schema: s.bigquerySchema(schema),
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: fact.ColumnDropoffDate,
		},
		Clustering: &bigquery.Clustering{Fields: []string{fact.ColumnTripID}},
	})
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return errors.Wrapf(formatError(err), "failed to create table '%s'", s.Name())
	}

	return nil
}

func (s *FactStore) addColumns(ctx context.Context, table *bigquery.Table, columns []fact.Column) error {
	if len(columns) == 0 {
		return nil
	}

	meta, err := table.Metadata(ctx)
	if err != nil {
		return errors.Wrapf(formatError(err), "failed to read the metadata of '%s'", s.Name())
	}

	schema := append(bigquery.Schema{}, meta.Schema...)
	for _, field := range s.bigquerySchema(columns) {
		exists := lo.ContainsBy(schema, func(f *bigquery.FieldSchema) bool { return strings.EqualFold(f.Name, field.Name) })
		if !exists {
			schema = append(schema, field)
		}
	}
	if len(schema) == len(meta.Schema) {
		return nil
	}

	if _, err := table.Update(ctx, bigquery.TableMetadataToUpdate{Schema: schema}, meta.ETag); err != nil {
		return errors.Wrapf(formatError(err), "failed to add columns to '%s'", s.Name())
	}

	return nil
}

func (s *FactStore) stage(ctx context.Context, staging *bigquery.Table, plan *fact.Plan) error {
	schema := s.bigquerySchema(plan.Schema)
	err := staging.Create(ctx, &bigquery.TableMetadata{
		Schema:         schema,
		ExpirationTime: time.Now().Add(stagingExpiration),
	})
	if err != nil {
		return errors.Wrapf(formatError(err), "failed to create staging table '%s'", staging.TableID)
	}

	payload, err := encodeRows(plan.Schema, plan.Rows)
	if err != nil {
		return err
	}

	src := bigquery.NewReaderSource(bytes.NewReader(payload))
	src.SourceFormat = bigquery.JSON
	src.Schema = schema

	loader := staging.LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate

	job, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(formatError(err), "failed to start the staging load")
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(formatError(err), "failed to wait for the staging load")
	}
	if err := status.Err(); err != nil {
		return errors.Wrap(err, "staging load failed")
	}

	return nil
}

// encodeRows renders rows as newline-delimited JSON for a load job.
func encodeRows(schema fact.Schema, rows []fact.Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, r := range rows {
		obj := make(map[string]any, len(schema))
		for i, c := range schema {
			v := r[i]
			if v == nil {
				continue
			}
			if ts, ok := v.(time.Time); ok {
				if c.Type == fact.TypeDate {
					v = ts.UTC().Format(time.DateOnly)
				} else {
					v = ts.UTC().Format("2006-01-02 15:04:05.000000")
				}
			}
			obj[c.Name] = v
		}
		if err := enc.Encode(obj); err != nil {
			return nil, errors.Wrap(err, "failed to encode rows for loading")
		}
	}

	return buf.Bytes(), nil
}

// renderMerge builds the script that upserts the staged rows, verifies trip ids stay
// unique, and returns how many stored trips were replaced.
func renderMerge(ddl *diff.AlterStatementGenerator, target, staging string, schema fact.Schema) string {
	t := ddl.QuoteTable(target)
	src := ddl.QuoteTable(staging)
	tripID := ddl.QuoteIdentifier(fact.ColumnTripID)
	dropoff := ddl.QuoteIdentifier(fact.ColumnDropoffDate)

	names := lo.Map(schema.Names(), func(n string, _ int) string { return ddl.QuoteIdentifier(n) })
	sourceNames := lo.Map(names, func(n string, _ int) string { return "source." + n })

	var updates []string
	for _, n := range schema.Names() {
		if strings.EqualFold(n, fact.ColumnTripID) || strings.EqualFold(n, fact.ColumnDropoffDate) {
			continue
		}
		q := ddl.QuoteIdentifier(n)
		updates = append(updates, fmt.Sprintf("%s = source.%s", q, q))
	}

	lines := []string{
		"DECLARE replaced INT64 DEFAULT 0;",
		"BEGIN TRANSACTION;",
		fmt.Sprintf("SET replaced = (SELECT COUNT(*) FROM %s WHERE %s IN (SELECT %s FROM %s));", t, tripID, tripID, src),
		fmt.Sprintf("MERGE %s AS target", t),
		fmt.Sprintf("USING %s AS source", src),
		fmt.Sprintf("ON target.%s = source.%s AND target.%s = source.%s", tripID, tripID, dropoff, dropoff),
	}
	if len(updates) > 0 {
		lines = append(lines, "WHEN MATCHED THEN UPDATE SET "+strings.Join(updates, ", "))
	}
	lines = append(lines,
		fmt.Sprintf("WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", strings.Join(names, ", "), strings.Join(sourceNames, ", ")),
		fmt.Sprintf("ASSERT NOT EXISTS (SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s) GROUP BY %s HAVING COUNT(*) > 1) AS '%s';",
			tripID, t, tripID, tripID, src, tripID, duplicateAssertion),
		"COMMIT TRANSACTION;",
		"SELECT replaced;",
	)

	return strings.Join(lines, "\n")
}

func (s *FactStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if _, exists, err := s.Describe(ctx); err != nil || !exists {
		return out, err
	}

	tripID := s.ddl.QuoteIdentifier(fact.ColumnTripID)
	for _, chunk := range lo.Chunk(ids, 10000) {
		literals := lo.Map(chunk, func(id string, _ int) string { return "'" + strings.ReplaceAll(id, "'", "") + "'" })
		res, err := s.client.Select(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			tripID, s.ddl.QuoteTable(s.Name()), tripID, strings.Join(literals, ", ")))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to look up trips in '%s'", s.Name())
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
	res, err := s.client.Select(ctx, fmt.Sprintf("SELECT CAST(%s AS STRING), COUNT(*) FROM %s GROUP BY 1 ORDER BY 1",
		dropoff, s.ddl.QuoteTable(s.Name())))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count partitions of '%s'", s.Name())
	}

	out := make([]fact.PartitionCount, 0, len(res))
	for _, row := range res {
		raw, _ := row[0].(string)
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "unexpected partition value in '%s'", s.Name())
		}
		n, err := helpers.ToInt64(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, fact.PartitionCount{Date: day, Rows: n})
	}

	return out, nil
}
