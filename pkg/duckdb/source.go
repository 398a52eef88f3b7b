package duck

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bruin-data/tripfacts/pkg/trip"
	"github.com/pkg/errors"
)

// FileSource streams a staged Parquet or CSV file through DuckDB's table functions.
type FileSource struct {
	client *Client
	family trip.Family
	path   string
}

func NewFileSource(client *Client, family trip.Family, path string) *FileSource {
	return &FileSource{client: client, family: family, path: path}
}

func (f *FileSource) Family() trip.Family {
	return f.family
}

func (f *FileSource) Name() string {
	return f.path
}

// relation returns the table function that reads the file, picked by extension.
func (f *FileSource) relation() string {
	quoted := "'" + strings.ReplaceAll(f.path, "'", "''") + "'"

	name := strings.ToLower(f.path)
	name = strings.TrimSuffix(name, ".gz")
	switch filepath.Ext(name) {
	case ".csv", ".tsv", ".txt":
		return fmt.Sprintf("read_csv_auto(%s, header = true)", quoted)
	default:
		return fmt.Sprintf("read_parquet(%s)", quoted)
	}
}

func (f *FileSource) Columns(ctx context.Context) ([]string, error) {
	rows, err := f.client.connection.QueryContext(ctx, "DESCRIBE SELECT * FROM "+f.relation())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to describe '%s'", f.path)
	}
	defer rows.Close()

	_, res, err := scanAll(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to describe '%s'", f.path)
	}

	columns := make([]string, 0, len(res))
	for _, r := range res {
		name, ok := r[0].(string)
		if !ok {
			return nil, errors.Errorf("unexpected column name %v in '%s'", r[0], f.path)
		}
		columns = append(columns, name)
	}
	return columns, nil
}

func (f *FileSource) Each(ctx context.Context, fn func(trip.RawRecord) error) error {
	rows, err := f.client.connection.QueryContext(ctx, "SELECT * FROM "+f.relation())
	if err != nil {
		return errors.Wrapf(err, "failed to read '%s'", f.path)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return errors.Wrapf(err, "failed to scan a row of '%s'", f.path)
		}

		record := make(trip.RawRecord, len(cols))
		for i, c := range cols {
			record[c] = values[i]
		}
		if err := fn(record); err != nil {
			return err
		}
	}

	return rows.Err()
}
