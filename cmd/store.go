package cmd

import (
	"context"

	"github.com/bruin-data/tripfacts/pkg/bigquery"
	"github.com/bruin-data/tripfacts/pkg/config"
	duck "github.com/bruin-data/tripfacts/pkg/duckdb"
	"github.com/bruin-data/tripfacts/pkg/enrich"
	"github.com/bruin-data/tripfacts/pkg/fact"
	"github.com/bruin-data/tripfacts/pkg/postgres"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// newFactStore opens the store the environment points at. The returned function releases
// its connections.
func newFactStore(ctx context.Context, ft config.FactTable) (fact.Store, func(), error) {
	name := ft.TableName()

	switch ft.Type {
	case config.StoreMemory:
		return fact.NewMemoryStore(name), func() {}, nil

	case config.StoreDuckDB:
		client, err := duck.NewClient(duck.Config{
			Path:        ft.DuckDB.Path,
			Threads:     ft.DuckDB.Threads,
			MemoryLimit: ft.DuckDB.MemoryLimit,
		})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to open duckdb database '%s'", ft.DuckDB.Path)
		}
		return duck.NewFactStore(client, name), func() { _ = client.Close() }, nil

	case config.StorePostgres:
		client, err := postgres.NewClient(ctx, postgres.Config{
			Username:     ft.Postgres.Username,
			Password:     ft.Postgres.Password,
			Host:         ft.Postgres.Host,
			Port:         ft.Postgres.Port,
			Database:     ft.Postgres.Database,
			PoolMaxConns: ft.Postgres.PoolMaxConns,
			SslMode:      ft.Postgres.SslMode,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return postgres.NewFactStore(client, name), client.Close, nil

	case config.StoreBigQuery:
		client, err := bigquery.NewDB(&bigquery.Config{
			ProjectID:                        ft.BigQuery.ProjectID,
			CredentialsFilePath:              ft.BigQuery.ServiceAccountFile,
			CredentialsJSON:                  ft.BigQuery.ServiceAccountJSON,
			Location:                         ft.BigQuery.Location,
			UseApplicationDefaultCredentials: ft.BigQuery.UseApplicationDefaultCredentials,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create the bigquery client")
		}
		store, err := bigquery.NewFactStore(client, name)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	}

	return nil, nil, errors.Errorf("unsupported fact table type '%s'", ft.Type)
}

// newEnricher loads the reference tables. Payment types and vendor names fall back to the
// built-in mappings, zones have no default.
func newEnricher(fs afero.Fs, ref config.Reference) (*enrich.Enricher, error) {
	zones := enrich.Zones{}
	if ref.Zones != "" {
		loaded, err := enrich.LoadZones(fs, ref.Zones)
		if err != nil {
			return nil, err
		}
		zones = loaded
	}

	payments := enrich.DefaultPaymentTypes()
	if ref.PaymentTypes != "" {
		loaded, err := enrich.LoadPaymentTypes(fs, ref.PaymentTypes)
		if err != nil {
			return nil, err
		}
		payments = loaded
	}

	vendors := enrich.DefaultVendorNames().WithFallback(ref.UnknownVendor)
	if len(ref.Vendors) > 0 {
		vendors = enrich.NewVendorNames(ref.Vendors, ref.UnknownVendor)
	}

	return enrich.NewEnricher(zones, payments, vendors), nil
}
