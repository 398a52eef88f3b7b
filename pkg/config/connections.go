package config

import (
	"fmt"
	"strings"
)

const (
	StoreDuckDB   = "duckdb"
	StorePostgres = "postgres"
	StoreBigQuery = "bigquery"
	StoreMemory   = "memory"

	DefaultFactTable = "trips.fact_trips"
)

type DuckDBConnection struct {
	Path        string `yaml:"path" validate:"required" jsonschema:"required,description=DuckDB database file"`
	Threads     int    `yaml:"threads,omitempty" validate:"gte=0"`
	MemoryLimit string `yaml:"memory_limit,omitempty"`
}

type PostgresConnection struct {
	Host         string `yaml:"host" validate:"required" jsonschema:"required"`
	Port         int    `yaml:"port" validate:"required,gt=0,lte=65535"`
	Username     string `yaml:"username" validate:"required"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database" validate:"required"`
	SslMode      string `yaml:"ssl_mode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	PoolMaxConns int    `yaml:"pool_max_conns,omitempty" validate:"gte=0"`
}

type BigQueryConnection struct {
	ProjectID                        string `yaml:"project_id" validate:"required" jsonschema:"required"`
	ServiceAccountFile               string `yaml:"service_account_file,omitempty"`
	ServiceAccountJSON               string `yaml:"service_account_json,omitempty"`
	UseApplicationDefaultCredentials bool   `yaml:"use_application_default_credentials,omitempty"`
	Location                         string `yaml:"location,omitempty"`
}

// FactTable says where the fact table lives. Exactly the connection matching Type is used.
type FactTable struct {
	Type     string              `yaml:"type" validate:"required,oneof=duckdb postgres bigquery memory" jsonschema:"required,enum=duckdb,enum=postgres,enum=bigquery,enum=memory"`
	Name     string              `yaml:"name,omitempty"`
	DuckDB   *DuckDBConnection   `yaml:"duckdb,omitempty" validate:"required_if=Type duckdb"`
	Postgres *PostgresConnection `yaml:"postgres,omitempty" validate:"required_if=Type postgres"`
	BigQuery *BigQueryConnection `yaml:"bigquery,omitempty" validate:"required_if=Type bigquery"`
}

// TableName returns the configured table, or the default one.
func (f FactTable) TableName() string {
	if strings.TrimSpace(f.Name) == "" {
		return DefaultFactTable
	}
	return f.Name
}

func (f FactTable) String() string {
	switch f.Type {
	case StoreDuckDB:
		if f.DuckDB != nil {
			return fmt.Sprintf("duckdb:%s/%s", f.DuckDB.Path, f.TableName())
		}
	case StorePostgres:
		if f.Postgres != nil {
			return fmt.Sprintf("postgres://%s:%d/%s/%s", f.Postgres.Host, f.Postgres.Port, f.Postgres.Database, f.TableName())
		}
	case StoreBigQuery:
		if f.BigQuery != nil {
			return fmt.Sprintf("bigquery:%s.%s", f.BigQuery.ProjectID, f.TableName())
		}
	}
	return fmt.Sprintf("%s:%s", f.Type, f.TableName())
}
