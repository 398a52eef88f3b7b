package diff

import (
	"fmt"
	"strings"

	"github.com/bruin-data/tripfacts/pkg/fact"
)

// DatabaseDialect represents the SQL dialect for generating DDL statements.
type DatabaseDialect string

const (
	DialectPostgreSQL DatabaseDialect = "postgresql"
	DialectBigQuery   DatabaseDialect = "bigquery"
	DialectDuckDB     DatabaseDialect = "duckdb"
)

// AlterStatementGenerator generates the DDL that creates and extends the fact table.
type AlterStatementGenerator struct {
	dialect DatabaseDialect
	types   *TypeMapper
}

func NewAlterStatementGenerator(dialect DatabaseDialect) *AlterStatementGenerator {
	return &AlterStatementGenerator{
		dialect: dialect,
		types:   NewTypeMapper(dialect),
	}
}

// GenerateCreateTable renders CREATE TABLE IF NOT EXISTS for the schema. suffix is
// appended after the column list, e.g. a partitioning clause.
func (g *AlterStatementGenerator) GenerateCreateTable(table string, schema fact.Schema, suffix string) string {
	defs := make([]string, len(schema))
	for i, c := range schema {
		defs[i] = fmt.Sprintf("%s %s", g.QuoteIdentifier(c.Name), g.types.NativeType(c.Type))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", g.QuoteTable(table), strings.Join(defs, ",\n  "))
	if suffix != "" {
		stmt += " " + suffix
	}
	return stmt
}

// GenerateAddColumns renders the statements that append the given nullable columns.
func (g *AlterStatementGenerator) GenerateAddColumns(table string, columns []fact.Column) []string {
	if len(columns) == 0 {
		return []string{}
	}

	clauses := make([]string, len(columns))
	for i, c := range columns {
		clauses[i] = g.generateAddColumnClause(c)
	}

	if g.canCombineAlterClauses() {
		return []string{fmt.Sprintf("ALTER TABLE %s\n  %s", g.QuoteTable(table), strings.Join(clauses, ",\n  "))}
	}

	statements := make([]string, len(clauses))
	for i, clause := range clauses {
		statements[i] = fmt.Sprintf("ALTER TABLE %s %s", g.QuoteTable(table), clause)
	}
	return statements
}

func (g *AlterStatementGenerator) generateAddColumnClause(c fact.Column) string {
	clause := "ADD COLUMN "
	if g.dialect == DialectPostgreSQL {
		clause += "IF NOT EXISTS "
	}
	return clause + fmt.Sprintf("%s %s", g.QuoteIdentifier(c.Name), g.types.NativeType(c.Type))
}

// canCombineAlterClauses returns true if the dialect supports combining multiple ALTER clauses in one statement.
func (g *AlterStatementGenerator) canCombineAlterClauses() bool {
	switch g.dialect {
	case DialectPostgreSQL:
		return true
	case DialectDuckDB:
		// DuckDB only supports one ALTER command per statement
		return false
	case DialectBigQuery:
		return true
	default:
		return false
	}
}

// QuoteIdentifier quotes a single identifier based on the database dialect.
func (g *AlterStatementGenerator) QuoteIdentifier(identifier string) string {
	if strings.HasPrefix(identifier, "\"") && strings.HasSuffix(identifier, "\"") {
		return identifier
	}
	if strings.HasPrefix(identifier, "`") && strings.HasSuffix(identifier, "`") {
		return identifier
	}

	if g.dialect == DialectBigQuery {
		return fmt.Sprintf("`%s`", strings.ReplaceAll(identifier, "`", ""))
	}
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(identifier, "\"", "\"\""))
}

// QuoteTable quotes every part of a dotted table name.
func (g *AlterStatementGenerator) QuoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = g.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (g *AlterStatementGenerator) Types() *TypeMapper {
	return g.types
}
