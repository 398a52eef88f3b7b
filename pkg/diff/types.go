package diff

import (
	"strings"

	"github.com/bruin-data/tripfacts/pkg/fact"
)

// TypeMapper translates between fact column types and a dialect's native type names.
type TypeMapper struct {
	native  map[fact.ColumnType]string
	mapping map[string]fact.ColumnType
}

func NewTypeMapper(dialect DatabaseDialect) *TypeMapper {
	switch dialect {
	case DialectPostgreSQL:
		return NewPostgresTypeMapper()
	case DialectBigQuery:
		return NewBigQueryTypeMapper()
	default:
		return NewDuckDBTypeMapper()
	}
}

func NewDuckDBTypeMapper() *TypeMapper {
	return &TypeMapper{
		native: map[fact.ColumnType]string{
			fact.TypeString:    "VARCHAR",
			fact.TypeInteger:   "BIGINT",
			fact.TypeFloat:     "DOUBLE",
			fact.TypeTimestamp: "TIMESTAMP",
			fact.TypeDate:      "DATE",
			fact.TypeBoolean:   "BOOLEAN",
		},
		mapping: map[string]fact.ColumnType{
			"varchar":                  fact.TypeString,
			"text":                     fact.TypeString,
			"string":                   fact.TypeString,
			"bigint":                   fact.TypeInteger,
			"integer":                  fact.TypeInteger,
			"int":                      fact.TypeInteger,
			"smallint":                 fact.TypeInteger,
			"tinyint":                  fact.TypeInteger,
			"hugeint":                  fact.TypeInteger,
			"ubigint":                  fact.TypeInteger,
			"uinteger":                 fact.TypeInteger,
			"double":                   fact.TypeFloat,
			"float":                    fact.TypeFloat,
			"real":                     fact.TypeFloat,
			"decimal":                  fact.TypeFloat,
			"timestamp":                fact.TypeTimestamp,
			"timestamp_us":             fact.TypeTimestamp,
			"timestamp with time zone": fact.TypeTimestamp,
			"timestamptz":              fact.TypeTimestamp,
			"datetime":                 fact.TypeTimestamp,
			"date":                     fact.TypeDate,
			"boolean":                  fact.TypeBoolean,
			"bool":                     fact.TypeBoolean,
		},
	}
}

func NewPostgresTypeMapper() *TypeMapper {
	return &TypeMapper{
		native: map[fact.ColumnType]string{
			fact.TypeString:    "TEXT",
			fact.TypeInteger:   "BIGINT",
			fact.TypeFloat:     "DOUBLE PRECISION",
			fact.TypeTimestamp: "TIMESTAMP",
			fact.TypeDate:      "DATE",
			fact.TypeBoolean:   "BOOLEAN",
		},
		mapping: map[string]fact.ColumnType{
			"text":                        fact.TypeString,
			"character varying":           fact.TypeString,
			"varchar":                     fact.TypeString,
			"character":                   fact.TypeString,
			"bigint":                      fact.TypeInteger,
			"integer":                     fact.TypeInteger,
			"smallint":                    fact.TypeInteger,
			"double precision":            fact.TypeFloat,
			"real":                        fact.TypeFloat,
			"numeric":                     fact.TypeFloat,
			"timestamp without time zone": fact.TypeTimestamp,
			"timestamp with time zone":    fact.TypeTimestamp,
			"timestamp":                   fact.TypeTimestamp,
			"date":                        fact.TypeDate,
			"boolean":                     fact.TypeBoolean,
		},
	}
}

func NewBigQueryTypeMapper() *TypeMapper {
	return &TypeMapper{
		native: map[fact.ColumnType]string{
			fact.TypeString:    "STRING",
			fact.TypeInteger:   "INTEGER",
			fact.TypeFloat:     "FLOAT",
			fact.TypeTimestamp: "TIMESTAMP",
			fact.TypeDate:      "DATE",
			fact.TypeBoolean:   "BOOLEAN",
		},
		mapping: map[string]fact.ColumnType{
			"string":     fact.TypeString,
			"integer":    fact.TypeInteger,
			"int64":      fact.TypeInteger,
			"float":      fact.TypeFloat,
			"float64":    fact.TypeFloat,
			"numeric":    fact.TypeFloat,
			"bignumeric": fact.TypeFloat,
			"timestamp":  fact.TypeTimestamp,
			"datetime":   fact.TypeTimestamp,
			"date":       fact.TypeDate,
			"boolean":    fact.TypeBoolean,
			"bool":       fact.TypeBoolean,
		},
	}
}

// NativeType returns the dialect's type name for a fact column type.
func (m *TypeMapper) NativeType(t fact.ColumnType) string {
	if native, ok := m.native[t]; ok {
		return native
	}
	return m.native[fact.TypeString]
}

// CommonType maps a native type name, with or without precision arguments, to a fact
// column type.
func (m *TypeMapper) CommonType(native string) (fact.ColumnType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(native))
	if idx := strings.Index(normalized, "("); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}

	t, ok := m.mapping[normalized]
	return t, ok
}
