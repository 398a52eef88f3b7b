package fact

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ColumnType is the store-independent type of a fact table column.
type ColumnType string

const (
	TypeString    ColumnType = "STRING"
	TypeInteger   ColumnType = "INTEGER"
	TypeFloat     ColumnType = "FLOAT"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeDate      ColumnType = "DATE"
	TypeBoolean   ColumnType = "BOOLEAN"

	// TypeNull marks a passthrough column that only holds nulls in a batch. It takes the
	// type of the stored column and is never created on its own.
	TypeNull ColumnType = "NULL"
)

type Column struct {
	Name string
	Type ColumnType
}

func (c Column) String() string {
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Schema is an ordered column list. Column names are compared case-insensitively.
type Schema []Column

func (s Schema) Names() []string {
	return lo.Map(s, func(c Column, _ int) string { return c.Name })
}

// Typed returns the schema without its untyped columns.
func (s Schema) Typed() Schema {
	return lo.Filter(s, func(c Column, _ int) bool { return c.Type != TypeNull })
}

// Index returns the position of the named column or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (s Schema) Lookup(name string) (Column, bool) {
	i := s.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return s[i], true
}

// Diff returns the columns of s that existing lacks, in s's order. A column present in
// both with different types is an error: columns are only ever added. Untyped columns
// are never added.
func (s Schema) Diff(existing Schema) ([]Column, error) {
	var added []Column
	for _, c := range s {
		current, ok := existing.Lookup(c.Name)
		if !ok {
			if c.Type != TypeNull {
				added = append(added, c)
			}
			continue
		}
		if !compatible(c.Type, current.Type) {
			return nil, &DataError{
				Column: c.Name,
				Reason: fmt.Sprintf("column type changed from %s to %s, columns cannot be altered", current.Type, c.Type),
			}
		}
	}

	return added, nil
}

// compatible reports whether values of the incoming type can be written to a column of
// the existing type.
func compatible(incoming, existing ColumnType) bool {
	if incoming == existing || incoming == TypeNull {
		return true
	}
	// integer extras widen into float columns
	return incoming == TypeInteger && existing == TypeFloat
}

// TypeOf returns the column type of a normalized value.
func TypeOf(v any) (ColumnType, bool) {
	switch v.(type) {
	case string:
		return TypeString, true
	case int64:
		return TypeInteger, true
	case float64:
		return TypeFloat, true
	case bool:
		return TypeBoolean, true
	case time.Time:
		return TypeTimestamp, true
	}
	return "", false
}

// conforms reports whether a normalized value may be stored in a column of type t.
func conforms(t ColumnType, v any) bool {
	if v == nil {
		return true
	}

	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		_, ok := v.(int64)
		return ok
	case TypeFloat:
		switch v.(type) {
		case float64, int64:
			return true
		}
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeTimestamp, TypeDate:
		_, ok := v.(time.Time)
		return ok
	}

	return false
}

// coerce converts a conforming value to the column's storage representation.
func coerce(t ColumnType, v any) any {
	if t == TypeFloat {
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	}
	return v
}
