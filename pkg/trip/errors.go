package trip

import (
	"fmt"
	"strings"
)

// ConfigurationError means a family cannot be reconciled at all, e.g. a canonical
// field has neither a native column nor a default. It is raised before any row is read.
type ConfigurationError struct {
	Family Family
	Fields []Field
	Reason string
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid configuration for family '%s': %s", e.Family, e.Reason)
	}

	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}

	return fmt.Sprintf("invalid configuration for family '%s': %s: %s", e.Family, e.Reason, strings.Join(names, ", "))
}

// DataError points at a single value that does not conform to its canonical field.
type DataError struct {
	Family Family
	Row    int
	Column string
	Value  any
	Reason string
}

func (e *DataError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s row %d: %s", e.Family, e.Row, e.Reason)
	}

	return fmt.Sprintf("%s row %d, column '%s' (value %v): %s", e.Family, e.Row, e.Column, e.Value, e.Reason)
}
