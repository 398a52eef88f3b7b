package fact

import (
	"fmt"
	"strings"
)

// DataError is raised when a batch cannot be stored as-is. The table is left unchanged.
type DataError struct {
	Row    int
	TripID string
	Column string
	Value  any
	Reason string
}

func (e *DataError) Error() string {
	var b strings.Builder
	b.WriteString("invalid batch")
	if e.TripID != "" {
		fmt.Fprintf(&b, ", trip '%s'", e.TripID)
	} else if e.Row > 0 {
		fmt.Fprintf(&b, ", row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ", column '%s'", e.Column)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " (value %v)", e.Value)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)

	return b.String()
}

// ConsistencyError is raised when a merge would leave two rows with the same trip id.
// Nothing is committed when it is returned.
type ConsistencyError struct {
	Table   string
	TripIDs []string
	Reason  string
}

func (e *ConsistencyError) Error() string {
	ids := e.TripIDs
	suffix := ""
	if len(ids) > 5 {
		suffix = fmt.Sprintf(" and %d more", len(ids)-5)
		ids = ids[:5]
	}

	return fmt.Sprintf("consistency violation on '%s': %s: %s%s", e.Table, e.Reason, strings.Join(ids, ", "), suffix)
}
