package trip

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bruin-data/tripfacts/pkg/date"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Reconciler maps the native rows of every configured family onto Record.
type Reconciler struct {
	specs map[Family]FamilySpec
}

// NewReconciler checks that every canonical field of every family is either mapped
// to a native column or has a typed default.
func NewReconciler(specs ...FamilySpec) (*Reconciler, error) {
	if len(specs) == 0 {
		return nil, &ConfigurationError{Reason: "no families configured"}
	}

	r := &Reconciler{specs: make(map[Family]FamilySpec, len(specs))}
	for _, spec := range specs {
		if spec.Family == "" {
			return nil, &ConfigurationError{Reason: "family name is empty"}
		}
		if _, ok := r.specs[spec.Family]; ok {
			return nil, &ConfigurationError{Family: spec.Family, Reason: "family is configured more than once"}
		}

		if err := validateSpec(spec); err != nil {
			return nil, err
		}

		r.specs[spec.Family] = spec
	}

	return r, nil
}

func validateSpec(spec FamilySpec) error {
	var missing []Field
	for _, def := range canonicalFields {
		col, mapped := spec.Columns[def.Name]
		dv, defaulted := spec.Defaults[def.Name]
		if (!mapped || col == "") && !defaulted {
			missing = append(missing, def.Name)
			continue
		}

		if defaulted {
			if err := checkDefault(def, dv); err != nil {
				return &ConfigurationError{Family: spec.Family, Fields: []Field{def.Name}, Reason: err.Error()}
			}
		}
	}

	if len(missing) > 0 {
		return &ConfigurationError{Family: spec.Family, Fields: missing, Reason: "fields have neither a column nor a default"}
	}

	for f := range spec.Columns {
		if _, ok := fieldDef(f); !ok {
			return &ConfigurationError{Family: spec.Family, Fields: []Field{f}, Reason: "unknown canonical field"}
		}
	}

	return nil
}

func checkDefault(def FieldDef, v any) error {
	var ok bool
	switch def.Kind {
	case KindInteger:
		_, ok = v.(int64)
	case KindFloat:
		_, ok = v.(float64)
	case KindString:
		_, ok = v.(string)
	case KindTimestamp:
		_, ok = v.(time.Time)
	}

	if !ok {
		return fmt.Errorf("default %v (%T) is not a valid %s", v, v, def.Kind)
	}

	return nil
}

func fieldDef(f Field) (FieldDef, bool) {
	for _, def := range canonicalFields {
		if def.Name == f {
			return def, true
		}
	}
	return FieldDef{}, false
}

// CheckColumns verifies that a staged source of the given family carries every column
// the family's spec needs. Mapped columns that are absent are fine as long as the field
// has a default.
func (r *Reconciler) CheckColumns(family Family, columns []string) error {
	spec, ok := r.specs[family]
	if !ok {
		return &ConfigurationError{Family: family, Reason: "unknown family"}
	}

	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
		present[strings.ToLower(c)] = struct{}{}
	}
	has := func(col string) bool {
		if _, ok := present[col]; ok {
			return true
		}
		_, ok := present[strings.ToLower(col)]
		return ok
	}

	var missing []Field
	for _, def := range canonicalFields {
		col, mapped := spec.Columns[def.Name]
		if !mapped || has(col) {
			continue
		}
		if _, defaulted := spec.Defaults[def.Name]; !defaulted {
			missing = append(missing, def.Name)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Family: family, Fields: missing, Reason: "staged columns missing and no default defined"}
	}

	for _, col := range spec.Passthrough {
		if !has(col) {
			return &ConfigurationError{Family: family, Reason: fmt.Sprintf("passthrough column '%s' is not in the staged data", col)}
		}
	}

	return nil
}

// Reconcile conforms one raw row of a family. row is the ordinal reported in errors.
func (r *Reconciler) Reconcile(family Family, row int, raw RawRecord) (Record, error) {
	spec, ok := r.specs[family]
	if !ok {
		return Record{}, &ConfigurationError{Family: family, Reason: "unknown family"}
	}

	rec := Record{ServiceType: family}
	for _, def := range canonicalFields {
		value, err := resolve(spec, def, row, raw)
		if err != nil {
			return Record{}, err
		}
		rec.set(def.Name, value)
	}

	if len(spec.Passthrough) > 0 {
		rec.Extras = make(map[string]any, len(spec.Passthrough))
		for _, col := range spec.Passthrough {
			v, _ := lookup(raw, col)
			if t, isTime := v.(time.Time); isTime {
				v = normalizeTime(t)
			}
			rec.Extras[col] = v
		}
	}

	if rec.DropoffDatetime.Before(rec.PickupDatetime) {
		return Record{}, &DataError{
			Family: family,
			Row:    row,
			Column: spec.DropoffColumn(),
			Value:  rec.DropoffDatetime,
			Reason: "dropoff is before pickup " + rec.PickupDatetime.Format(time.RFC3339),
		}
	}

	return rec, nil
}

// ReconcileAll reconciles a slice of rows, stopping at the first failure.
func (r *Reconciler) ReconcileAll(family Family, raws []RawRecord) ([]Record, error) {
	out := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := r.Reconcile(family, i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func resolve(spec FamilySpec, def FieldDef, row int, raw RawRecord) (any, error) {
	col, mapped := spec.Columns[def.Name]
	dv, defaulted := spec.Defaults[def.Name]

	if !mapped {
		return dv, nil
	}

	v, present := lookup(raw, col)
	if !present {
		if defaulted {
			return dv, nil
		}
		return nil, &DataError{Family: spec.Family, Row: row, Column: col, Reason: "column is missing"}
	}

	value, err := conform(def.Kind, v)
	if err != nil {
		return nil, &DataError{Family: spec.Family, Row: row, Column: col, Value: v, Reason: err.Error()}
	}

	if value == nil {
		if def.Required {
			return nil, &DataError{Family: spec.Family, Row: row, Column: col, Reason: "required value is null"}
		}
		return zero(def.Kind), nil
	}

	return value, nil
}

func lookup(raw RawRecord, col string) (any, bool) {
	if v, ok := raw[col]; ok {
		return v, true
	}

	var candidates []string
	for k := range raw {
		if strings.EqualFold(k, col) {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Strings(candidates)
	return raw[candidates[0]], true
}

func zero(kind Kind) any {
	switch kind {
	case KindInteger:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindString:
		return ""
	case KindTimestamp:
		return time.Time{}
	}
	return nil
}

// conform returns the canonical typed value for v, nil for a null, or an error when
// v is not a member of the field's domain.
func conform(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case KindInteger:
		return conformInteger(v)
	case KindFloat:
		return conformFloat(v)
	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return nil, errors.Errorf("expected a string, got %T", v)
	case KindTimestamp:
		return conformTimestamp(v)
	}

	return nil, errors.Errorf("unsupported kind %s", kind)
}

// maxInt64Float is 2^63, the first float64 past math.MaxInt64.
const maxInt64Float = float64(1 << 63)

func conformInteger(v any) (any, error) {
	switch n := v.(type) {
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, errors.Errorf("integer %d is out of range", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, errors.Errorf("integer %d is out of range", n)
		}
		return int64(n), nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return cast.ToInt64E(n)
	case float32, float64:
		f := cast.ToFloat64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
			return nil, errors.Errorf("expected an integer, got %v", f)
		}
		return floatToInt64(f)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return nil, errors.Errorf("integer '%s' is out of range", n)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || math.Trunc(f) != f {
			return nil, errors.Errorf("expected an integer, got '%s'", n)
		}
		return floatToInt64(f)
	}

	return nil, errors.Errorf("expected an integer, got %T", v)
}

func floatToInt64(f float64) (any, error) {
	if f >= maxInt64Float || f < -maxInt64Float {
		return nil, errors.Errorf("integer %v is out of range", f)
	}
	return int64(f), nil
}

func conformFloat(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		var err error
		f, err = cast.ToFloat64E(n)
		if err != nil {
			return nil, err
		}
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		var err error
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Errorf("expected a number, got '%s'", n)
		}
	default:
		return nil, errors.Errorf("expected a number, got %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.Errorf("expected a finite number, got %v", f)
	}

	return f, nil
}

func conformTimestamp(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return normalizeTime(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		parsed, err := date.ParseTime(s)
		if err != nil {
			parsed, err = cast.ToTimeInDefaultLocationE(s, time.UTC)
			if err != nil {
				return nil, errors.Errorf("expected a timestamp, got '%s'", t)
			}
		}
		return normalizeTime(parsed), nil
	}

	return nil, errors.Errorf("expected a timestamp, got %T", v)
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
