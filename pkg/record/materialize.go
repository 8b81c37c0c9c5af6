package record

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// resultSet is a fully read statement result.
type resultSet struct {
	columns map[string]int
	rows    [][]any
}

// readRows reads and closes rows. Errors reported while iterating are
// classified by ex when it can.
func readRows(ex core.Executor, rows *sql.Rows) (*resultSet, error) {
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	rs := &resultSet{columns: make(map[string]int, len(names))}
	for i, n := range names {
		if _, dup := rs.columns[n]; !dup {
			rs.columns[n] = i
		}
	}

	for rows.Next() {
		raw := make([]any, len(names))
		dest := make([]any, len(names))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rs.rows = append(rs.rows, raw)
	}
	if err := rows.Err(); err != nil {
		if c, ok := ex.(core.ErrorClassifier); ok {
			err = c.ClassifyError(err)
		}
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rs, nil
}

// decodeRecord builds a new *T for mapping m from the columns named
// prefix+column of raw.
func decodeRecord(m *KeyMapping, rs *resultSet, prefix string, raw []any) (reflect.Value, error) {
	rec := reflect.New(m.goType)
	for _, c := range m.columns {
		idx, ok := rs.columns[prefix+c.Name]
		if !ok {
			return reflect.Value{}, &core.DecodingError{Table: m.table, Column: c.Name, Err: errors.New("column missing from result set")}
		}
		if err := assign(rec.Elem().FieldByIndex(c.index), raw[idx]); err != nil {
			return reflect.Value{}, &core.DecodingError{Table: m.table, Column: c.Name, Err: err}
		}
	}
	return rec, nil
}

// allNull reports whether every primary key column under prefix is NULL,
// which is how a LEFT JOIN reports a missing related row.
func allNull(m *KeyMapping, rs *resultSet, prefix string, raw []any) bool {
	for _, c := range m.primaryKey {
		if idx, ok := rs.columns[prefix+c.Name]; ok && raw[idx] != nil {
			return false
		}
	}
	return true
}

// decodeValue converts a driver value to Go type t.
func decodeValue(t reflect.Type, src any) (any, error) {
	v := reflect.New(t).Elem()
	if err := assign(v, src); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// assign stores the driver value src into dst.
func assign(dst reflect.Value, src any) error {
	if dst.Kind() == reflect.Pointer {
		if src == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	if dst.CanAddr() {
		if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
			if err := sc.Scan(src); err != nil {
				return fmt.Errorf("cannot scan %T into %s: %w", src, dst.Type(), err)
			}
			return nil
		}
	}

	if src == nil {
		return fmt.Errorf("NULL stored in non-nullable %s field", dst.Type())
	}

	if dst.Type() == timeType {
		t, err := toTime(src)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(src)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(src)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(src)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.Bool:
		b, err := toBool(src)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.String:
		switch s := src.(type) {
		case string:
			dst.SetString(s)
		case []byte:
			dst.SetString(string(s))
		default:
			return fmt.Errorf("cannot convert %T to %s", src, dst.Type())
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported field type %s", dst.Type())
		}
		var b []byte
		switch s := src.(type) {
		case []byte:
			b = append([]byte(nil), s...)
		case string:
			b = []byte(s)
		default:
			return fmt.Errorf("cannot convert %T to %s", src, dst.Type())
		}
		dst.Set(reflect.ValueOf(b).Convert(dst.Type()))
	default:
		sv := reflect.ValueOf(src)
		if !sv.Type().ConvertibleTo(dst.Type()) {
			return fmt.Errorf("cannot convert %T to %s", src, dst.Type())
		}
		dst.Set(sv.Convert(dst.Type()))
	}
	return nil
}

func toInt64(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	}
	rv := reflect.ValueOf(src)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", src)
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to integer", s)
	}
	return n, nil
}

func toFloat64(src any) (float64, error) {
	switch v := src.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return parseFloat(string(v))
	case string:
		return parseFloat(v)
	}
	return 0, fmt.Errorf("cannot convert %T to float", src)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to float", s)
	}
	return f, nil
}

func toBool(src any) (bool, error) {
	switch v := src.(type) {
	case bool:
		return v, nil
	case int64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case []byte:
		return parseBool(string(v))
	case string:
		return parseBool(v)
	}
	return false, fmt.Errorf("cannot convert %v (%T) to bool", src, src)
}

func parseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("cannot convert %q to bool", s)
	}
	return b, nil
}

// timeLayouts are the textual time formats SQLite-family drivers store.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

func toTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time", src)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

// fieldValues returns the values of the named columns of rec (a *T).
func fieldValues(m *KeyMapping, rec reflect.Value, columns []string) []any {
	out := make([]any, len(columns))
	for i, name := range columns {
		out[i] = rec.Elem().FieldByIndex(m.byName[name].index).Interface()
	}
	return out
}

// keyOf renders key values as a map key. ok is false when any value is
// NULL, since NULL never matches a key.
func keyOf(values []any) (string, bool) {
	var b strings.Builder
	for i, v := range values {
		s, ok := keyPart(v)
		if !ok {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(s)
	}
	return b.String(), true
}

func keyPart(v any) (string, bool) {
	if vr, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", false
		}
		dv, err := vr.Value()
		if err != nil || dv == nil {
			return "", false
		}
		v = dv
	}

	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "", false
	}
	if rv.Type() == timeType {
		return rv.Interface().(time.Time).UTC().Format(time.RFC3339Nano), true
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), true
		}
	}
	return fmt.Sprintf("%v", rv.Interface()), true
}

// keyArg returns v as a statement argument, dereferencing pointers.
func keyArg(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if _, ok := rv.Interface().(driver.Valuer); ok {
			return rv.Interface()
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
