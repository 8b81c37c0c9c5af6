package record

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/query"
)

// Validator is implemented by records that check themselves before being
// inserted or updated.
type Validator interface {
	Validate() error
}

// KeyGenerator is implemented by records whose primary key is generated by
// the application, e.g. a UUID. Insert calls GenerateKey when the key is
// zero.
type KeyGenerator interface {
	GenerateKey() error
}

// Insert writes rec as a new row. A zero auto key is omitted and read back
// from storage into rec. Constraint violations surface as
// *core.ConstraintViolationError.
func Insert[T any](ctx context.Context, ex core.Executor, rec *T) error {
	m, err := MappingOf[T]()
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("failed to insert into %s: nil record", m.table)
	}
	if err := validate(m, rec); err != nil {
		return err
	}

	rv := reflect.ValueOf(rec)
	auto, hasAuto := m.AutoKey()
	omitAuto := hasAuto && fieldOf(rv, auto).IsZero()

	if !hasAuto && keyMissing(m, rv) {
		if g, ok := any(rec).(KeyGenerator); ok {
			if err := g.GenerateKey(); err != nil {
				return fmt.Errorf("failed to generate key for %s: %w", m.table, err)
			}
		}
		if keyMissing(m, rv) {
			return fmt.Errorf("failed to insert into %s: %w", m.table, core.ErrMissingPrimaryKey)
		}
	}

	stmt := &query.Insert{Table: m.table}
	for _, c := range m.columns {
		if omitAuto && c == auto {
			continue
		}
		stmt.Columns = append(stmt.Columns, c.Name)
		stmt.Values = append(stmt.Values, fieldOf(rv, c).Interface())
	}

	d := ex.Dialect()
	if omitAuto && d.SupportsReturning {
		stmt.Returning = []string{auto.Name}
		sqlText, args := stmt.Build(d)
		rows, err := ex.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", m.table, err)
		}
		rs, err := readRows(ex, rows)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", m.table, err)
		}
		if len(rs.rows) != 1 {
			return fmt.Errorf("failed to insert into %s: expected one returned key, got %d rows", m.table, len(rs.rows))
		}
		if err := assign(fieldOf(rv, auto), rs.rows[0][0]); err != nil {
			return &core.DecodingError{Table: m.table, Column: auto.Name, Err: err}
		}
		return nil
	}

	sqlText, args := stmt.Build(d)
	res, err := ex.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", m.table, err)
	}
	if omitAuto {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read assigned key of %s: %w", m.table, err)
		}
		if err := assign(fieldOf(rv, auto), id); err != nil {
			return &core.DecodingError{Table: m.table, Column: auto.Name, Err: err}
		}
	}
	return nil
}

// Update writes every non-key column of rec to the row with rec's primary
// key. It returns *core.NotFoundError when no row has that key.
func Update[T any](ctx context.Context, ex core.Executor, rec *T) error {
	m, err := MappingOf[T]()
	if err != nil {
		return err
	}
	var cols []*Column
	for _, c := range m.columns {
		if !c.PrimaryKey {
			cols = append(cols, c)
		}
	}
	return update(ctx, ex, m, rec, cols)
}

// UpdateColumns writes only the named columns of rec. It returns
// *core.NotFoundError when no row has rec's primary key.
func UpdateColumns[T any](ctx context.Context, ex core.Executor, rec *T, columns ...string) error {
	m, err := MappingOf[T]()
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("failed to update %s: no columns given", m.table)
	}
	cols := make([]*Column, 0, len(columns))
	for _, name := range columns {
		c, ok := m.byName[name]
		if !ok {
			return fmt.Errorf("failed to update %s: unknown column %q", m.table, name)
		}
		if c.PrimaryKey {
			return fmt.Errorf("failed to update %s: primary key column %q cannot be updated", m.table, name)
		}
		cols = append(cols, c)
	}
	return update(ctx, ex, m, rec, cols)
}

func update(ctx context.Context, ex core.Executor, m *KeyMapping, rec any, cols []*Column) error {
	rv := reflect.ValueOf(rec)
	if rv.IsNil() {
		return fmt.Errorf("failed to update %s: nil record", m.table)
	}
	if err := validate(m, rec); err != nil {
		return err
	}
	if keyMissing(m, rv) {
		return fmt.Errorf("failed to update %s: %w", m.table, core.ErrMissingPrimaryKey)
	}

	key := keyValues(m, rv)
	where, err := keyFilter(m, key)
	if err != nil {
		return err
	}

	if len(cols) == 0 {
		// nothing to write for key-only tables; the row must still exist
		n, err := countWhere(ctx, ex, m, where)
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{Table: m.table, Key: key}
		}
		return nil
	}

	stmt := &query.Update{Table: m.table, Where: where}
	for _, c := range cols {
		stmt.Columns = append(stmt.Columns, c.Name)
		stmt.Values = append(stmt.Values, fieldOf(rv, c).Interface())
	}
	sqlText, args := stmt.Build(ex.Dialect())
	res, err := ex.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", m.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", m.table, err)
	}
	if n == 0 {
		return &core.NotFoundError{Table: m.table, Key: key}
	}
	return nil
}

// Delete removes the row with rec's primary key. Deleting a missing row is
// not an error; removed reports whether a row was actually deleted.
func Delete[T any](ctx context.Context, ex core.Executor, rec *T) (removed bool, err error) {
	m, err := MappingOf[T]()
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, fmt.Errorf("failed to delete from %s: nil record", m.table)
	}
	return deleteKey(ctx, ex, m, keyValues(m, reflect.ValueOf(rec)))
}

// DeleteKey removes the row of T with the given primary key values.
// Deleting a missing row is not an error.
func DeleteKey[T any](ctx context.Context, ex core.Executor, key ...any) (removed bool, err error) {
	m, err := MappingOf[T]()
	if err != nil {
		return false, err
	}
	return deleteKey(ctx, ex, m, key)
}

func deleteKey(ctx context.Context, ex core.Executor, m *KeyMapping, key []any) (bool, error) {
	where, err := keyFilter(m, key)
	if err != nil {
		return false, err
	}
	stmt := &query.Delete{Table: m.table, Where: where}
	sqlText, args := stmt.Build(ex.Dialect())
	res, err := ex.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", m.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", m.table, err)
	}
	return n > 0, nil
}

// Save updates the row with rec's primary key when it exists and inserts
// rec otherwise. A record without a key (zero auto key, or a zero key that
// GenerateKey will fill) is inserted directly.
func Save[T any](ctx context.Context, ex core.Executor, rec *T) error {
	m, err := MappingOf[T]()
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("failed to save %s: nil record", m.table)
	}
	if keyMissing(m, reflect.ValueOf(rec)) {
		return Insert(ctx, ex, rec)
	}
	err = Update(ctx, ex, rec)
	if errors.Is(err, core.ErrNotFound) {
		return Insert(ctx, ex, rec)
	}
	return err
}

// Exists reports whether a row with rec's primary key exists.
func Exists[T any](ctx context.Context, ex core.Executor, rec *T) (bool, error) {
	m, err := MappingOf[T]()
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	n, err := For[T]().FilterKey(keyValues(m, reflect.ValueOf(rec))...).FetchCount(ctx, ex)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func countWhere(ctx context.Context, ex core.Executor, m *KeyMapping, where query.Expr) (int64, error) {
	p := &plan{mapping: m, where: []query.Expr{where}}
	stmt, _ := p.selectStmt(nil, nil)
	sqlText, args := stmt.BuildCount(ex.Dialect())
	rows, err := ex.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", m.table, err)
	}
	rs, err := readRows(ex, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", m.table, err)
	}
	if len(rs.rows) != 1 {
		return 0, fmt.Errorf("failed to count %s: unexpected result shape", m.table)
	}
	return toInt64(rs.rows[0][0])
}

func validate(m *KeyMapping, rec any) error {
	if v, ok := rec.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid %s record: %w", m.table, err)
		}
	}
	return nil
}

// fieldOf returns the settable field of column c in rv (a *T).
func fieldOf(rv reflect.Value, c *Column) reflect.Value {
	return rv.Elem().FieldByIndex(c.index)
}

func keyMissing(m *KeyMapping, rv reflect.Value) bool {
	return slices.ContainsFunc(m.primaryKey, func(c *Column) bool {
		return fieldOf(rv, c).IsZero()
	})
}

func keyValues(m *KeyMapping, rv reflect.Value) []any {
	key := make([]any, len(m.primaryKey))
	for i, c := range m.primaryKey {
		key[i] = keyArg(fieldOf(rv, c).Interface())
	}
	return key
}
