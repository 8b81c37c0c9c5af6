package record

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// ColumnType is the storage class of a mapped column.
type ColumnType int

const (
	ColumnAny ColumnType = iota
	ColumnInteger
	ColumnReal
	ColumnText
	ColumnBlob
	ColumnBool
	ColumnTime
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "integer"
	case ColumnReal:
		return "real"
	case ColumnText:
		return "text"
	case ColumnBlob:
		return "blob"
	case ColumnBool:
		return "bool"
	case ColumnTime:
		return "time"
	default:
		return "any"
	}
}

// compatible reports whether a foreign key column of type t can reference a
// column of type u. ColumnAny (Scanner types) matches everything.
func (t ColumnType) compatible(u ColumnType) bool {
	return t == u || t == ColumnAny || u == ColumnAny
}

// Column describes one mapped column.
type Column struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	PrimaryKey bool
	// Auto marks a primary key column assigned by storage on insert.
	Auto bool
	// Field is the Go field name, dotted for fields of embedded structs.
	Field string

	index  []int
	goType reflect.Type
}

// GoType returns the Go type of the mapped field.
func (c *Column) GoType() reflect.Type {
	return c.goType
}

// ForeignKey declares that Columns of a record reference TargetColumns of
// another record type. Records declare their foreign keys through a
// ForeignKeys() []ForeignKey method, building each entry with References or
// ReferencesColumns.
type ForeignKey struct {
	Columns []string
	// TargetTable is filled in when the owning mapping is built.
	TargetTable string
	// TargetColumns defaults to the target's primary key.
	TargetColumns []string

	target reflect.Type
}

// Target returns the Go type of the referenced record.
func (fk ForeignKey) Target() reflect.Type {
	return fk.target
}

func (fk ForeignKey) String() string {
	return fmt.Sprintf("(%s) -> %s(%s)", joinNames(fk.Columns), fk.TargetTable, joinNames(fk.TargetColumns))
}

// References declares a foreign key from columns to the primary key of T.
func References[T any](columns ...string) ForeignKey {
	return ForeignKey{Columns: columns, target: typeOf[T]()}
}

// ReferencesColumns declares a foreign key from columns to targetColumns of T.
func ReferencesColumns[T any](columns, targetColumns []string) ForeignKey {
	return ForeignKey{Columns: columns, TargetColumns: targetColumns, target: typeOf[T]()}
}

// Tabler is implemented by records that name their table explicitly.
type Tabler interface {
	TableName() string
}

type foreignKeyer interface {
	ForeignKeys() []ForeignKey
}

// KeyMapping binds a record type to its table, columns and keys.
// It is immutable once built.
type KeyMapping struct {
	goType      reflect.Type
	table       string
	columns     []*Column
	byName      map[string]*Column
	primaryKey  []*Column
	foreignKeys []ForeignKey
}

// Type returns the record type.
func (m *KeyMapping) Type() reflect.Type {
	return m.goType
}

// Table returns the table name.
func (m *KeyMapping) Table() string {
	return m.table
}

// Columns returns the mapped columns in field order.
func (m *KeyMapping) Columns() []*Column {
	return m.columns
}

// Column returns the column with the given name.
func (m *KeyMapping) Column(name string) (*Column, bool) {
	c, ok := m.byName[name]
	return c, ok
}

// ColumnNames returns the column names in field order.
func (m *KeyMapping) ColumnNames() []string {
	return columnNames(m.columns)
}

// PrimaryKey returns the primary key column names.
func (m *KeyMapping) PrimaryKey() []string {
	return columnNames(m.primaryKey)
}

// AutoKey returns the storage-assigned primary key column, if any.
func (m *KeyMapping) AutoKey() (*Column, bool) {
	if len(m.primaryKey) == 1 && m.primaryKey[0].Auto {
		return m.primaryKey[0], true
	}
	return nil, false
}

// ForeignKeys returns the declared foreign keys with targets resolved.
func (m *KeyMapping) ForeignKeys() []ForeignKey {
	return m.foreignKeys
}

// ForeignKeysTo returns the foreign keys referencing table.
func (m *KeyMapping) ForeignKeysTo(table string) []ForeignKey {
	var out []ForeignKey
	for _, fk := range m.foreignKeys {
		if fk.TargetTable == table {
			out = append(out, fk)
		}
	}
	return out
}

func (m *KeyMapping) String() string {
	return fmt.Sprintf("%s(%s)", m.table, joinNames(m.ColumnNames()))
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}

func columnNames(cols []*Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	bytesType   = reflect.TypeOf([]byte(nil))
)

// wellKnownScanners maps database/sql null wrappers to their storage class.
var wellKnownScanners = map[reflect.Type]ColumnType{
	reflect.TypeOf(sql.NullString{}):  ColumnText,
	reflect.TypeOf(sql.NullInt64{}):   ColumnInteger,
	reflect.TypeOf(sql.NullInt32{}):   ColumnInteger,
	reflect.TypeOf(sql.NullInt16{}):   ColumnInteger,
	reflect.TypeOf(sql.NullByte{}):    ColumnInteger,
	reflect.TypeOf(sql.NullFloat64{}): ColumnReal,
	reflect.TypeOf(sql.NullBool{}):    ColumnBool,
	reflect.TypeOf(sql.NullTime{}):    ColumnTime,
}

// parseColumns reads the column layout of struct type t.
func parseColumns(t reflect.Type) ([]*Column, error) {
	var cols []*Column
	seen := make(map[string]string)

	var walk func(t reflect.Type, index []int, prefix string) error
	walk = func(t reflect.Type, index []int, prefix string) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag, hasTag := f.Tag.Lookup("db")
			if tag == "-" {
				continue
			}
			if !f.IsExported() {
				if hasTag {
					return fmt.Errorf("field %s%s is tagged but not exported", prefix, f.Name)
				}
				continue
			}

			idx := append(append([]int(nil), index...), i)
			if f.Anonymous && !hasTag && f.Type.Kind() == reflect.Struct && columnTypeOf(f.Type) < 0 {
				if err := walk(f.Type, idx, prefix+f.Name+"."); err != nil {
					return err
				}
				continue
			}

			name, opts := parseTag(tag)
			if name == "" {
				name = snakeCase(f.Name)
			}
			ft := f.Type
			nullable := false
			if ft.Kind() == reflect.Pointer {
				nullable = true
				ft = ft.Elem()
			}
			ct := columnTypeOf(ft)
			if ct < 0 {
				return fmt.Errorf("field %s%s has unsupported type %s; records hold scalar fields only", prefix, f.Name, f.Type)
			}
			if other, dup := seen[name]; dup {
				return fmt.Errorf("column %q is mapped by both %s and %s%s", name, other, prefix, f.Name)
			}
			seen[name] = prefix + f.Name

			col := &Column{
				Name:     name,
				Type:     ct,
				Nullable: nullable || isNullWrapper(ft),
				Field:    prefix + f.Name,
				index:    idx,
				goType:   f.Type,
			}
			for _, o := range opts {
				switch o {
				case "pk":
					col.PrimaryKey = true
				case "auto":
					col.Auto = true
				case "":
				default:
					return fmt.Errorf("field %s%s has unknown db tag option %q", prefix, f.Name, o)
				}
			}
			if col.Auto && (!col.PrimaryKey || ct != ColumnInteger) {
				return fmt.Errorf("field %s%s: auto requires an integer primary key", prefix, f.Name)
			}
			cols = append(cols, col)
		}
		return nil
	}

	if err := walk(t, nil, ""); err != nil {
		return nil, err
	}
	return cols, nil
}

// columnTypeOf returns the storage class of a (non-pointer) Go type, or -1
// when the type cannot be stored in a single column.
func columnTypeOf(t reflect.Type) ColumnType {
	if t == timeType {
		return ColumnTime
	}
	if ct, ok := wellKnownScanners[t]; ok {
		return ct
	}
	if reflect.PointerTo(t).Implements(scannerType) {
		return ColumnAny
	}
	if t == bytesType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8) {
		return ColumnBlob
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ColumnInteger
	case reflect.Float32, reflect.Float64:
		return ColumnReal
	case reflect.String:
		return ColumnText
	case reflect.Bool:
		return ColumnBool
	}
	return -1
}

func isNullWrapper(t reflect.Type) bool {
	_, ok := wellKnownScanners[t]
	return ok
}

func parseTag(tag string) (string, []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts[0], parts[1:]
}

// snakeCase converts a Go identifier to snake_case, keeping initialisms
// together: AuthorID -> author_id, HTTPServer -> http_server.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// defaultTableName is the snake_case type name plus "s".
func defaultTableName(t reflect.Type) string {
	return snakeCase(t.Name()) + "s"
}

func configError(subject, format string, args ...any) error {
	return &core.ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
