package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched through errors.Is by the typed errors below.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("record not found")
	ErrConstraint        = errors.New("constraint violation")
	ErrDecoding          = errors.New("decoding error")
	ErrDependencyCycle   = errors.New("dependency cycle")
	ErrMissingPrimaryKey = errors.New("missing primary key")
)

// ConfigurationError is returned when a key mapping or association descriptor
// is malformed. It is detected at registration and retrying cannot fix it.
type ConfigurationError struct {
	// Subject names what was being registered (a Go type, a table, an association).
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Subject, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NotFoundError is returned when an update targets a row that does not exist.
type NotFoundError struct {
	Table string
	Key   []any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no row in %s with key %v", e.Table, e.Key)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConstraintKind classifies constraint violations reported by storage.
type ConstraintKind int

const (
	ConstraintOther ConstraintKind = iota
	ConstraintUnique
	ConstraintPrimaryKey
	ConstraintForeignKey
	ConstraintNotNull
	ConstraintCheck
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "unique"
	case ConstraintPrimaryKey:
		return "primary key"
	case ConstraintForeignKey:
		return "foreign key"
	case ConstraintNotNull:
		return "not null"
	case ConstraintCheck:
		return "check"
	default:
		return "constraint"
	}
}

// ConstraintViolationError wraps a driver error raised because a unique,
// foreign-key, not-null or check constraint was violated.
type ConstraintViolationError struct {
	Kind ConstraintKind
	// Constraint is the constraint or column name when the driver reports one.
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" constraint violated")
	if e.Constraint != "" {
		b.WriteString(" (")
		b.WriteString(e.Constraint)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConstraint.
func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraint }

// DecodingError is returned when a row cannot be decoded into a record:
// a mapped column is missing from the result set or its stored value
// cannot be converted to the field type.
type DecodingError struct {
	Table  string
	Column string
	Err    error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDecoding.
func (e *DecodingError) Is(target error) bool { return target == ErrDecoding }

// DependencyCycleError is returned by the batch helper when the declared
// foreign keys between the written tables form a cycle.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle between tables: %s", strings.Join(e.Cycle, " -> "))
}

// Is reports whether target is ErrDependencyCycle.
func (e *DependencyCycleError) Is(target error) bool { return target == ErrDependencyCycle }
