package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the data store's error taxonomy (spec.md §7). Every
// operation-specific error wraps one of these with fmt.Errorf("%w") so
// callers can test with errors.Is/errors.As instead of type-switching.
var (
	// ErrNotFound indicates an addressed key does not exist in a manager or schema.
	ErrNotFound = errors.New("not found")

	// ErrUnexpectedResult indicates a query returned more rows than expected,
	// e.g. a scalar attribute with more than one stored value.
	ErrUnexpectedResult = errors.New("unexpected result")

	// ErrMissingKey indicates an insert of an entity without a unique name.
	ErrMissingKey = errors.New("missing key")

	// ErrAlreadyExists indicates an insert collided with an existing
	// (name, publish_date) or similar uniqueness constraint.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCorruptAttribute indicates a recomputed checksum does not match the
	// checksum stored on the attribute.
	ErrCorruptAttribute = errors.New("corrupt attribute checksum")

	// ErrNonExistentUser indicates a flush was attempted without a user bound
	// to the current session.
	ErrNonExistentUser = errors.New("no current user bound to session")

	// ErrInvalidEntitySchema indicates an entity was bound to a non-published schema.
	ErrInvalidEntitySchema = errors.New("entity schema is not published")

	// ErrConstraint indicates a value violates an attribute's bounds,
	// validator regex, or choice enumeration.
	ErrConstraint = errors.New("constraint violation")
)

// NotFoundError reports that key was not found in what (a manager name, a
// schema name, or similar addressing scope).
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no %s %q", ErrNotFound, e.What, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnexpectedResultError reports that a scalar read found more than one row.
type UnexpectedResultError struct {
	Entity    string
	Attribute string
	Count     int
}

func (e *UnexpectedResultError) Error() string {
	return fmt.Sprintf("%s: entity %q attribute %q has %d values, expected at most 1",
		ErrUnexpectedResult, e.Entity, e.Attribute, e.Count)
}

func (e *UnexpectedResultError) Unwrap() error { return ErrUnexpectedResult }

// AlreadyExistsError reports a uniqueness collision on insert.
type AlreadyExistsError struct {
	What string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrAlreadyExists, e.What, e.Key)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// CorruptAttributeError reports a checksum mismatch detected on an attribute.
type CorruptAttributeError struct {
	SchemaName    string
	AttributeName string
	Stored        string
	Recomputed    string
}

func (e *CorruptAttributeError) Error() string {
	return fmt.Sprintf("%s: %s.%s stored=%s recomputed=%s",
		ErrCorruptAttribute, e.SchemaName, e.AttributeName, e.Stored, e.Recomputed)
}

func (e *CorruptAttributeError) Unwrap() error { return ErrCorruptAttribute }

// InvalidEntitySchemaError reports that an entity was created against a
// schema that is not in the published state.
type InvalidEntitySchemaError struct {
	SchemaName string
	State      SchemaState
}

func (e *InvalidEntitySchemaError) Error() string {
	return fmt.Sprintf("%s: schema %q is %s, not published", ErrInvalidEntitySchema, e.SchemaName, e.State)
}

func (e *InvalidEntitySchemaError) Unwrap() error { return ErrInvalidEntitySchema }

// ConstraintError reports a value write that violates an attribute's bounds,
// validator, or choice enumeration. Fields mirror spec.md §4.4's
// (schema, attribute, bound, operator, interpreted, value) tuple.
type ConstraintError struct {
	SchemaName    string
	AttributeName string
	Bound         string // human label: "value_min", "value_max", "validator", "choices"
	Operator      string // ">=", "<=", "matches", "in"
	Interpreted   interface{}
	Value         interface{}
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s.%s: %v %s %v (value=%v)",
		ErrConstraint, e.SchemaName, e.AttributeName, e.Interpreted, e.Operator, e.Bound, e.Value)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraint }

// NewConstraintError is the idiomatic constructor used by internal/validation.
func NewConstraintError(schemaName, attrName, bound, operator string, interpreted, value interface{}) error {
	return &ConstraintError{
		SchemaName:    schemaName,
		AttributeName: attrName,
		Bound:         bound,
		Operator:      operator,
		Interpreted:   interpreted,
		Value:         value,
	}
}
