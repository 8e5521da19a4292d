package query

import "errors"

// Specification errors. All are detected during compilation, before any
// statement reaches the database.
var (
	// ErrUnknownOperator is returned for an operator outside the closed set
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrInvalidArity is returned when an operator receives the wrong
	// number or shape of operands
	ErrInvalidArity = errors.New("invalid operand arity")

	// ErrEmptyInList is returned for IN with no values; compiling it
	// silently would produce invalid SQL
	ErrEmptyInList = errors.New("IN predicate with empty value list")

	// ErrEmptyGroup is returned for an AND/OR group with no children
	ErrEmptyGroup = errors.New("predicate group with no children")

	// ErrMissingPredicate is returned when an UPDATE or DELETE is compiled
	// without a WHERE clause; such a statement would affect the entire table
	ErrMissingPredicate = errors.New("statement requires a WHERE predicate")

	// ErrEmptyTable is returned when a specification names no table
	ErrEmptyTable = errors.New("specification has no table")

	// ErrNoAssignments is returned for an INSERT or UPDATE with no columns
	ErrNoAssignments = errors.New("statement has no column assignments")
)
