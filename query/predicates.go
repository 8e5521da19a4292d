// Package query compiles query specifications into parameterized SQL.
// Compilation is pure: the same specification always yields byte-identical
// SQL and parameter order, and nothing in the input is mutated.
package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpLike
	OpBetween
	OpIsNull
	OpIsNotNull
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpLike:
		return "LIKE"
	case OpBetween:
		return "BETWEEN"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// Conjunction joins the children of a predicate group
type Conjunction int

const (
	ConjAnd Conjunction = iota
	ConjOr
)

// String returns the SQL keyword for the conjunction
func (c Conjunction) String() string {
	if c == ConjOr {
		return "OR"
	}
	return "AND"
}

// Predicate is a node in a predicate tree: either a field comparison
// (*Condition) or a boolean combinator (*Group). The set is closed.
type Predicate interface {
	isPredicate()
}

// Condition represents a single field comparison
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

func (*Condition) isPredicate() {}

// Group combines child predicates with AND or OR
type Group struct {
	Conj  Conjunction
	Preds []Predicate
}

func (*Group) isPredicate() {}

// Eq builds a field = value condition
func Eq(field string, value interface{}) *Condition {
	return &Condition{Field: field, Operator: OpEqual, Value: value}
}

// Ne builds a field != value condition
func Ne(field string, value interface{}) *Condition {
	return &Condition{Field: field, Operator: OpNotEqual, Value: value}
}

// Gt builds a field > value condition
func Gt(field string, value interface{}) *Condition {
	return &Condition{Field: field, Operator: OpGreaterThan, Value: value}
}

// Gte builds a field >= value condition
func Gte(field string, value interface{}) *Condition {
	return &Condition{Field: field, Operator: OpGreaterThanOrEqual, Value: value}
}

// Lt builds a field < value condition
func Lt(field string, value interface{}) *Condition {
	return &Condition{Field: field, Operator: OpLessThan, Value: value}
}

// Lte builds a field <= value condition
func Lte(field string, value interface{}) *Condition {
	return &Condition{Field: field, Operator: OpLessThanOrEqual, Value: value}
}

// In builds a field IN (…) condition, one parameter per value
func In(field string, values ...interface{}) *Condition {
	return &Condition{Field: field, Operator: OpIn, Value: values}
}

// Like builds a field LIKE pattern condition
func Like(field string, pattern string) *Condition {
	return &Condition{Field: field, Operator: OpLike, Value: pattern}
}

// Between builds a field BETWEEN lo AND hi condition
func Between(field string, lo, hi interface{}) *Condition {
	return &Condition{Field: field, Operator: OpBetween, Value: []interface{}{lo, hi}}
}

// IsNull builds a field IS NULL condition
func IsNull(field string) *Condition {
	return &Condition{Field: field, Operator: OpIsNull}
}

// IsNotNull builds a field IS NOT NULL condition
func IsNotNull(field string) *Condition {
	return &Condition{Field: field, Operator: OpIsNotNull}
}

// And combines predicates with AND
func And(preds ...Predicate) *Group {
	return &Group{Conj: ConjAnd, Preds: preds}
}

// Or combines predicates with OR
func Or(preds ...Predicate) *Group {
	return &Group{Conj: ConjOr, Preds: preds}
}

// compilePredicate compiles a predicate node. nested is true when the node
// sits inside another group. A top-level group with more than one child is
// wrapped in a single parenthesis pair; a top-level single condition stays
// bare. The asymmetry is deliberate and pinned by tests.
func compilePredicate(p Predicate, counter *int, args *[]interface{}, nested bool) (string, error) {
	switch node := p.(type) {
	case *Condition:
		return compileCondition(node, counter, args)
	case *Group:
		if len(node.Preds) == 0 {
			return "", fmt.Errorf("%w: empty %s group", ErrEmptyGroup, node.Conj)
		}
		parts := make([]string, 0, len(node.Preds))
		for _, child := range node.Preds {
			sql, err := compilePredicate(child, counter, args, true)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		joined := strings.Join(parts, " "+node.Conj.String()+" ")
		if nested || len(node.Preds) > 1 {
			return "(" + joined + ")", nil
		}
		return joined, nil
	case nil:
		return "", ErrMissingPredicate
	default:
		return "", fmt.Errorf("unsupported predicate node %T", p)
	}
}

// compileCondition compiles a single comparison with parameterized values
func compileCondition(cond *Condition, counter *int, args *[]interface{}) (string, error) {
	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		*args = append(*args, cond.Value)
		sql := fmt.Sprintf("%s %s $%d", cond.Field, cond.Operator, *counter)
		*counter++
		return sql, nil

	case OpIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%w: IN requires a value list, got %T", ErrInvalidArity, cond.Value)
		}
		if len(values) == 0 {
			return "", fmt.Errorf("%w: field %s", ErrEmptyInList, cond.Field)
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", *counter)
			*counter++
		}
		return fmt.Sprintf("%s IN (%s)", cond.Field, strings.Join(placeholders, ", ")), nil

	case OpLike:
		*args = append(*args, cond.Value)
		sql := fmt.Sprintf("%s LIKE $%d", cond.Field, *counter)
		*counter++
		return sql, nil

	case OpBetween:
		values, ok := cond.Value.([]interface{})
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("%w: BETWEEN requires [lo, hi]", ErrInvalidArity)
		}
		*args = append(*args, values[0], values[1])
		sql := fmt.Sprintf("%s BETWEEN $%d AND $%d", cond.Field, *counter, *counter+1)
		*counter += 2
		return sql, nil

	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", cond.Field), nil

	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", cond.Field), nil

	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownOperator, cond.Operator)
	}
}
