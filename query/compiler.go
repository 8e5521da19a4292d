package query

import (
	"fmt"
	"strings"
)

// JoinKind represents the kind of SQL join
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
)

// String returns the string representation of the join kind
func (j JoinKind) String() string {
	switch j {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	case RightJoin:
		return "RIGHT"
	case FullJoin:
		return "FULL"
	default:
		return "INNER"
	}
}

// Join represents a SQL join clause
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	On    string
}

// Order represents one ORDER BY term
type Order struct {
	Column string
	Desc   bool
}

// Spec is a complete query specification. It is immutable once built; the
// compiler never modifies it.
type Spec struct {
	Table   string
	Select  []string // empty means *
	Joins   []Join
	Where   Predicate
	GroupBy []string
	Having  Predicate
	OrderBy []Order
	Limit   *int
	Offset  *int
}

// Assignment pairs a column with the value bound to its placeholder.
// Ordered slices rather than maps keep compiled output deterministic.
type Assignment struct {
	Column string
	Value  interface{}
}

// Compile compiles a SELECT specification into SQL and its ordered
// parameter list. Parameters are numbered $1..$n left to right across
// WHERE, then HAVING, then LIMIT and OFFSET.
func Compile(spec Spec) (string, []interface{}, error) {
	if spec.Table == "" {
		return "", nil, ErrEmptyTable
	}

	var sql strings.Builder
	args := make([]interface{}, 0)
	counter := 1

	sql.WriteString("SELECT ")
	if len(spec.Select) == 0 {
		sql.WriteString("*")
	} else {
		sql.WriteString(strings.Join(spec.Select, ", "))
	}
	sql.WriteString(" FROM ")
	sql.WriteString(spec.Table)

	for _, join := range spec.Joins {
		sql.WriteString(" ")
		sql.WriteString(join.Kind.String())
		sql.WriteString(" JOIN ")
		sql.WriteString(join.Table)
		if join.Alias != "" {
			sql.WriteString(" AS ")
			sql.WriteString(join.Alias)
		}
		sql.WriteString(" ON ")
		sql.WriteString(join.On)
	}

	if spec.Where != nil {
		whereSQL, err := compilePredicate(spec.Where, &counter, &args, false)
		if err != nil {
			return "", nil, fmt.Errorf("failed to compile WHERE: %w", err)
		}
		sql.WriteString(" WHERE ")
		sql.WriteString(whereSQL)
	}

	if len(spec.GroupBy) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(spec.GroupBy, ", "))
	}

	if spec.Having != nil {
		havingSQL, err := compilePredicate(spec.Having, &counter, &args, false)
		if err != nil {
			return "", nil, fmt.Errorf("failed to compile HAVING: %w", err)
		}
		sql.WriteString(" HAVING ")
		sql.WriteString(havingSQL)
	}

	if len(spec.OrderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		terms := make([]string, len(spec.OrderBy))
		for i, o := range spec.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = o.Column + " " + dir
		}
		sql.WriteString(strings.Join(terms, ", "))
	}

	if spec.Limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT $%d", counter))
		args = append(args, *spec.Limit)
		counter++
	}

	if spec.Offset != nil {
		sql.WriteString(fmt.Sprintf(" OFFSET $%d", counter))
		args = append(args, *spec.Offset)
		counter++
	}

	return sql.String(), args, nil
}

// CompileCount compiles a SELECT COUNT(*) over the table, sharing the
// predicate compiler with Compile
func CompileCount(table string, where Predicate) (string, []interface{}, error) {
	if table == "" {
		return "", nil, ErrEmptyTable
	}

	var sql strings.Builder
	args := make([]interface{}, 0)
	counter := 1

	sql.WriteString("SELECT COUNT(*) FROM ")
	sql.WriteString(table)

	if where != nil {
		whereSQL, err := compilePredicate(where, &counter, &args, false)
		if err != nil {
			return "", nil, fmt.Errorf("failed to compile WHERE: %w", err)
		}
		sql.WriteString(" WHERE ")
		sql.WriteString(whereSQL)
	}

	return sql.String(), args, nil
}

// CompileInsert compiles an INSERT from ordered column assignments. The
// optional returning list appends a RETURNING clause so storage-generated
// values can be read back from the same round trip.
func CompileInsert(table string, assigns []Assignment, returning []string) (string, []interface{}, error) {
	if table == "" {
		return "", nil, ErrEmptyTable
	}
	if len(assigns) == 0 {
		return "", nil, ErrNoAssignments
	}

	columns := make([]string, len(assigns))
	placeholders := make([]string, len(assigns))
	args := make([]interface{}, len(assigns))
	for i, a := range assigns {
		columns[i] = a.Column
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = a.Value
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	if len(returning) > 0 {
		sql += " RETURNING " + strings.Join(returning, ", ")
	}

	return sql, args, nil
}

// CompileUpdate compiles an UPDATE. A nil predicate is rejected: an
// unconstrained UPDATE would rewrite the entire table.
func CompileUpdate(table string, assigns []Assignment, where Predicate) (string, []interface{}, error) {
	if table == "" {
		return "", nil, ErrEmptyTable
	}
	if len(assigns) == 0 {
		return "", nil, ErrNoAssignments
	}
	if where == nil {
		return "", nil, fmt.Errorf("%w: UPDATE %s", ErrMissingPredicate, table)
	}

	args := make([]interface{}, 0, len(assigns))
	counter := 1

	sets := make([]string, len(assigns))
	for i, a := range assigns {
		sets[i] = fmt.Sprintf("%s = $%d", a.Column, counter)
		args = append(args, a.Value)
		counter++
	}

	whereSQL, err := compilePredicate(where, &counter, &args, false)
	if err != nil {
		return "", nil, fmt.Errorf("failed to compile WHERE: %w", err)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table,
		strings.Join(sets, ", "),
		whereSQL,
	)

	return sql, args, nil
}

// CompileDelete compiles a DELETE. A nil predicate is rejected: an
// unconstrained DELETE would empty the table.
func CompileDelete(table string, where Predicate) (string, []interface{}, error) {
	if table == "" {
		return "", nil, ErrEmptyTable
	}
	if where == nil {
		return "", nil, fmt.Errorf("%w: DELETE FROM %s", ErrMissingPredicate, table)
	}

	args := make([]interface{}, 0)
	counter := 1

	whereSQL, err := compilePredicate(where, &counter, &args, false)
	if err != nil {
		return "", nil, fmt.Errorf("failed to compile WHERE: %w", err)
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", table, whereSQL)

	return sql, args, nil
}
