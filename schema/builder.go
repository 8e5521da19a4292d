package schema

import (
	"fmt"
	"strings"
)

// ResourceBuilder assembles a Resource definition. Definitions are built
// once at startup and registered; the engine never introspects Go types
// at runtime.
type ResourceBuilder struct {
	resource *Resource
	errors   []error
}

// Define starts a new resource definition
func Define(name string) *ResourceBuilder {
	return &ResourceBuilder{
		resource: &Resource{
			Name:              name,
			Table:             toTableName(name),
			Columns:           make([]*Column, 0),
			Relations:         make(map[string]*Relation),
			Hooks:             make(map[HookKind][]*Hook),
			columnsByProperty: make(map[string]*Column),
		},
	}
}

// Table overrides the derived table name
func (b *ResourceBuilder) Table(name string) *ResourceBuilder {
	b.resource.Table = name
	return b
}

// Column adds a column to the resource
func (b *ResourceBuilder) Column(col Column) *ResourceBuilder {
	if col.Name == "" {
		b.errors = append(b.errors, fmt.Errorf("resource %s: column with empty name", b.resource.Name))
		return b
	}
	if col.Property == "" {
		col.Property = col.Name
	}
	if _, exists := b.resource.columnsByProperty[col.Property]; exists {
		b.errors = append(b.errors, fmt.Errorf("resource %s: duplicate column property %s", b.resource.Name, col.Property))
		return b
	}
	c := col
	b.resource.Columns = append(b.resource.Columns, &c)
	b.resource.columnsByProperty[c.Property] = &c
	return b
}

// PrimaryKey adds a primary-key column. Generated marks keys the storage
// engine assigns (serial, identity).
func (b *ResourceBuilder) PrimaryKey(name string, typ ColumnType, generated bool) *ResourceBuilder {
	return b.Column(Column{Name: name, Type: typ, Primary: true, Generated: generated})
}

// Relation adds a relation to the resource
func (b *ResourceBuilder) Relation(rel Relation) *ResourceBuilder {
	if rel.Property == "" {
		b.errors = append(b.errors, fmt.Errorf("resource %s: relation with empty property", b.resource.Name))
		return b
	}
	if _, exists := b.resource.Relations[rel.Property]; exists {
		b.errors = append(b.errors, fmt.Errorf("resource %s: duplicate relation %s", b.resource.Name, rel.Property))
		return b
	}
	r := rel
	b.resource.Relations[r.Property] = &r
	return b
}

// Hook appends a lifecycle hook. Hooks of the same kind run serially in
// the order they were declared.
func (b *ResourceBuilder) Hook(kind HookKind, fn HookFunc) *ResourceBuilder {
	b.resource.Hooks[kind] = append(b.resource.Hooks[kind], &Hook{Kind: kind, Fn: fn})
	return b
}

// Build validates the definition and returns the resource
func (b *ResourceBuilder) Build() (*Resource, error) {
	r := b.resource

	if r.Name == "" {
		b.errors = append(b.errors, fmt.Errorf("resource with empty name"))
	}
	if len(r.Columns) == 0 {
		b.errors = append(b.errors, fmt.Errorf("resource %s: no columns", r.Name))
	}

	var primaries []*Column
	for _, col := range r.Columns {
		if col.Primary {
			primaries = append(primaries, col)
		}
	}
	switch len(primaries) {
	case 0:
		// Legal: identity-dependent operations will reject the type later.
	case 1:
		r.primary = primaries[0]
	default:
		b.errors = append(b.errors, fmt.Errorf("resource %s: %d primary-key columns, at most one allowed", r.Name, len(primaries)))
	}

	for _, rel := range r.Relations {
		if err := validateRelation(r.Name, rel); err != nil {
			b.errors = append(b.errors, err)
		}
	}

	if len(b.errors) > 0 {
		msgs := make([]string, len(b.errors))
		for i, err := range b.errors {
			msgs[i] = err.Error()
		}
		return nil, fmt.Errorf("resource definition failed with %d errors:\n%s",
			len(b.errors), strings.Join(msgs, "\n"))
	}

	return r, nil
}

// MustBuild builds the resource and panics on definition errors. Intended
// for startup-time registration where a bad definition is a programming
// error.
func (b *ResourceBuilder) MustBuild() *Resource {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

func validateRelation(resource string, rel *Relation) error {
	if rel.Target == "" {
		return fmt.Errorf("resource %s: relation %s has no target", resource, rel.Property)
	}
	switch rel.Kind {
	case OneToOne, OneToMany, ManyToOne:
		if rel.JoinColumn == "" {
			return fmt.Errorf("resource %s: relation %s (%s) requires a join column", resource, rel.Property, rel.Kind)
		}
	case ManyToMany:
		if rel.JoinTable == "" || rel.JoinColumn == "" || rel.InverseJoinColumn == "" {
			return fmt.Errorf("resource %s: relation %s (many_to_many) requires join table, join column and inverse join column", resource, rel.Property)
		}
	default:
		return fmt.Errorf("resource %s: relation %s has unknown kind", resource, rel.Property)
	}
	return nil
}

// toTableName converts a resource name to a table name (snake_case plural)
func toTableName(resourceName string) string {
	snake := toSnakeCase(resourceName)
	return pluralize(snake)
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
