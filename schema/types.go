// Package schema provides the metadata layer for loam: column, relation
// and lifecycle-hook descriptors, a fluent resource builder, and the
// registry the rest of the engine reads from.
package schema

import (
	"context"
	"fmt"
)

// ColumnType represents the storage type of a column
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeNumber
	TypeBoolean
	TypeDate
	TypeJSON
	TypeUUID
	TypeText
	TypeBlob
)

// String returns the string representation of the column type
func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeJSON:
		return "json"
	case TypeUUID:
		return "uuid"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// ParseColumnType converts a string to a ColumnType
func ParseColumnType(s string) (ColumnType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "number":
		return TypeNumber, nil
	case "boolean":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "json":
		return TypeJSON, nil
	case "uuid":
		return TypeUUID, nil
	case "text":
		return TypeText, nil
	case "blob":
		return TypeBlob, nil
	default:
		return 0, fmt.Errorf("unknown column type: %s", s)
	}
}

// Column describes one storage column of a resource
type Column struct {
	Name      string // storage name
	Property  string // in-memory field name; defaults to Name
	Type      ColumnType
	Nullable  bool
	Primary   bool
	Generated bool // value assigned by the storage engine
	Unique    bool
	Length    *int
	Precision *int
	Scale     *int
	Default   interface{}
}

// RelationKind represents the kind of relation between two resources
type RelationKind int

const (
	OneToOne RelationKind = iota
	OneToMany
	ManyToOne
	ManyToMany
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToOne:
		return "many_to_one"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Relation describes a relation held by a resource
type Relation struct {
	Property          string // field the resolved relation is assigned to
	Kind              RelationKind
	Target            string // target resource name
	JoinColumn        string // FK column; on the target for OneToOne/OneToMany, on the owner for ManyToOne
	JoinTable         string // ManyToMany only
	InverseJoinColumn string // ManyToMany only: join-table column pointing at the target
	Eager             bool
	Cascade           bool
}

// HookKind represents a lifecycle hook phase
type HookKind int

const (
	BeforeInsert HookKind = iota
	AfterInsert
	BeforeUpdate
	AfterUpdate
	BeforeRemove
	AfterRemove
)

// String returns the string representation of the hook kind
func (k HookKind) String() string {
	switch k {
	case BeforeInsert:
		return "before_insert"
	case AfterInsert:
		return "after_insert"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeRemove:
		return "before_remove"
	case AfterRemove:
		return "after_remove"
	default:
		return "unknown"
	}
}

// Before reports whether the hook runs before its statement. Before-phase
// hooks can veto the operation by returning an error; after-phase hooks
// cannot undo it.
func (k HookKind) Before() bool {
	return k == BeforeInsert || k == BeforeUpdate || k == BeforeRemove
}

// Mutable is the view of a hydrated record a hook may act on. It is
// implemented by entity.Record; declaring it here keeps hook descriptors
// in the metadata layer without a package cycle.
type Mutable interface {
	Type() string
	Get(property string) interface{}
	Set(property string, value interface{})
}

// HookFunc is a lifecycle hook body
type HookFunc func(ctx context.Context, rec Mutable) error

// Hook pairs a lifecycle phase with its body
type Hook struct {
	Kind HookKind
	Fn   HookFunc
}

// Resource is the complete metadata for one record type. Columns preserve
// declaration order so compiled statements are deterministic.
type Resource struct {
	Name      string
	Table     string
	Columns   []*Column
	Relations map[string]*Relation
	Hooks     map[HookKind][]*Hook

	columnsByProperty map[string]*Column
	primary           *Column
}

// Column returns the column backing the given property name
func (r *Resource) Column(property string) (*Column, bool) {
	c, ok := r.columnsByProperty[property]
	return c, ok
}

// PrimaryKey returns the primary-key column, or nil when the resource
// declares none
func (r *Resource) PrimaryKey() *Column {
	return r.primary
}

// Relation returns the relation descriptor for the given property name
func (r *Resource) Relation(property string) (*Relation, bool) {
	rel, ok := r.Relations[property]
	return rel, ok
}

// HasColumn returns true if the resource has a column for the property
func (r *Resource) HasColumn(property string) bool {
	_, ok := r.columnsByProperty[property]
	return ok
}
