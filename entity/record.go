// Package entity implements the unit of work: hydration of rows into
// records, an identity map guaranteeing one live record per persisted
// identity, and the find/save/remove operations built on the query
// compiler and database adapter.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Record is a hydrated instance of a registered record type. Pointer
// identity is object identity: within one Manager, two fetches of the
// same primary key return the same *Record.
type Record struct {
	typ       string
	values    map[string]interface{}
	relations map[string]interface{}
}

// NewRecord creates an empty record of the given type
func NewRecord(typeName string) *Record {
	return &Record{
		typ:       typeName,
		values:    make(map[string]interface{}),
		relations: make(map[string]interface{}),
	}
}

// Type returns the record's type name
func (r *Record) Type() string {
	return r.typ
}

// Get returns the value of a property, or nil when unset
func (r *Record) Get(property string) interface{} {
	return r.values[property]
}

// Set assigns a property value
func (r *Record) Set(property string, value interface{}) {
	r.values[property] = value
}

// Has reports whether the property has been assigned at all. A property
// explicitly set to nil counts as assigned.
func (r *Record) Has(property string) bool {
	_, ok := r.values[property]
	return ok
}

// Unset removes a property assignment
func (r *Record) Unset(property string) {
	delete(r.values, property)
}

// Properties returns the assigned property names
func (r *Record) Properties() []string {
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	return names
}

// String returns a property as a string, with ok=false when unset or of
// another type
func (r *Record) String(property string) (string, bool) {
	v, ok := r.values[property].(string)
	return v, ok
}

// Int returns a numeric property as int64
func (r *Record) Int(property string) (int64, bool) {
	switch v := r.values[property].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Float returns a numeric property as float64
func (r *Record) Float(property string) (float64, bool) {
	switch v := r.values[property].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean property
func (r *Record) Bool(property string) (bool, bool) {
	v, ok := r.values[property].(bool)
	return v, ok
}

// Time returns a date property
func (r *Record) Time(property string) (time.Time, bool) {
	v, ok := r.values[property].(time.Time)
	return v, ok
}

// UUID returns a uuid property
func (r *Record) UUID(property string) (uuid.UUID, bool) {
	v, ok := r.values[property].(uuid.UUID)
	return v, ok
}

// Relation returns a loaded relation value: a *Record or nil for
// to-one relations, a []*Record for to-many relations
func (r *Record) Relation(name string) (interface{}, bool) {
	v, ok := r.relations[name]
	return v, ok
}

// SetRelation assigns a resolved relation value
func (r *Record) SetRelation(name string, value interface{}) {
	r.relations[name] = value
}
