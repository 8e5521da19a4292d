package entity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vlodia/loam/adapter"
	"github.com/vlodia/loam/query"
	"github.com/vlodia/loam/schema"
)

// identityKey addresses one persisted record identity
type identityKey struct {
	typ string
	key string
}

// Manager is a unit of work. It owns an identity map scoped to its own
// lifetime and executes every statement through one adapter executor
// (a connection or an open transaction). A Manager is not safe for
// concurrent use; concurrent flows take separate Manager instances.
type Manager struct {
	registry *schema.Registry
	exec     adapter.Executor
	identity map[identityKey]*Record
}

// NewManager creates a unit of work over the given metadata and executor
func NewManager(registry *schema.Registry, exec adapter.Executor) *Manager {
	return &Manager{
		registry: registry,
		exec:     exec,
		identity: make(map[identityKey]*Record),
	}
}

// Registry returns the metadata registry
func (m *Manager) Registry() *schema.Registry {
	return m.registry
}

// Executor returns the bound executor
func (m *Manager) Executor() adapter.Executor {
	return m.exec
}

// Bind switches the executor, typically onto an open transaction. The
// identity map is preserved: the unit of work continues.
func (m *Manager) Bind(exec adapter.Executor) {
	m.exec = exec
}

// Clear empties the identity map, ending the current unit of work
func (m *Manager) Clear() {
	m.identity = make(map[identityKey]*Record)
}

// FindOptions narrows a Find
type FindOptions struct {
	Select  []string
	Where   query.Predicate
	OrderBy []query.Order
	Limit   *int
	Offset  *int
}

// Find compiles and executes a SELECT for the type and hydrates each row.
// Rows whose primary key is already live in the identity map merge into
// and yield the existing record. Results keep the database's row order.
func (m *Manager) Find(ctx context.Context, typeName string, opts FindOptions) ([]*Record, error) {
	res, err := m.resource(typeName)
	if err != nil {
		return nil, err
	}

	spec := query.Spec{
		Table:   res.Table,
		Select:  opts.Select,
		Where:   opts.Where,
		OrderBy: opts.OrderBy,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
	sqlText, args, err := query.Compile(spec)
	if err != nil {
		return nil, err
	}

	result, err := m.exec.Execute(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(result.Rows))
	for _, row := range result.Rows {
		rec, err := m.hydrate(res, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindOne returns the first matching record, or nil when nothing matches.
// Absence is a result, not an error.
func (m *Manager) FindOne(ctx context.Context, typeName string, opts FindOptions) (*Record, error) {
	one := 1
	opts.Limit = &one
	records, err := m.Find(ctx, typeName, opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindByID returns the record with the given primary key, or nil when it
// does not exist
func (m *Manager) FindByID(ctx context.Context, typeName string, id interface{}) (*Record, error) {
	res, err := m.resource(typeName)
	if err != nil {
		return nil, err
	}
	pk := res.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKeyColumn, typeName)
	}
	return m.FindOne(ctx, typeName, FindOptions{Where: query.Eq(pk.Name, id)})
}

// Count returns the number of rows matching the predicate
func (m *Manager) Count(ctx context.Context, typeName string, where query.Predicate) (int64, error) {
	res, err := m.resource(typeName)
	if err != nil {
		return 0, err
	}

	sqlText, args, err := query.CompileCount(res.Table, where)
	if err != nil {
		return 0, err
	}

	result, err := m.exec.Execute(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}
	return countFromResult(result)
}

// Exists reports whether any row matches the predicate
func (m *Manager) Exists(ctx context.Context, typeName string, where query.Predicate) (bool, error) {
	n, err := m.Count(ctx, typeName, where)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Save persists the record: the insert path when its primary-key value is
// absent or nil, the update path otherwise
func (m *Manager) Save(ctx context.Context, rec *Record) error {
	res, err := m.resource(rec.Type())
	if err != nil {
		return err
	}
	pk := res.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKeyColumn, rec.Type())
	}

	if rec.Get(pk.Property) == nil {
		return m.insert(ctx, res, pk, rec)
	}
	return m.update(ctx, res, pk, rec)
}

func (m *Manager) insert(ctx context.Context, res *schema.Resource, pk *schema.Column, rec *Record) error {
	if err := m.runHooks(ctx, res, schema.BeforeInsert, rec); err != nil {
		return err
	}

	// Client-side key generation for non-generated uuid primaries.
	if !pk.Generated && pk.Type == schema.TypeUUID && rec.Get(pk.Property) == nil {
		rec.Set(pk.Property, uuid.New())
	}

	// Assignments come after the before-hooks so hook-assigned properties
	// are persisted. Declaration order keeps the statement deterministic.
	var assigns []query.Assignment
	for _, col := range res.Columns {
		if col.Generated {
			continue
		}
		if rec.Has(col.Property) {
			assigns = append(assigns, query.Assignment{Column: col.Name, Value: rec.Get(col.Property)})
		}
	}

	var returning []string
	if pk.Generated {
		returning = []string{pk.Name}
	}

	sqlText, args, err := query.CompileInsert(res.Table, assigns, returning)
	if err != nil {
		return err
	}

	result, err := m.exec.Execute(ctx, sqlText, args)
	if err != nil {
		return err
	}

	if pk.Generated {
		if len(result.Rows) == 0 {
			return fmt.Errorf("insert into %s returned no generated key", res.Table)
		}
		converted, err := convertValue(pk, result.Rows[0][pk.Name])
		if err != nil {
			return err
		}
		rec.Set(pk.Property, converted)
	}

	m.register(res.Name, rec.Get(pk.Property), rec)

	return m.runHooks(ctx, res, schema.AfterInsert, rec)
}

func (m *Manager) update(ctx context.Context, res *schema.Resource, pk *schema.Column, rec *Record) error {
	if err := m.runHooks(ctx, res, schema.BeforeUpdate, rec); err != nil {
		return err
	}

	var assigns []query.Assignment
	for _, col := range res.Columns {
		if col.Primary || col.Generated {
			continue
		}
		if rec.Has(col.Property) {
			assigns = append(assigns, query.Assignment{Column: col.Name, Value: rec.Get(col.Property)})
		}
	}

	pkVal := rec.Get(pk.Property)
	if len(assigns) > 0 {
		sqlText, args, err := query.CompileUpdate(res.Table, assigns, query.Eq(pk.Name, pkVal))
		if err != nil {
			return err
		}
		if _, err := m.exec.Execute(ctx, sqlText, args); err != nil {
			return err
		}
	}

	m.register(res.Name, pkVal, rec)

	return m.runHooks(ctx, res, schema.AfterUpdate, rec)
}

// Remove deletes the record by primary key and evicts it from the
// identity map. An absent key is a specification error; no statement is
// issued.
func (m *Manager) Remove(ctx context.Context, rec *Record) error {
	res, err := m.resource(rec.Type())
	if err != nil {
		return err
	}
	pk := res.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKeyColumn, rec.Type())
	}
	pkVal := rec.Get(pk.Property)
	if pkVal == nil {
		return fmt.Errorf("%w: cannot remove %s", ErrMissingPrimaryKey, rec.Type())
	}

	if err := m.runHooks(ctx, res, schema.BeforeRemove, rec); err != nil {
		return err
	}

	sqlText, args, err := query.CompileDelete(res.Table, query.Eq(pk.Name, pkVal))
	if err != nil {
		return err
	}
	if _, err := m.exec.Execute(ctx, sqlText, args); err != nil {
		return err
	}

	delete(m.identity, identityKey{typ: res.Name, key: keyString(pkVal)})

	return m.runHooks(ctx, res, schema.AfterRemove, rec)
}

// Hydrate converts a raw row into a record of the type, honoring the
// identity map. The relation loader uses it so related records share
// identities with directly fetched ones.
func (m *Manager) Hydrate(typeName string, row adapter.Row) (*Record, error) {
	res, err := m.resource(typeName)
	if err != nil {
		return nil, err
	}
	return m.hydrate(res, row)
}

func (m *Manager) hydrate(res *schema.Resource, row adapter.Row) (*Record, error) {
	pk := res.PrimaryKey()

	// A row already represented by a live record merges into it and
	// returns the same pointer. That is the identity-map guarantee.
	var existing *Record
	if pk != nil {
		if raw, ok := row[pk.Name]; ok && raw != nil {
			converted, err := convertValue(pk, raw)
			if err != nil {
				return nil, err
			}
			if rec, ok := m.identity[identityKey{typ: res.Name, key: keyString(converted)}]; ok {
				existing = rec
			}
		}
	}

	rec := existing
	if rec == nil {
		rec = NewRecord(res.Name)
	}

	for _, col := range res.Columns {
		raw, ok := row[col.Name]
		if !ok {
			continue
		}
		converted, err := convertValue(col, raw)
		if err != nil {
			return nil, err
		}
		rec.Set(col.Property, converted)
	}

	if existing == nil && pk != nil {
		if pkVal := rec.Get(pk.Property); pkVal != nil {
			m.register(res.Name, pkVal, rec)
		}
	}

	return rec, nil
}

func (m *Manager) register(typeName string, pkVal interface{}, rec *Record) {
	if pkVal == nil {
		return
	}
	m.identity[identityKey{typ: typeName, key: keyString(pkVal)}] = rec
}

// runHooks executes the hooks of one phase serially in declaration order.
// The first failure aborts and is wrapped as a *HookError.
func (m *Manager) runHooks(ctx context.Context, res *schema.Resource, kind schema.HookKind, rec *Record) error {
	for _, hook := range res.Hooks[kind] {
		if err := hook.Fn(ctx, rec); err != nil {
			return &HookError{Kind: kind, Err: err}
		}
	}
	return nil
}

func (m *Manager) resource(typeName string) (*schema.Resource, error) {
	res, ok := m.registry.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotRegistered, typeName)
	}
	return res, nil
}

// countFromResult reads the single COUNT(*) value; drivers disagree on
// the column's name, so the first value of the first row is taken
func countFromResult(result *adapter.Result) (int64, error) {
	if len(result.Rows) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	for _, v := range result.Rows[0] {
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		case []byte:
			var parsed int64
			if _, err := fmt.Sscanf(string(n), "%d", &parsed); err == nil {
				return parsed, nil
			}
		}
	}
	return 0, fmt.Errorf("count query returned no numeric value")
}
