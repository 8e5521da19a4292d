// Package relation resolves object graphs for batches of hydrated
// records. Each named relation costs exactly one additional query no
// matter how many parents are loaded; that is the whole point.
package relation

import (
	"context"
	"fmt"

	"github.com/vlodia/loam/entity"
	"github.com/vlodia/loam/query"
	"github.com/vlodia/loam/schema"
)

// parentKeyColumn is the alias carrying the join-table parent key in
// many-to-many queries
const parentKeyColumn = "__parent_key"

// Options tunes a relation load
type Options struct {
	// OrderBy orders the child query; grouping itself is order-independent
	OrderBy []query.Order
}

// Loader resolves relations through an entity manager, so resolved
// children share the manager's identity map
type Loader struct {
	mgr *entity.Manager
}

// NewLoader creates a loader bound to a unit of work
func NewLoader(mgr *entity.Manager) *Loader {
	return &Loader{mgr: mgr}
}

// LoadRelations resolves the named relations for all parents, assigning
// each parent its related record (nil when absent) or record list (empty
// when absent). Parents are mutated in place and returned for chaining.
// One query is issued per relation name, never one per parent.
func (l *Loader) LoadRelations(ctx context.Context, parents []*entity.Record, names []string, opts Options) ([]*entity.Record, error) {
	if len(parents) == 0 {
		return parents, nil
	}

	res, err := l.parentResource(parents)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		rel, ok := res.Relation(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, res.Name, name)
		}
		if err := l.loadOne(ctx, parents, res, rel, opts); err != nil {
			return nil, fmt.Errorf("failed to load relation %s: %w", name, err)
		}
	}

	return parents, nil
}

// LoadRelationsBatched partitions parents into fixed-size chunks and runs
// the full load per chunk, bounding the IN-list size sent to the
// database. Results concatenate in chunk order.
func (l *Loader) LoadRelationsBatched(ctx context.Context, parents []*entity.Record, names []string, batchSize int, opts Options) ([]*entity.Record, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	for start := 0; start < len(parents); start += batchSize {
		end := start + batchSize
		if end > len(parents) {
			end = len(parents)
		}
		if _, err := l.LoadRelations(ctx, parents[start:end], names, opts); err != nil {
			return nil, err
		}
	}

	return parents, nil
}

func (l *Loader) loadOne(ctx context.Context, parents []*entity.Record, res *schema.Resource, rel *schema.Relation, opts Options) error {
	switch rel.Kind {
	case schema.ManyToOne:
		return l.loadManyToOne(ctx, parents, res, rel, opts)
	case schema.OneToOne:
		return l.loadOwned(ctx, parents, res, rel, opts, false)
	case schema.OneToMany:
		return l.loadOwned(ctx, parents, res, rel, opts, true)
	case schema.ManyToMany:
		return l.loadManyToMany(ctx, parents, res, rel, opts)
	default:
		return fmt.Errorf("relation %s has unknown kind %d", rel.Property, rel.Kind)
	}
}

// loadManyToOne resolves relations where each parent holds a foreign key
// to the target: collect the FK values, fetch the targets by primary key
// in one query, and map them back
func (l *Loader) loadManyToOne(ctx context.Context, parents []*entity.Record, res *schema.Resource, rel *schema.Relation, opts Options) error {
	_, targetPK, err := l.target(rel)
	if err != nil {
		return err
	}

	fkProp := propertyForColumn(res, rel.JoinColumn)
	keys := collectKeys(parents, fkProp)
	if len(keys) == 0 {
		for _, p := range parents {
			p.SetRelation(rel.Property, nil)
		}
		return nil
	}

	children, err := l.mgr.Find(ctx, rel.Target, entity.FindOptions{
		Where:   query.In(targetPK.Name, keys...),
		OrderBy: opts.OrderBy,
	})
	if err != nil {
		return err
	}

	byKey := make(map[string]*entity.Record, len(children))
	for _, child := range children {
		if pkVal := child.Get(targetPK.Property); pkVal != nil {
			byKey[normalize(pkVal)] = child
		}
	}

	for _, p := range parents {
		fk := p.Get(fkProp)
		if fk == nil {
			p.SetRelation(rel.Property, nil)
			continue
		}
		if child, ok := byKey[normalize(fk)]; ok {
			p.SetRelation(rel.Property, child)
		} else {
			p.SetRelation(rel.Property, nil)
		}
	}
	return nil
}

// loadOwned resolves relations where the target holds the foreign key
// back to the parent (one-to-one and one-to-many): collect parent
// primary keys, fetch matching targets in one query, and group them by
// the foreign-key column
func (l *Loader) loadOwned(ctx context.Context, parents []*entity.Record, res *schema.Resource, rel *schema.Relation, opts Options, many bool) error {
	target, _, err := l.target(rel)
	if err != nil {
		return err
	}

	parentPK := res.PrimaryKey()
	if parentPK == nil {
		return fmt.Errorf("%s has no primary-key column", res.Name)
	}

	keys := collectKeys(parents, parentPK.Property)
	if len(keys) == 0 {
		assignDefaults(parents, rel, many)
		return nil
	}

	children, err := l.mgr.Find(ctx, rel.Target, entity.FindOptions{
		Where:   query.In(rel.JoinColumn, keys...),
		OrderBy: opts.OrderBy,
	})
	if err != nil {
		return err
	}

	fkProp := propertyForColumn(target, rel.JoinColumn)
	grouped := make(map[string][]*entity.Record)
	for _, child := range children {
		fk := child.Get(fkProp)
		if fk == nil {
			continue
		}
		grouped[normalize(fk)] = append(grouped[normalize(fk)], child)
	}

	for _, p := range parents {
		pkVal := p.Get(parentPK.Property)
		if pkVal == nil {
			assignDefaults([]*entity.Record{p}, rel, many)
			continue
		}
		matches := grouped[normalize(pkVal)]
		if many {
			if matches == nil {
				matches = []*entity.Record{}
			}
			p.SetRelation(rel.Property, matches)
		} else {
			if len(matches) == 0 {
				p.SetRelation(rel.Property, nil)
			} else {
				p.SetRelation(rel.Property, matches[0])
			}
		}
	}
	return nil
}

// loadManyToMany resolves join-table relations with a single join query
// that carries the parent key out as an aliased column
func (l *Loader) loadManyToMany(ctx context.Context, parents []*entity.Record, res *schema.Resource, rel *schema.Relation, opts Options) error {
	target, targetPK, err := l.target(rel)
	if err != nil {
		return err
	}

	parentPK := res.PrimaryKey()
	if parentPK == nil {
		return fmt.Errorf("%s has no primary-key column", res.Name)
	}

	keys := collectKeys(parents, parentPK.Property)
	if len(keys) == 0 {
		assignDefaults(parents, rel, true)
		return nil
	}

	jt := rel.JoinTable
	sel := make([]string, 0, len(target.Columns)+1)
	for _, col := range target.Columns {
		sel = append(sel, target.Table+"."+col.Name)
	}
	sel = append(sel, jt+"."+rel.JoinColumn+" AS "+parentKeyColumn)

	spec := query.Spec{
		Table:  target.Table,
		Select: sel,
		Joins: []query.Join{{
			Kind:  query.InnerJoin,
			Table: jt,
			On:    target.Table + "." + targetPK.Name + " = " + jt + "." + rel.InverseJoinColumn,
		}},
		Where:   query.In(jt+"."+rel.JoinColumn, keys...),
		OrderBy: opts.OrderBy,
	}
	sqlText, args, err := query.Compile(spec)
	if err != nil {
		return err
	}

	result, err := l.mgr.Executor().Execute(ctx, sqlText, args)
	if err != nil {
		return err
	}

	grouped := make(map[string][]*entity.Record)
	for _, row := range result.Rows {
		parentKey := row[parentKeyColumn]
		if parentKey == nil {
			continue
		}
		delete(row, parentKeyColumn)

		child, err := l.mgr.Hydrate(rel.Target, row)
		if err != nil {
			return err
		}
		grouped[normalize(parentKey)] = append(grouped[normalize(parentKey)], child)
	}

	for _, p := range parents {
		pkVal := p.Get(parentPK.Property)
		if pkVal == nil {
			p.SetRelation(rel.Property, []*entity.Record{})
			continue
		}
		matches := grouped[normalize(pkVal)]
		if matches == nil {
			matches = []*entity.Record{}
		}
		p.SetRelation(rel.Property, matches)
	}
	return nil
}

func (l *Loader) parentResource(parents []*entity.Record) (*schema.Resource, error) {
	typeName := parents[0].Type()
	for _, p := range parents[1:] {
		if p.Type() != typeName {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedParentTypes, typeName, p.Type())
		}
	}
	res, ok := l.mgr.Registry().Get(typeName)
	if !ok {
		return nil, fmt.Errorf("type not registered: %s", typeName)
	}
	return res, nil
}

func (l *Loader) target(rel *schema.Relation) (*schema.Resource, *schema.Column, error) {
	target, ok := l.mgr.Registry().Get(rel.Target)
	if !ok {
		return nil, nil, fmt.Errorf("relation %s targets unregistered type %s", rel.Property, rel.Target)
	}
	pk := target.PrimaryKey()
	if pk == nil {
		return nil, nil, fmt.Errorf("relation target %s has no primary-key column", rel.Target)
	}
	return target, pk, nil
}

// collectKeys gathers distinct non-nil key values in first-seen order
func collectKeys(parents []*entity.Record, property string) []interface{} {
	var keys []interface{}
	seen := make(map[string]bool)
	for _, p := range parents {
		v := p.Get(property)
		if v == nil {
			continue
		}
		k := normalize(v)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, v)
		}
	}
	return keys
}

func assignDefaults(parents []*entity.Record, rel *schema.Relation, many bool) {
	for _, p := range parents {
		if many {
			p.SetRelation(rel.Property, []*entity.Record{})
		} else {
			p.SetRelation(rel.Property, nil)
		}
	}
}

// propertyForColumn maps a storage column name to the resource property
// holding it; unknown columns fall back to the storage name
func propertyForColumn(res *schema.Resource, columnName string) string {
	for _, col := range res.Columns {
		if col.Name == columnName {
			return col.Property
		}
	}
	return columnName
}

// normalize renders a key value so int64(5), int(5) and "5" group
// together regardless of which form the driver produced
func normalize(v interface{}) string {
	switch k := v.(type) {
	case []byte:
		return string(k)
	case string:
		return k
	default:
		return fmt.Sprintf("%v", k)
	}
}
