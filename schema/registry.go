package schema

import (
	"fmt"
	"sync"
)

// Registry holds all registered resources. It is the metadata provider the
// entity manager and relation loader read from: built once at startup,
// read-only afterwards.
type Registry struct {
	resources map[string]*Resource
	mu        sync.RWMutex
}

// NewRegistry creates a new resource registry
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]*Resource),
	}
}

// Register registers a resource definition
func (r *Registry) Register(res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[res.Name]; exists {
		return fmt.Errorf("resource %s is already registered", res.Name)
	}

	r.resources[res.Name] = res
	return nil
}

// MustRegister registers resources and panics on conflict. Intended for
// startup wiring.
func (r *Registry) MustRegister(resources ...*Resource) {
	for _, res := range resources {
		if err := r.Register(res); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a resource by name
func (r *Registry) Get(name string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, exists := r.resources[name]
	return res, exists
}

// IsRegistered checks whether a resource is registered
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.resources[name]
	return exists
}

// Columns returns the columns of a resource in declaration order
func (r *Registry) Columns(name string) ([]*Column, error) {
	res, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return res.Columns, nil
}

// PrimaryKey returns the primary-key column of a resource. The second
// return is false when the resource declares no primary key.
func (r *Registry) PrimaryKey(name string) (*Column, bool, error) {
	res, err := r.lookup(name)
	if err != nil {
		return nil, false, err
	}
	pk := res.PrimaryKey()
	return pk, pk != nil, nil
}

// Relations returns the relation descriptors of a resource
func (r *Registry) Relations(name string) (map[string]*Relation, error) {
	res, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return res.Relations, nil
}

// Hooks returns the lifecycle hooks of a resource
func (r *Registry) Hooks(name string) (map[HookKind][]*Hook, error) {
	res, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return res.Hooks, nil
}

// List returns the names of all registered resources
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered resources
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.resources)
}

// Clear removes all registered resources (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources = make(map[string]*Resource)
}

func (r *Registry) lookup(name string) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, exists := r.resources[name]
	if !exists {
		return nil, fmt.Errorf("resource %s not found", name)
	}
	return res, nil
}
