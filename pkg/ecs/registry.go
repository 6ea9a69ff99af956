package ecs

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownComponentKind = errors.New("unknown component kind")
	ErrDuplicateEntity      = errors.New("entity already exists")
	ErrEntityNotFound       = errors.New("entity not found")
)

// Registry is the entity registry and component store. It is not safe for
// concurrent use; callers serialize access per turn.
type Registry struct {
	kinds    map[Kind]struct{}
	entities map[EntityID]*Entity
	order    []EntityID
}

// NewRegistry creates an empty registry that accepts the given kinds.
func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{
		kinds:    make(map[Kind]struct{}),
		entities: make(map[EntityID]*Entity),
	}
	for _, k := range kinds {
		if k != "" {
			r.kinds[k] = struct{}{}
		}
	}
	return r
}

// RegisterKind allows components of kind k to be attached.
func (r *Registry) RegisterKind(k Kind) error {
	if k == "" {
		return fmt.Errorf("%w: empty kind", ErrUnknownComponentKind)
	}
	r.kinds[k] = struct{}{}
	return nil
}

// Known reports whether kind k has been registered.
func (r *Registry) Known(k Kind) bool {
	_, ok := r.kinds[k]
	return ok
}

// Create adds a new entity. An empty id generates one.
func (r *Registry) Create(id EntityID) (*Entity, error) {
	if id == "" {
		id = NewEntityID()
		for r.entities[id] != nil {
			id = NewEntityID()
		}
	}
	if _, exists := r.entities[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
	}
	e := newEntity(id)
	r.entities[id] = e
	r.order = append(r.order, id)
	return e, nil
}

// Entity returns the entity with the given id.
func (r *Registry) Entity(id EntityID) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Attach sets c on entity id, replacing any component of the same kind, and
// stamps c with the owner id.
func (r *Registry) Attach(id EntityID, c Component) error {
	if c == nil {
		return fmt.Errorf("%w: nil component", ErrUnknownComponentKind)
	}
	kind := c.Kind()
	if !r.Known(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownComponentKind, kind)
	}
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if prev, ok := e.components[kind]; ok && prev != c {
		prev.SetEntityID("")
	}
	c.SetEntityID(id)
	e.components[kind] = c
	return nil
}

// Detach removes the component of the given kind. It reports whether one was attached.
func (r *Registry) Detach(id EntityID, kind Kind) bool {
	e, ok := r.entities[id]
	if !ok {
		return false
	}
	c, ok := e.components[kind]
	if !ok {
		return false
	}
	c.SetEntityID("")
	delete(e.components, kind)
	return true
}

// Has reports whether entity id carries a component of the given kind.
func (r *Registry) Has(id EntityID, kind Kind) bool {
	e, ok := r.entities[id]
	return ok && e.Has(kind)
}

// Destroy removes the entity and drops all of its components.
func (r *Registry) Destroy(id EntityID) bool {
	e, ok := r.entities[id]
	if !ok {
		return false
	}
	for k, c := range e.components {
		c.SetEntityID("")
		delete(e.components, k)
	}
	delete(r.entities, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Entities returns a snapshot of all entities in creation order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id])
	}
	return out
}

// Query returns the entities carrying every listed kind, in creation order.
func (r *Registry) Query(kinds ...Kind) []*Entity {
	var out []*Entity
	for _, id := range r.order {
		e := r.entities[id]
		if e.HasAll(kinds...) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of live entities.
func (r *Registry) Len() int {
	return len(r.order)
}

// Snapshot returns the record of every entity keyed by id.
func (r *Registry) Snapshot() map[EntityID]Record {
	out := make(map[EntityID]Record, len(r.order))
	for _, id := range r.order {
		out[id] = r.entities[id].ToRecord()
	}
	return out
}
