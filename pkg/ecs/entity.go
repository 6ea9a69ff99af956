package ecs

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// EntityID is an opaque identity, unique within a Registry for the process lifetime.
type EntityID string

// NewEntityID generates an ID of the form entity_<8 hex chars>.
func NewEntityID() EntityID {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return EntityID("entity_" + hex[:8])
}

// Entity is an identity plus its components. It has no behavior of its own;
// components are attached and detached through the owning Registry.
type Entity struct {
	id         EntityID
	components map[Kind]Component
}

func newEntity(id EntityID) *Entity {
	return &Entity{
		id:         id,
		components: make(map[Kind]Component),
	}
}

// ID returns the entity identity.
func (e *Entity) ID() EntityID {
	return e.id
}

// Component returns the component of the given kind, if attached.
func (e *Entity) Component(kind Kind) (Component, bool) {
	c, ok := e.components[kind]
	return c, ok
}

// Has reports whether a component of the given kind is attached.
func (e *Entity) Has(kind Kind) bool {
	_, ok := e.components[kind]
	return ok
}

// HasAll reports whether every listed kind is attached.
func (e *Entity) HasAll(kinds ...Kind) bool {
	for _, k := range kinds {
		if !e.Has(k) {
			return false
		}
	}
	return true
}

// Kinds returns the attached kinds in sorted order.
func (e *Entity) Kinds() []Kind {
	kinds := make([]Kind, 0, len(e.components))
	for k := range e.components {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Components returns the attached components ordered by kind.
func (e *Entity) Components() []Component {
	out := make([]Component, 0, len(e.components))
	for _, k := range e.Kinds() {
		out = append(out, e.components[k])
	}
	return out
}

// ToRecord serializes the entity and all of its components.
func (e *Entity) ToRecord() Record {
	comps := make(map[string]Record, len(e.components))
	for k, c := range e.components {
		comps[string(k)] = c.ToRecord()
	}
	return Record{
		"id":         string(e.id),
		"components": comps,
	}
}

// Get returns the component of the given kind as its concrete type.
// The second result is false when the kind is not attached or the attached
// component is not a T.
func Get[T Component](e *Entity, kind Kind) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	c, ok := e.components[kind]
	if !ok {
		return zero, false
	}
	typed, ok := c.(T)
	return typed, ok
}
