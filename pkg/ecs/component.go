package ecs

// Kind tags a component type. Kinds must be registered with a Registry
// before components of that kind can be attached.
type Kind string

// Record is the key/value form of a component handed to persistence.
type Record map[string]any

// Component is plain data attached to an entity, one instance per kind.
type Component interface {
	Kind() Kind
	EntityID() EntityID
	SetEntityID(id EntityID)

	// Dirty reports whether the component changed since a system last consumed it.
	Dirty() bool
	MarkDirty()
	MarkClean()

	ToRecord() Record
}

// Base carries the owner stamp and dirty flag shared by every component.
// Embed it by value in component structs.
type Base struct {
	entityID EntityID
	dirty    bool
}

func (b *Base) EntityID() EntityID      { return b.entityID }
func (b *Base) SetEntityID(id EntityID) { b.entityID = id }
func (b *Base) Dirty() bool             { return b.dirty }
func (b *Base) MarkDirty()              { b.dirty = true }
func (b *Base) MarkClean()              { b.dirty = false }

// BaseRecord returns the fields every component record starts with.
func (b *Base) BaseRecord(kind Kind) Record {
	return Record{
		"kind":      string(kind),
		"entity_id": string(b.entityID),
		"dirty":     b.dirty,
	}
}
