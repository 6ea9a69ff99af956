package ecs

import (
	"errors"
	"strings"
	"testing"
)

const (
	kindTest  Kind = "test"
	kindOther Kind = "other"
)

// stub components used only in tests
type testComp struct {
	Base
	val int
}

func (*testComp) Kind() Kind { return kindTest }
func (c *testComp) ToRecord() Record {
	r := c.BaseRecord(kindTest)
	r["val"] = c.val
	return r
}

type otherComp struct{ Base }

func (*otherComp) Kind() Kind         { return kindOther }
func (c *otherComp) ToRecord() Record { return c.BaseRecord(kindOther) }

func TestCreateGeneratesID(t *testing.T) {
	r := NewRegistry(kindTest)
	e, err := r.Create("")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(string(e.ID()), "entity_") || len(e.ID()) != len("entity_")+8 {
		t.Fatalf("unexpected generated id %q", e.ID())
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("npc"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := r.Create("npc")
	if !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("expected ErrDuplicateEntity, got %v", err)
	}
}

func TestAttachAndGet(t *testing.T) {
	r := NewRegistry(kindTest)
	e, _ := r.Create("player")

	if err := r.Attach(e.ID(), &testComp{val: 42}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	c, ok := Get[*testComp](e, kindTest)
	if !ok {
		t.Fatal("expected component")
	}
	if c.val != 42 {
		t.Fatalf("expected val=42, got %d", c.val)
	}
	if c.EntityID() != "player" {
		t.Fatalf("expected owner stamp 'player', got %q", c.EntityID())
	}
}

func TestAttachReplacesSameKind(t *testing.T) {
	r := NewRegistry(kindTest)
	e, _ := r.Create("player")

	first := &testComp{val: 1}
	second := &testComp{val: 2}
	_ = r.Attach(e.ID(), first)
	_ = r.Attach(e.ID(), second)

	if got := len(e.Components()); got != 1 {
		t.Fatalf("expected exactly one component, got %d", got)
	}
	c, _ := Get[*testComp](e, kindTest)
	if c != second {
		t.Fatal("expected second component to replace the first")
	}
	if first.EntityID() != "" {
		t.Fatalf("replaced component should lose its owner stamp, got %q", first.EntityID())
	}
}

func TestAttachUnknownKind(t *testing.T) {
	r := NewRegistry(kindTest)
	e, _ := r.Create("player")

	err := r.Attach(e.ID(), &otherComp{})
	if !errors.Is(err, ErrUnknownComponentKind) {
		t.Fatalf("expected ErrUnknownComponentKind, got %v", err)
	}
	if e.Has(kindOther) {
		t.Fatal("unknown kind must not be stored")
	}

	if err := r.RegisterKind(kindOther); err != nil {
		t.Fatalf("RegisterKind failed: %v", err)
	}
	if err := r.Attach(e.ID(), &otherComp{}); err != nil {
		t.Fatalf("Attach after RegisterKind failed: %v", err)
	}
}

func TestAttachMissingEntity(t *testing.T) {
	r := NewRegistry(kindTest)
	err := r.Attach("ghost", &testComp{})
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestGetWrongTypeOrMissing(t *testing.T) {
	r := NewRegistry(kindTest)
	e, _ := r.Create("")

	if _, ok := Get[*testComp](e, kindTest); ok {
		t.Fatal("Get should fail before Attach")
	}
	_ = r.Attach(e.ID(), &testComp{})
	if _, ok := Get[*otherComp](e, kindTest); ok {
		t.Fatal("Get with the wrong concrete type should fail")
	}
	if _, ok := Get[*testComp](nil, kindTest); ok {
		t.Fatal("Get on a nil entity should fail")
	}
}

func TestDetach(t *testing.T) {
	r := NewRegistry(kindTest)
	e, _ := r.Create("")
	_ = r.Attach(e.ID(), &testComp{})

	if !r.Detach(e.ID(), kindTest) {
		t.Fatal("Detach should report true for an attached kind")
	}
	if r.Has(e.ID(), kindTest) {
		t.Fatal("Has should be false after Detach")
	}
	if r.Detach(e.ID(), kindTest) {
		t.Fatal("second Detach should report false")
	}
	if r.Detach("ghost", kindTest) {
		t.Fatal("Detach on a missing entity should report false")
	}
}

func TestDestroyDropsComponents(t *testing.T) {
	r := NewRegistry(kindTest, kindOther)
	e, _ := r.Create("npc")
	c := &testComp{val: 7}
	_ = r.Attach(e.ID(), c)
	_ = r.Attach(e.ID(), &otherComp{})

	if !r.Destroy(e.ID()) {
		t.Fatal("Destroy should report true")
	}
	if _, ok := r.Entity("npc"); ok {
		t.Fatal("entity should be gone after Destroy")
	}
	if len(e.Components()) != 0 {
		t.Fatal("components should be dropped on Destroy")
	}
	if c.EntityID() != "" {
		t.Fatal("dropped component should lose its owner stamp")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}

	// The id can be reused after destruction.
	if _, err := r.Create("npc"); err != nil {
		t.Fatalf("Create after Destroy failed: %v", err)
	}
}

func TestQueryFiltersInCreationOrder(t *testing.T) {
	r := NewRegistry(kindTest, kindOther)

	both1, _ := r.Create("a")
	_ = r.Attach(both1.ID(), &testComp{})
	_ = r.Attach(both1.ID(), &otherComp{})

	onlyTest, _ := r.Create("b")
	_ = r.Attach(onlyTest.ID(), &testComp{})

	both2, _ := r.Create("c")
	_ = r.Attach(both2.ID(), &otherComp{})
	_ = r.Attach(both2.ID(), &testComp{})

	results := r.Query(kindTest, kindOther)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0] != both1 || results[1] != both2 {
		t.Fatalf("unexpected query order: %v, %v", results[0].ID(), results[1].ID())
	}
}

func TestSnapshotRecords(t *testing.T) {
	r := NewRegistry(kindTest)
	e, _ := r.Create("player")
	_ = r.Attach(e.ID(), &testComp{val: 3})

	snap := r.Snapshot()
	rec, ok := snap["player"]
	if !ok {
		t.Fatal("expected player record")
	}
	comps := rec["components"].(map[string]Record)
	if comps["test"]["val"] != 3 {
		t.Fatalf("unexpected record %v", comps["test"])
	}
	if comps["test"]["entity_id"] != "player" {
		t.Fatalf("record should carry owner id, got %v", comps["test"]["entity_id"])
	}
}

func TestDirtyFlag(t *testing.T) {
	c := &testComp{}
	if c.Dirty() {
		t.Fatal("new component should be clean")
	}
	c.MarkDirty()
	if !c.Dirty() {
		t.Fatal("expected dirty after MarkDirty")
	}
	c.MarkClean()
	if c.Dirty() {
		t.Fatal("expected clean after MarkClean")
	}
}
