package optimistic

import (
	"reflect"
	"testing"

	"quadrant/api/internal/store"
)

func baseIdeas() []store.Idea {
	return []store.Idea{
		{ID: "idea-1", ProjectID: "proj-1", Title: "Original Idea 1", Version: 1},
		{ID: "idea-2", ProjectID: "proj-1", Title: "Original Idea 2", Version: 1},
	}
}

func strptr(s string) *string   { return &s }
func f64ptr(f float64) *float64 { return &f }

func TestProjectCreateAppends(t *testing.T) {
	base := baseIdeas()
	pending := []Record{{
		ID:   "update-1",
		Kind: KindCreate,
		Idea: &store.Idea{ID: "idea-3", Title: "New Idea"},
	}}

	view := Project(base, pending)
	if len(view) != 3 {
		t.Fatalf("expected 3 ideas in view, got %d", len(view))
	}
	if view[2].ID != "idea-3" || view[2].Title != "New Idea" {
		t.Errorf("expected idea-3 appended, got %+v", view[2])
	}
	if len(base) != 2 {
		t.Errorf("base collection was mutated, len=%d", len(base))
	}
}

func TestProjectUpdateMergesFields(t *testing.T) {
	pending := []Record{{
		ID:              "update-1",
		Kind:            KindUpdate,
		EntityID:        "idea-1",
		Patch:           store.IdeaPatch{Title: strptr("Updated Title")},
		ObservedVersion: 1,
	}}

	view := Project(baseIdeas(), pending)
	if view[0].Title != "Updated Title" {
		t.Errorf("expected merged title, got %q", view[0].Title)
	}
	if view[0].Version != 1 {
		t.Errorf("projection must not touch version, got %d", view[0].Version)
	}
	if view[1].Title != "Original Idea 2" {
		t.Errorf("unrelated entity changed: %q", view[1].Title)
	}
}

func TestProjectDeleteRemoves(t *testing.T) {
	pending := []Record{{ID: "update-1", Kind: KindDelete, EntityID: "idea-1", ObservedVersion: 1}}

	view := Project(baseIdeas(), pending)
	if len(view) != 1 {
		t.Fatalf("expected 1 idea after delete, got %d", len(view))
	}
	if view[0].ID != "idea-2" {
		t.Errorf("wrong survivor: %s", view[0].ID)
	}
}

func TestProjectMoveIsGenericMerge(t *testing.T) {
	pending := []Record{{
		ID:              "update-1",
		Kind:            KindMove,
		EntityID:        "idea-2",
		Patch:           store.IdeaPatch{X: f64ptr(80), Y: f64ptr(15)},
		ObservedVersion: 1,
	}}

	view := Project(baseIdeas(), pending)
	if view[1].X != 80 || view[1].Y != 15 {
		t.Errorf("expected position (80,15), got (%v,%v)", view[1].X, view[1].Y)
	}
	if view[1].Title != "Original Idea 2" {
		t.Errorf("move must not touch other fields, title=%q", view[1].Title)
	}
}

func TestProjectUpdateMergesIntoPendingCreate(t *testing.T) {
	pending := []Record{
		{ID: "update-1", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3", Title: "Draft"}},
		{ID: "update-2", Kind: KindUpdate, EntityID: "idea-3", Patch: store.IdeaPatch{Title: strptr("Polished")}},
	}

	view := Project(baseIdeas(), pending)
	if len(view) != 3 {
		t.Fatalf("expected 3 ideas, got %d", len(view))
	}
	if view[2].Title != "Polished" {
		t.Errorf("expected update folded onto pending create, got %q", view[2].Title)
	}
}

func TestProjectLaterRecordWinsForDisplay(t *testing.T) {
	pending := []Record{
		{ID: "update-1", Kind: KindUpdate, EntityID: "idea-1", Patch: store.IdeaPatch{Title: strptr("First Edit")}},
		{ID: "update-2", Kind: KindUpdate, EntityID: "idea-1", Patch: store.IdeaPatch{Title: strptr("Second Edit")}},
	}

	view := Project(baseIdeas(), pending)
	if view[0].Title != "Second Edit" {
		t.Errorf("later applied record should win for display, got %q", view[0].Title)
	}
}

func TestProjectIsPure(t *testing.T) {
	base := baseIdeas()
	pending := []Record{
		{ID: "update-1", Kind: KindUpdate, EntityID: "idea-1", Patch: store.IdeaPatch{Title: strptr("Edited")}},
		{ID: "update-2", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3", Title: "New"}},
		{ID: "update-3", Kind: KindDelete, EntityID: "idea-2"},
	}

	first := Project(base, pending)
	second := Project(base, pending)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("projection is not deterministic:\n first=%+v\nsecond=%+v", first, second)
	}
	if !reflect.DeepEqual(base, baseIdeas()) {
		t.Errorf("projection mutated its base input: %+v", base)
	}
}

// Removing a record from the pending list must restore the exact prior view:
// revert is the absence of the record, never an inverse replay.
func TestProjectRevertIsExactInverse(t *testing.T) {
	base := baseIdeas()
	pending := []Record{
		{ID: "update-1", Kind: KindUpdate, EntityID: "idea-1", Patch: store.IdeaPatch{Category: strptr("quick-win")}},
	}
	extra := Record{ID: "update-2", Kind: KindDelete, EntityID: "idea-2"}

	before := Project(base, pending)
	_ = Project(base, append(append([]Record{}, pending...), extra))
	after := Project(base, pending)

	if !reflect.DeepEqual(before, after) {
		t.Errorf("view after removing record differs from view before applying it:\nbefore=%+v\n after=%+v", before, after)
	}
}

func TestProjectUpdateForMissingEntityIsNoop(t *testing.T) {
	pending := []Record{{
		ID: "update-1", Kind: KindUpdate, EntityID: "idea-404",
		Patch: store.IdeaPatch{Title: strptr("Ghost")},
	}}

	view := Project(baseIdeas(), pending)
	if !reflect.DeepEqual(view, baseIdeas()) {
		t.Errorf("update for absent entity should leave view unchanged, got %+v", view)
	}
}
