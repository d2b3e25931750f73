package optimistic

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"quadrant/api/internal/store"
)

// fakeScheduler collects timers and fires them on demand so expiry can be
// tested without waiting on the wall clock.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fire runs every timer that has not been stopped, exactly once each.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	timers := append([]*fakeTimer{}, s.timers...)
	s.mu.Unlock()
	for _, timer := range timers {
		timer.mu.Lock()
		runnable := !timer.stopped && !timer.fired
		if runnable {
			timer.fired = true
		}
		fn := timer.fn
		timer.mu.Unlock()
		if runnable {
			fn()
		}
	}
}

// board is the caller-owned base collection the store folds into.
type board struct {
	mu    sync.Mutex
	ideas []store.Idea
}

func (b *board) snapshot() []store.Idea {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]store.Idea, len(b.ideas))
	copy(out, b.ideas)
	return out
}

func (b *board) update(apply func(prev []store.Idea) []store.Idea) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ideas = apply(b.ideas)
}

func newTestStore(t *testing.T, callbacks Callbacks) (*Store, *board, *fakeScheduler) {
	t.Helper()
	b := &board{ideas: baseIdeas()}
	scheduler := &fakeScheduler{}
	s := NewStore(b.snapshot, b.update, Options{
		Timeout:   10 * time.Second,
		Scheduler: scheduler,
		Callbacks: callbacks,
	})
	return s, b, scheduler
}

func TestApplyCreateThenConfirmFoldsIntoBase(t *testing.T) {
	var confirmedID string
	s, b, _ := newTestStore(t, Callbacks{
		OnSuccess: func(updateID string, _ *store.Idea) { confirmedID = updateID },
	})

	err := s.Apply(Record{
		ID:   "update-1",
		Kind: KindCreate,
		Idea: &store.Idea{ID: "idea-3", Title: "New Idea"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	view := s.View()
	if len(view) != 3 || view[2].ID != "idea-3" {
		t.Fatalf("expected speculative idea-3 in view, got %+v", view)
	}
	if len(b.snapshot()) != 2 {
		t.Fatalf("Apply must not touch the base collection")
	}

	if !s.Confirm("update-1", &store.Idea{ID: "idea-3", Title: "New Idea", Version: 1}) {
		t.Fatal("Confirm returned false for a pending record")
	}
	if confirmedID != "update-1" {
		t.Errorf("OnSuccess not invoked, got %q", confirmedID)
	}
	if got := len(b.snapshot()); got != 3 {
		t.Errorf("expected 3 ideas in base after confirm, got %d", got)
	}
	if got := len(s.Pending()); got != 0 {
		t.Errorf("expected empty pending set after confirm, got %d", got)
	}
	if state := s.StateOf("update-1"); state != StateConfirmed {
		t.Errorf("expected confirmed state, got %s", state)
	}
}

func TestRevertRestoresPriorViewWithoutTouchingBase(t *testing.T) {
	var reverted []string
	s, b, _ := newTestStore(t, Callbacks{
		OnRevert: func(updateID string) { reverted = append(reverted, updateID) },
	})

	before := s.View()
	err := s.Apply(Record{
		ID:              "update-1",
		Kind:            KindUpdate,
		EntityID:        "idea-1",
		Original:        &before[0],
		Patch:           store.IdeaPatch{Title: strptr("Updated Title")},
		ObservedVersion: 1,
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if s.View()[0].Title != "Updated Title" {
		t.Fatal("speculative update not visible")
	}

	if !s.Revert("update-1") {
		t.Fatal("Revert returned false for a pending record")
	}
	after := s.View()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("revert did not restore prior view:\nbefore=%+v\n after=%+v", before, after)
	}
	if b.snapshot()[0].Title != "Original Idea 1" {
		t.Errorf("base collection was touched by revert")
	}
	if len(reverted) != 1 || reverted[0] != "update-1" {
		t.Errorf("OnRevert calls = %v", reverted)
	}
}

func TestDeleteRevertRestoresBothEntities(t *testing.T) {
	s, _, _ := newTestStore(t, Callbacks{})

	original := s.View()[0]
	if err := s.Apply(Record{
		ID: "update-1", Kind: KindDelete, EntityID: "idea-1",
		Original: &original, ObservedVersion: 1,
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	view := s.View()
	if len(view) != 1 || view[0].ID != "idea-2" {
		t.Fatalf("expected only idea-2 visible, got %+v", view)
	}

	s.Revert("update-1")
	view = s.View()
	if len(view) != 2 || view[0].Title != "Original Idea 1" {
		t.Errorf("expected both entities restored intact, got %+v", view)
	}
}

func TestTwoCreatesResolveIndependently(t *testing.T) {
	s, b, _ := newTestStore(t, Callbacks{})

	for _, rec := range []Record{
		{ID: "update-1", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3", Title: "Third"}},
		{ID: "update-2", Kind: KindCreate, Idea: &store.Idea{ID: "idea-4", Title: "Fourth"}},
	} {
		if err := s.Apply(rec); err != nil {
			t.Fatalf("Apply %s failed: %v", rec.ID, err)
		}
	}
	if got := len(s.View()); got != 4 {
		t.Fatalf("expected 4 ideas in view, got %d", got)
	}

	s.Confirm("update-1", &store.Idea{ID: "idea-3", Title: "Third", Version: 1})
	s.Revert("update-2")

	view := s.View()
	if len(view) != 3 {
		t.Fatalf("expected 3 ideas after confirm+revert, got %d", len(view))
	}
	for _, idea := range view {
		if idea.ID == "idea-4" {
			t.Errorf("reverted idea-4 still visible")
		}
	}
	if got := len(b.snapshot()); got != 3 {
		t.Errorf("expected base to hold 3 ideas, got %d", got)
	}
}

func TestConfirmUpdateWithoutConfirmedDataBumpsVersion(t *testing.T) {
	s, b, _ := newTestStore(t, Callbacks{})

	if err := s.Apply(Record{
		ID: "update-1", Kind: KindUpdate, EntityID: "idea-1",
		Patch: store.IdeaPatch{Title: strptr("Updated Title")}, ObservedVersion: 1,
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	s.Confirm("update-1", nil)

	idea := b.snapshot()[0]
	if idea.Title != "Updated Title" {
		t.Errorf("patch not folded, title=%q", idea.Title)
	}
	if idea.Version != 2 {
		t.Errorf("expected version bumped to 2, got %d", idea.Version)
	}
}

func TestConfirmAndRevertAreIdempotent(t *testing.T) {
	successes := 0
	reverts := 0
	s, b, _ := newTestStore(t, Callbacks{
		OnSuccess: func(string, *store.Idea) { successes++ },
		OnRevert:  func(string) { reverts++ },
	})

	_ = s.Apply(Record{ID: "update-1", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3"}})
	_ = s.Apply(Record{ID: "update-2", Kind: KindDelete, EntityID: "idea-2", ObservedVersion: 1})

	if !s.Confirm("update-1", &store.Idea{ID: "idea-3", Version: 1}) {
		t.Fatal("first confirm should resolve")
	}
	if s.Confirm("update-1", &store.Idea{ID: "idea-3", Version: 1}) {
		t.Error("second confirm must be a no-op")
	}
	if !s.Revert("update-2") {
		t.Fatal("first revert should resolve")
	}
	if s.Revert("update-2") {
		t.Error("second revert must be a no-op")
	}
	if s.Revert("update-1") {
		t.Error("revert after confirm must be a no-op")
	}

	if successes != 1 || reverts != 1 {
		t.Errorf("callbacks fired successes=%d reverts=%d, want 1 and 1", successes, reverts)
	}
	if got := len(b.snapshot()); got != 3 {
		t.Errorf("base should hold 3 ideas exactly once, got %d", got)
	}
}

func TestUnknownIDIsNoop(t *testing.T) {
	s, b, _ := newTestStore(t, Callbacks{})
	if s.Confirm("nope", nil) {
		t.Error("confirm of unknown id should be a no-op")
	}
	if s.Revert("nope") {
		t.Error("revert of unknown id should be a no-op")
	}
	if !reflect.DeepEqual(b.snapshot(), baseIdeas()) {
		t.Error("no-op resolution touched the base collection")
	}
	if state := s.StateOf("nope"); state != StateUnknown {
		t.Errorf("expected unknown state, got %s", state)
	}
}

func TestTimeoutAutoRevertsExactlyOnce(t *testing.T) {
	var errs []error
	reverts := 0
	s, _, scheduler := newTestStore(t, Callbacks{
		OnError:  func(_ string, err error) { errs = append(errs, err) },
		OnRevert: func(string) { reverts++ },
	})

	_ = s.Apply(Record{
		ID: "update-1", Kind: KindUpdate, EntityID: "idea-1",
		Patch: store.IdeaPatch{Title: strptr("Never Saved")}, ObservedVersion: 1,
	})

	scheduler.fire()
	if len(s.Pending()) != 0 {
		t.Fatal("expired record still pending")
	}
	if s.View()[0].Title != "Original Idea 1" {
		t.Errorf("view not restored after expiry")
	}
	if state := s.StateOf("update-1"); state != StateReverted {
		t.Errorf("expected reverted state, got %s", state)
	}

	// Firing again must not double-revert.
	scheduler.fire()
	if reverts != 1 {
		t.Errorf("expected exactly one revert, got %d", reverts)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrExpired) {
		t.Errorf("expected single ErrExpired, got %v", errs)
	}
}

func TestConfirmCancelsExpiryTimer(t *testing.T) {
	reverts := 0
	s, _, scheduler := newTestStore(t, Callbacks{
		OnRevert: func(string) { reverts++ },
	})

	_ = s.Apply(Record{ID: "update-1", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3"}})
	s.Confirm("update-1", &store.Idea{ID: "idea-3", Version: 1})

	scheduler.fire()
	if reverts != 0 {
		t.Errorf("timer fired after manual confirm, reverts=%d", reverts)
	}
	if state := s.StateOf("update-1"); state != StateConfirmed {
		t.Errorf("expiry overwrote resolution, state=%s", state)
	}
}

func TestApplyRejectsEntityWithPendingDelete(t *testing.T) {
	s, _, _ := newTestStore(t, Callbacks{})

	_ = s.Apply(Record{ID: "update-1", Kind: KindDelete, EntityID: "idea-1", ObservedVersion: 1})
	err := s.Apply(Record{
		ID: "update-2", Kind: KindUpdate, EntityID: "idea-1",
		Patch: store.IdeaPatch{Title: strptr("Zombie")}, ObservedVersion: 1,
	})
	if !errors.Is(err, ErrPendingDelete) {
		t.Fatalf("expected ErrPendingDelete, got %v", err)
	}

	// Once the delete resolves, the entity is editable again.
	s.Revert("update-1")
	if err := s.Apply(Record{
		ID: "update-3", Kind: KindUpdate, EntityID: "idea-1",
		Patch: store.IdeaPatch{Title: strptr("Back")}, ObservedVersion: 1,
	}); err != nil {
		t.Fatalf("Apply after delete resolved failed: %v", err)
	}
}

func TestApplyRejectsDuplicateAndInvalidRecords(t *testing.T) {
	s, _, _ := newTestStore(t, Callbacks{})

	_ = s.Apply(Record{ID: "update-1", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3"}})
	if err := s.Apply(Record{ID: "update-1", Kind: KindDelete, EntityID: "idea-2"}); !errors.Is(err, ErrDuplicateUpdate) {
		t.Errorf("expected ErrDuplicateUpdate, got %v", err)
	}
	if err := s.Apply(Record{ID: "", Kind: KindDelete, EntityID: "idea-2"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for empty id, got %v", err)
	}
	if err := s.Apply(Record{ID: "update-2", Kind: KindCreate}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for create without payload, got %v", err)
	}
	if err := s.Apply(Record{ID: "update-3", Kind: KindUpdate}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for update without entity, got %v", err)
	}
}

func TestViewMatchesProjectorAtAllTimes(t *testing.T) {
	s, b, _ := newTestStore(t, Callbacks{})

	_ = s.Apply(Record{ID: "update-1", Kind: KindCreate, Idea: &store.Idea{ID: "idea-3", Title: "X"}})
	_ = s.Apply(Record{ID: "update-2", Kind: KindMove, EntityID: "idea-2", Patch: store.IdeaPatch{X: f64ptr(10)}, ObservedVersion: 1})

	want := Project(b.snapshot(), s.Pending())
	if got := s.View(); !reflect.DeepEqual(got, want) {
		t.Errorf("View diverged from Project(base, pending):\n got=%+v\nwant=%+v", got, want)
	}

	s.Confirm("update-2", nil)
	want = Project(b.snapshot(), s.Pending())
	if got := s.View(); !reflect.DeepEqual(got, want) {
		t.Errorf("View diverged after confirm:\n got=%+v\nwant=%+v", got, want)
	}
}
