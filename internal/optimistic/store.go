package optimistic

import (
	"log"
	"sync"
	"time"

	"quadrant/api/internal/store"
)

// DefaultTimeout is how long a speculative record may stay unresolved before
// it auto-reverts.
const DefaultTimeout = 10 * time.Second

// Snapshot returns the caller's current authoritative base collection. The
// store never keeps its own copy of the base, so there is exactly one
// writable source of truth at all times.
type Snapshot func() []store.Idea

// Updater commits a fold into the caller-owned base collection, mirroring a
// functional state-setter: the store hands over a transform, the caller
// applies it to its current value.
type Updater func(apply func(prev []store.Idea) []store.Idea)

// Callbacks are optional lifecycle hooks invoked synchronously at the
// corresponding transition.
type Callbacks struct {
	OnSuccess func(updateID string, confirmed *store.Idea)
	OnError   func(updateID string, err error)
	OnRevert  func(updateID string)
}

// Options configures a Store. Zero values fall back to DefaultTimeout and
// the wall-clock scheduler.
type Options struct {
	Timeout   time.Duration
	Scheduler Scheduler
	Callbacks Callbacks
}

// Store tracks pending speculative records and their expiry timers for one
// collaborative board session. Apply registers a record and the projected
// view changes synchronously; Confirm folds the outcome into the base
// collection; Revert discards the record, leaving the base untouched (the
// base was never mutated by Apply in the first place).
//
// All bookkeeping is guarded by one mutex because timers fire on their own
// goroutines; each record still resolves exactly once.
type Store struct {
	snapshot  Snapshot
	update    Updater
	timeout   time.Duration
	scheduler Scheduler
	callbacks Callbacks

	mu      sync.Mutex
	pending []*pendingRecord
	byID    map[string]*pendingRecord
	states  map[string]State
}

type pendingRecord struct {
	record Record
	timer  Timer
}

// NewStore creates a store over a caller-owned base collection.
func NewStore(snapshot Snapshot, update Updater, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Scheduler == nil {
		opts.Scheduler = WallClock()
	}
	return &Store{
		snapshot:  snapshot,
		update:    update,
		timeout:   opts.Timeout,
		scheduler: opts.Scheduler,
		callbacks: opts.Callbacks,
		byID:      make(map[string]*pendingRecord),
		states:    make(map[string]State),
	}
}

// Apply registers a speculative record and starts its expiry timer. It
// returns immediately; the next call to View reflects the record. Records
// for different entities coexist additively, and multiple records for the
// same entity are all retained; the projection applies them in insertion
// order, so the latest one is visually authoritative until it resolves.
//
// A record targeting an entity with an unresolved pending delete is
// rejected with ErrPendingDelete.
func (s *Store) Apply(record Record) error {
	if err := record.validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[record.ID]; exists {
		return ErrDuplicateUpdate
	}
	for _, pr := range s.pending {
		if pr.record.Kind == KindDelete && pr.record.EntityID == record.targetID() {
			return ErrPendingDelete
		}
	}

	pr := &pendingRecord{record: record}
	updateID := record.ID
	pr.timer = s.scheduler.AfterFunc(s.timeout, func() {
		s.expire(updateID)
	})
	s.pending = append(s.pending, pr)
	s.byID[updateID] = pr
	s.states[updateID] = StatePending
	return nil
}

// Confirm resolves a record as accepted by the backend and folds the outcome
// into the base collection through the injected updater. confirmed is the
// authoritative row returned by the backend; if nil, the speculative data is
// folded instead. Confirming an unknown or already-resolved id is a logged
// no-op; duplicates are expected under network retries.
func (s *Store) Confirm(updateID string, confirmed *store.Idea) bool {
	s.mu.Lock()
	pr, ok := s.byID[updateID]
	if !ok {
		s.mu.Unlock()
		log.Printf("optimistic: confirm for unknown update %s (no-op)", updateID)
		return false
	}
	pr.timer.Stop()
	s.removeLocked(updateID)
	s.states[updateID] = StateConfirmed
	record := pr.record
	s.mu.Unlock()

	s.update(func(prev []store.Idea) []store.Idea {
		return foldConfirmed(prev, record, confirmed)
	})
	if s.callbacks.OnSuccess != nil {
		s.callbacks.OnSuccess(updateID, confirmed)
	}
	return true
}

// Revert resolves a record as rejected, timed out, or cancelled. The record
// simply stops being projected; the base collection is not touched because
// Apply never wrote to it. Reverting an unknown or already-resolved id is a
// logged no-op.
func (s *Store) Revert(updateID string) bool {
	return s.revert(updateID, nil)
}

func (s *Store) revert(updateID string, cause error) bool {
	s.mu.Lock()
	pr, ok := s.byID[updateID]
	if !ok {
		s.mu.Unlock()
		log.Printf("optimistic: revert for unknown update %s (no-op)", updateID)
		return false
	}
	pr.timer.Stop()
	s.removeLocked(updateID)
	s.states[updateID] = StateReverted
	s.mu.Unlock()

	if cause != nil && s.callbacks.OnError != nil {
		s.callbacks.OnError(updateID, cause)
	}
	if s.callbacks.OnRevert != nil {
		s.callbacks.OnRevert(updateID)
	}
	return true
}

// expire is the timer path. The manual-resolution paths stop the timer under
// the mutex, and revert re-checks membership, so a record that confirms and
// expires in a race still resolves exactly once.
func (s *Store) expire(updateID string) {
	if s.revert(updateID, ErrExpired) {
		log.Printf("optimistic: update %s expired after %s, auto-reverted", updateID, s.timeout)
	}
}

func (s *Store) removeLocked(updateID string) {
	delete(s.byID, updateID)
	for i, pr := range s.pending {
		if pr.record.ID == updateID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// View projects the current pending records over the caller's base
// collection. At any instant View() == Project(base, Pending()).
func (s *Store) View() []store.Idea {
	return Project(s.snapshot(), s.Pending())
}

// Pending returns the pending records in insertion order.
func (s *Store) Pending() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]Record, len(s.pending))
	for i, pr := range s.pending {
		records[i] = pr.record
	}
	return records
}

// StateOf reports the lifecycle state of an update id seen by this store.
func (s *Store) StateOf(updateID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[updateID]; ok {
		return state
	}
	return StateUnknown
}

// Close cancels all outstanding timers without resolving the records. Used
// when a board session is discarded wholesale.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range s.pending {
		pr.timer.Stop()
	}
	s.pending = nil
	s.byID = make(map[string]*pendingRecord)
}

// foldConfirmed merges one confirmed outcome into the base collection.
func foldConfirmed(prev []store.Idea, record Record, confirmed *store.Idea) []store.Idea {
	next := make([]store.Idea, len(prev))
	copy(next, prev)

	switch record.Kind {
	case KindCreate:
		idea := record.Idea
		if confirmed != nil {
			idea = confirmed
		}
		return append(next, *idea)
	case KindUpdate, KindMove:
		for i := range next {
			if next[i].ID != record.EntityID {
				continue
			}
			if confirmed != nil {
				next[i] = *confirmed
			} else {
				next[i] = record.Patch.Merge(next[i])
				next[i].Version = record.ObservedVersion + 1
			}
			return next
		}
		// Entity absent from the base (e.g. its create was itself reverted);
		// a confirmed row still lands in the collection.
		if confirmed != nil {
			return append(next, *confirmed)
		}
		return next
	case KindDelete:
		return removeFrom(next, record.EntityID)
	}
	return next
}
