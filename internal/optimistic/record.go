// Package optimistic keeps a locally rendered collection of shared idea
// cards consistent with the authoritative store while edits are in flight.
// Mutations are applied speculatively for immediate feedback, then confirmed
// or reverted once the backend answers; records that never resolve are
// auto-reverted after a timeout.
package optimistic

import (
	"errors"
	"time"

	"quadrant/api/internal/store"
)

// Kind discriminates the payload carried by a speculative record.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindMove   Kind = "move"
)

var (
	// ErrDuplicateUpdate is returned by Apply when the update id is already pending.
	ErrDuplicateUpdate = errors.New("optimistic: update id already pending")
	// ErrPendingDelete is returned by Apply when the target entity has an
	// unresolved pending delete. The delete must confirm or revert first.
	ErrPendingDelete = errors.New("optimistic: entity has a pending delete")
	// ErrInvalidRecord is returned by Apply for records missing required fields.
	ErrInvalidRecord = errors.New("optimistic: invalid record")
	// ErrExpired is passed to OnError when a record auto-reverts on timeout.
	ErrExpired = errors.New("optimistic: update expired before resolution")
)

// Record is one pending speculative mutation. The payload is a tagged union
// over Kind: create carries a full Idea, update and move carry a Patch,
// delete carries nothing beyond the entity id.
type Record struct {
	// ID is unique per attempt and caller-generated; it is distinct from the
	// entity id so the same card can have several records in flight.
	ID       string
	Kind     Kind
	EntityID string

	// Original is a full copy of the entity as it stood immediately before
	// this record was applied (nil for create). The projector never reads
	// it; it exists so a reverted record can show the user what was lost
	// and so tests can assert the view returns to its prior state exactly.
	Original *store.Idea

	// Idea is the full speculative entity for create records.
	Idea *store.Idea
	// Patch carries the changed fields for update and move records. A move
	// is just a patch restricted by convention to X/Y; the merge logic does
	// not special-case geometry.
	Patch store.IdeaPatch

	// ObservedVersion is the entity version the client believed was current
	// when it built this record.
	ObservedVersion int64
	CreatedAt       time.Time
}

func (r Record) validate() error {
	if r.ID == "" {
		return ErrInvalidRecord
	}
	switch r.Kind {
	case KindCreate:
		if r.Idea == nil || r.Idea.ID == "" {
			return ErrInvalidRecord
		}
	case KindUpdate, KindMove, KindDelete:
		if r.EntityID == "" {
			return ErrInvalidRecord
		}
	default:
		return ErrInvalidRecord
	}
	return nil
}

// targetID is the entity the record affects in the projected view.
func (r Record) targetID() string {
	if r.Kind == KindCreate {
		return r.Idea.ID
	}
	return r.EntityID
}

// State describes the lifecycle position of a speculative record. A record
// resolves exactly once: pending until Confirm or Revert (or expiry), then
// terminal.
type State string

const (
	StateUnknown   State = "unknown"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateReverted  State = "reverted"
)
