package optimistic

import (
	"encoding/json"
	"net/http"
	"time"

	"quadrant/api/internal/store"
)

// Outcome classifies whether a mutation is (or was) admissible.
type Outcome string

const (
	// Admissible means the mutation may be sent with its observed version.
	Admissible Outcome = "admissible"
	// StaleVersion means the entity's current version no longer matches
	// what the client observed. The caller must refetch before retrying;
	// resending the same observed version can never succeed.
	StaleVersion Outcome = "stale_version"
	// Locked means another collaborator holds an unexpired edit lock.
	// Surface it ("being edited by X"); do not retry automatically.
	Locked Outcome = "locked"
	// TransportFailure covers generic network or server errors. Retrying is
	// a user decision, never automatic.
	TransportFailure Outcome = "transport_failure"
)

// Rejection codes carried in conflict response bodies.
const (
	CodeStaleVersion = "STALE_VERSION"
	CodeLockHeld     = "LOCK_HELD"
)

// CheckBeforeSend decides whether a mutation against idea, built when the
// client observed observedVersion, is admissible for actorID. It is purely
// advisory and mutates nothing; the backend re-checks on write. A lock whose
// expiry is in the past counts as released.
func CheckBeforeSend(idea store.Idea, observedVersion int64, actorID string, now time.Time) Outcome {
	if idea.Version != observedVersion {
		return StaleVersion
	}
	if idea.LockOwner != nil && *idea.LockOwner != actorID {
		if idea.LockExpires == nil || idea.LockExpires.After(now) {
			return Locked
		}
	}
	return Admissible
}

// ClassifyRejection maps a backend rejection into the same three-way outcome
// as CheckBeforeSend so the reconciler can pick its recovery: revert-and-
// refetch for StaleVersion, revert-and-disable-editing for Locked,
// revert-and-let-the-user-retry for everything else.
func ClassifyRejection(httpStatus int, body []byte) Outcome {
	var payload struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &payload)

	switch payload.Code {
	case CodeStaleVersion:
		return StaleVersion
	case CodeLockHeld:
		return Locked
	}
	switch httpStatus {
	case http.StatusConflict:
		return StaleVersion
	case http.StatusLocked:
		return Locked
	}
	return TransportFailure
}
