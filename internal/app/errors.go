package app

import (
	"fmt"
	"net/http"

	"quadrant/api/internal/optimistic"
)

// DomainError carries an HTTP-mappable failure out of the service layer.
// Details is an optional JSON-serializable payload, used by the concurrency
// rejections to tell the client how to recover.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// staleVersionError tells the client to refetch; currentVersion is included
// when the winning row could still be read.
func staleVersionError(currentVersion int64) *DomainError {
	var details any
	if currentVersion > 0 {
		details = map[string]any{"currentVersion": currentVersion}
	}
	return domainError(http.StatusConflict, optimistic.CodeStaleVersion, "Idea was changed by someone else", details)
}

func lockHeldError(details map[string]any) *DomainError {
	var payload any
	if len(details) > 0 {
		payload = details
	}
	return domainError(http.StatusLocked, optimistic.CodeLockHeld, "Idea is being edited by another collaborator", payload)
}

func unavailableError(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
