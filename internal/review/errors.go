package review

import (
	"fmt"
	"strings"
)

const (
	CodeInvalidTransition            = "review_invalid_transition"
	CodeProtectedConfirmationMissing = "review_protected_confirmation_required"
	CodeApplyConflict                = "review_apply_conflict"
	CodeNotFound                     = "review_not_found"
	CodeHashMismatch                 = "review_hash_mismatch"
	CodeInvalidRequest               = "review_invalid_request"
)

// Error is a coded gate failure. Details is safe to return to the operator.
type Error struct {
	Code    string
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return e.Code
}

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, &review.Error{Code: review.CodeApplyConflict}).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

func invalidTransition(from State, event Event) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s a review in state %s", event, from),
		Details: map[string]interface{}{"state": from, "event": event},
	}
}

func notFound(session, reviewID string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "review not found",
		Details: map[string]interface{}{"session_id": session, "review_id": reviewID},
	}
}
