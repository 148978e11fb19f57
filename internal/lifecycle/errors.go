package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
)

var (
	ErrNotAuthenticated  = errors.New("lifecycle: no authenticated session")
	ErrUnknownRequest    = errors.New("lifecycle: request is not tracked")
	ErrInvalidTransition = errors.New("lifecycle: invalid status transition")
	ErrNotTerminal       = errors.New("lifecycle: request is not in a terminal state")
	ErrNoCountdown       = errors.New("lifecycle: no sign-out countdown is running")
)

// ValidationError is a local precondition failure. It is returned before any
// network call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DuplicateRequestError rejects a submission while the user already has a
// request in flight or under review.
type DuplicateRequestError struct {
	UserID    string
	RequestID string
	State     entity.State
}

func (e *DuplicateRequestError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("user %s already has a request being submitted", e.UserID)
	}
	return fmt.Sprintf("user %s already has request %s in state %s", e.UserID, e.RequestID, e.State)
}

// NotificationDeliveryError records an e-mail that could not be delivered.
// It is logged and never reverts a state transition.
type NotificationDeliveryError struct {
	To      string
	Subject string
	Err     error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %q to %s: %v", e.Subject, e.To, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }
