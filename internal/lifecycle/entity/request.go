package entity

import "time"

// Type is the kind of account lifecycle request.
type Type string

const (
	TypeDeactivation Type = "deactivation"
	TypeDeletion     Type = "deletion"
)

// Valid reports whether t is a known request type.
func (t Type) Valid() bool {
	return t == TypeDeactivation || t == TypeDeletion
}

// Status is the server-side review status of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Request mirrors one account lifecycle request record.
type Request struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Email       string     `json:"email"`
	RequestType Type       `json:"requestType"`
	Reason      string     `json:"reason,omitempty"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy  *string    `json:"reviewedBy,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// Submission is the create payload sent to the API.
type Submission struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	RequestType Type   `json:"requestType"`
	Reason      string `json:"reason,omitempty"`
}

// State is the client-side workflow state for one user.
type State string

const (
	StateNone       State = "NONE"
	StateSubmitting State = "SUBMITTING"
	StatePending    State = "PENDING"
	StateReviewing  State = "REVIEWING"
	StateApproved   State = "APPROVED"
	StateRejected   State = "REJECTED"
)

// StateFor maps a server status onto the workflow state.
func StateFor(s Status) State {
	switch s {
	case StatusPending:
		return StatePending
	case StatusReviewing:
		return StateReviewing
	case StatusApproved:
		return StateApproved
	case StatusRejected:
		return StateRejected
	default:
		return StateNone
	}
}

// StatusEvent is one observed review update, from polling, push or tests.
type StatusEvent struct {
	RequestID  string
	Status     Status
	ReviewedAt *time.Time
	ReviewedBy *string
	Notes      *string
}

// EventFrom builds the event describing r's current status.
func EventFrom(r Request) StatusEvent {
	return StatusEvent{
		RequestID:  r.ID,
		Status:     r.Status,
		ReviewedAt: r.ReviewedAt,
		ReviewedBy: r.ReviewedBy,
		Notes:      r.Notes,
	}
}

// Message is one outbound e-mail notification.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
	// IdempotencyKey lets the API drop duplicates produced by retries.
	IdempotencyKey string `json:"-"`
}
