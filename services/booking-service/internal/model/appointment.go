package model

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConcluded Status = "CONCLUDED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusConcluded || s == StatusCancelled
}

type Appointment struct {
	ID           string
	ClientID     string
	ClientName   string
	ServiceID    string
	ServiceTitle string
	ProviderID   string
	BusinessID   string
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	CancelReason string
	ConcludedAt  *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BlockedClient bars a client from booking within a scope: the provider's business, or the
// provider itself when it has none.
type BlockedClient struct {
	ScopeID   string
	ClientID  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
