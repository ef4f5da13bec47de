package domain

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether a real-time session may be bound to a booking
// in this status.
func (s Status) Active() bool {
	return s == StatusAccepted || s == StatusInProgress
}

type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleRequester, RoleProvider:
		return Role(s), true
	default:
		return "", false
	}
}

// Booking is the central entity: one engagement between a requester and
// a provider for a service. Identity, participants, and the service
// reference are immutable after creation; status moves along the
// transition graph and every successful transition bumps Version.
type Booking struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	ProviderID  string `json:"provider_id"`
	ServiceID   string `json:"service_id"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`

	ScheduledAt time.Time `json:"scheduled_at"`
	Address     string    `json:"address"`

	EstimatedPrice float64  `json:"estimated_price"`
	FinalPrice     *float64 `json:"final_price,omitempty"`

	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsParticipant reports whether the actor is one of the two parties
// bound to this booking.
func (b *Booking) IsParticipant(actorID string) bool {
	return actorID == b.RequesterID || actorID == b.ProviderID
}

// ActorFor returns the participant id that holds the given role on this
// booking.
func (b *Booking) ActorFor(role Role) string {
	if role == RoleProvider {
		return b.ProviderID
	}
	return b.RequesterID
}

// Clone returns a deep copy so stores can hand out snapshots without
// sharing pointers with callers.
func (b *Booking) Clone() *Booking {
	c := *b
	if b.FinalPrice != nil {
		v := *b.FinalPrice
		c.FinalPrice = &v
	}
	if b.AcceptedAt != nil {
		t := *b.AcceptedAt
		c.AcceptedAt = &t
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
