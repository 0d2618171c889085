package request

import "time"

type Kind string

const (
	KindApplication Kind = "application"
	KindRental      Kind = "rental"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Request is the unifying entity behind a job application and an
// equipment-rental request. It mirrors the requests table; owner_id is a
// snapshot of the resource owner taken at creation time and never follows
// later ownership changes.
type Request struct {
	ID               string
	Kind             Kind
	ResourceID       string
	RequesterID      string
	OwnerID          string
	Status           Status
	Message          *string
	AttachmentURL    *string
	AttachmentFileID *string
	StartDate        *time.Time
	EndDate          *time.Time
	UnitRateCents    *int64
	PriceTotalCents  *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Summary joins a Request with the display fields list endpoints need: the
// resource title and the counterpart's name and email.
type Summary struct {
	Request
	ResourceTitle    string
	CounterpartName  string
	CounterpartEmail string
}

// Terminal reports whether no further status transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the edge from -> to exists in the lifecycle
// graph. approved/rejected/cancelled leave pending; completed leaves
// approved. Re-opening is not supported.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusApproved, StatusRejected, StatusCancelled:
		return from == StatusPending
	case StatusCompleted:
		return from == StatusApproved
	default:
		return false
	}
}

// transitionSources returns the statuses a row may hold for the transition
// to target to apply. Used for atomic compare-and-set updates.
func transitionSources(target Status) []Status {
	switch target {
	case StatusApproved, StatusRejected, StatusCancelled:
		return []Status{StatusPending}
	case StatusCompleted:
		return []Status{StatusApproved}
	default:
		return nil
	}
}

func validKind(k Kind) bool {
	return k == KindApplication || k == KindRental
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}
