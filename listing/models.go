package listing

import "time"

type Kind string

const (
	KindJob       Kind = "job"
	KindEquipment Kind = "equipment"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
)

// Listing mirrors the listings table. A job posting and an equipment item
// share the same row shape; equipment additionally carries a daily rate.
type Listing struct {
	ID             string
	OwnerID        string
	Kind           Kind
	Title          string
	Description    string
	Location       string
	DailyRateCents *int64
	Status         Status
	Applicants     int
	Views          int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Open reports whether the listing accepts new requests. Closed listings
// reject creation; available and active both accept.
func (l Listing) Open() bool {
	return l.Status == StatusAvailable || l.Status == StatusActive
}

// Filters narrows List results. Only the fields below are honored; anything
// else a caller sends is dropped before reaching this struct.
type Filters struct {
	OwnerID    string
	Kind       Kind
	Status     Status
	TitleQuery string
	Page       int
	PageSize   int
}

func validKind(k Kind) bool {
	return k == KindJob || k == KindEquipment
}

func validStatus(s Status) bool {
	return s == StatusAvailable || s == StatusActive || s == StatusClosed
}
