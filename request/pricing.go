package request

import (
	"errors"
	"time"
)

var (
	// ErrInvalidDateRange signals start >= end.
	ErrInvalidDateRange = errors.New("request: start date must be before end date")
	// ErrPastStartDate signals a start date before today.
	ErrPastStartDate = errors.New("request: start date may not be in the past")
	// ErrMissingRate signals the resource has no rentable rate.
	ErrMissingRate = errors.New("request: resource has no daily rate")
)

const rentalDay = 24 * time.Hour

// ComputeTotal prices the half-open range [start, end) at rateCents per day,
// rounding partial days up. The start date must not precede the calendar day
// of now.
func ComputeTotal(start, end time.Time, rateCents int64, now time.Time) (int64, error) {
	if rateCents <= 0 {
		return 0, ErrMissingRate
	}
	if !start.Before(end) {
		return 0, ErrInvalidDateRange
	}
	if dateOf(start).Before(dateOf(now)) {
		return 0, ErrPastStartDate
	}

	span := end.Sub(start)
	days := int64(span / rentalDay)
	if span%rentalDay != 0 {
		days++
	}
	return days * rateCents, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
