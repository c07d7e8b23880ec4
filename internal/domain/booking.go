package domain

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// HoldsSlot reports whether a booking in this status counts against slot capacity.
func (s BookingStatus) HoldsSlot() bool {
	return s == BookingPending || s == BookingConfirmed
}

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// nominalTransitions is the intended lifecycle. Updates are only checked for
// enum membership; this graph is used to flag off-path transitions in logs.
var nominalTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingCompleted, BookingNoShow},
}

// IsNominalTransition reports whether from -> to follows the intended lifecycle.
// Writing the current status again is treated as nominal.
func IsNominalTransition(from, to BookingStatus) bool {
	if from == to {
		return true
	}
	for _, s := range nominalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Booking is a reservation request. Date is a calendar date (YYYY-MM-DD) in
// the restaurant's time zone and Time is HH:MM.
type Booking struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Email           string        `json:"email"`
	Phone           string        `json:"phone"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	Guests          int           `json:"guests"`
	SpecialRequests string        `json:"specialRequests"`
	Status          BookingStatus `json:"status"`
	Notes           string        `json:"notes"`
	ConfirmedBy     *string       `json:"confirmedBy"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (b *Booking) Slot() Slot {
	return Slot{Date: b.Date, Time: b.Time}
}

// Snapshot is the structured copy written into audit entries.
func (b *Booking) Snapshot() map[string]any {
	snap := map[string]any{
		"id":              b.ID,
		"name":            b.Name,
		"email":           b.Email,
		"phone":           b.Phone,
		"date":            b.Date,
		"time":            b.Time,
		"guests":          b.Guests,
		"specialRequests": b.SpecialRequests,
		"status":          string(b.Status),
		"notes":           b.Notes,
		"confirmedBy":     nil,
		"createdAt":       b.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if b.ConfirmedBy != nil {
		snap["confirmedBy"] = *b.ConfirmedBy
	}
	return snap
}

// Slot is the (date, time) pair bookings compete for.
type Slot struct {
	Date string
	Time string
}

func (s Slot) Key() string {
	return s.Date + "T" + s.Time
}

// NewBooking is a validated, normalized public booking submission.
type NewBooking struct {
	Name            string
	Email           string
	Phone           string
	Date            string
	Time            string
	Guests          int
	SpecialRequests string
}

func (n NewBooking) Slot() Slot {
	return Slot{Date: n.Date, Time: n.Time}
}

// StatusUpdate is a validated staff status change. Notes is nil when omitted.
type StatusUpdate struct {
	Status BookingStatus
	Notes  *string
}

type BookingFilter struct {
	Status *BookingStatus
	Date   *string
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)
