// Package validation turns raw request payloads into normalized domain values.
// It never panics on malformed input; every problem is reported as a
// domain.ValidationError with one entry per offending field.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

const (
	maxNameLen            = 100
	minNameLen            = 2
	maxEmailLen           = 100
	minPhoneLen           = 10
	maxPhoneLen           = 20
	maxSpecialRequestsLen = 500
	maxNotesLen           = 1000
	minUsernameLen        = 3
	maxUsernameLen        = 50
	minPasswordLen        = 8
)

var (
	nameRe     = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRe    = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
	timeRe     = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// BookingInput is the public booking payload as received on the wire.
type BookingInput struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	Date            string      `json:"date"`
	Time            string      `json:"time"`
	Guests          json.Number `json:"guests"`
	SpecialRequests *string     `json:"specialRequests"`
}

type StatusInput struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// FilterInput is the raw query string of the booking list.
type FilterInput struct {
	Status string
	Date   string
	Limit  string
	Offset string
}

// Rules are the restaurant's admission rules.
type Rules struct {
	OpeningTime    string
	ClosingTime    string
	MaxGuests      int
	MaxMonthsAhead int
}

type Validator struct {
	rules   Rules
	opening int
	closing int
	loc     *time.Location
	now     func() time.Time
}

// New builds a validator. now may be nil, in which case time.Now is used.
func New(rules Rules, loc *time.Location, now func() time.Time) (*Validator, error) {
	opening, err := minutesOf(rules.OpeningTime)
	if err != nil {
		return nil, fmt.Errorf("opening time: %w", err)
	}
	closing, err := minutesOf(rules.ClosingTime)
	if err != nil {
		return nil, fmt.Errorf("closing time: %w", err)
	}
	if closing < opening {
		return nil, fmt.Errorf("closing time %s is before opening time %s", rules.ClosingTime, rules.OpeningTime)
	}
	if rules.MaxGuests <= 0 {
		rules.MaxGuests = 20
	}
	if rules.MaxMonthsAhead <= 0 {
		rules.MaxMonthsAhead = 3
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{rules: rules, opening: opening, closing: closing, loc: loc, now: now}, nil
}

// Booking validates a public booking submission.
func (v *Validator) Booking(in BookingInput) (domain.NewBooking, error) {
	verr := &domain.ValidationError{}
	var out domain.NewBooking

	name := strings.TrimSpace(in.Name)
	switch n := utf8.RuneCountInString(name); {
	case name == "":
		verr.Add("name", "Name is required")
	case n < minNameLen || n > maxNameLen:
		verr.Add("name", "Name must be between 2-100 characters")
	case !nameRe.MatchString(name):
		verr.Add("name", "Name can only contain letters, spaces, hyphens and apostrophes")
	default:
		out.Name = name
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case email == "":
		verr.Add("email", "Email is required")
	case !emailRe.MatchString(email):
		verr.Add("email", "Must be a valid email address")
	case len(email) > maxEmailLen:
		verr.Add("email", "Email is too long")
	default:
		out.Email = email
	}

	phone := strings.TrimSpace(in.Phone)
	switch n := utf8.RuneCountInString(phone); {
	case phone == "":
		verr.Add("phone", "Phone number is required")
	case !phoneRe.MatchString(phone):
		verr.Add("phone", "Invalid phone number format")
	case n < minPhoneLen || n > maxPhoneLen:
		verr.Add("phone", "Phone number must be between 10-20 characters")
	default:
		out.Phone = phone
	}

	if date, msg := v.bookingDate(in.Date); msg != "" {
		verr.Add("date", msg)
	} else {
		out.Date = date
	}

	if hhmm, msg := v.bookingTime(in.Time); msg != "" {
		verr.Add("time", msg)
	} else {
		out.Time = hhmm
	}

	guestsRaw := strings.TrimSpace(in.Guests.String())
	if guestsRaw == "" {
		verr.Add("guests", "Number of guests is required")
	} else if g, err := strconv.Atoi(guestsRaw); err != nil || g < 1 || g > v.rules.MaxGuests {
		verr.Add("guests", fmt.Sprintf("Number of guests must be between 1 and %d", v.rules.MaxGuests))
	} else {
		out.Guests = g
	}

	if in.SpecialRequests != nil {
		req := strings.TrimSpace(*in.SpecialRequests)
		if utf8.RuneCountInString(req) > maxSpecialRequestsLen {
			verr.Add("specialRequests", "Special requests cannot exceed 500 characters")
		} else {
			out.SpecialRequests = Escape(req)
		}
	}

	if err := verr.Err(); err != nil {
		return domain.NewBooking{}, err
	}
	return out, nil
}

func (v *Validator) bookingDate(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "Date is required"
	}
	d, ok := parseDate(raw, v.loc)
	if !ok {
		return "", "Invalid date format"
	}

	now := v.now().In(v.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.loc)
	if d.Before(today) {
		return "", "Cannot book a date in the past"
	}
	if d.After(today.AddDate(0, v.rules.MaxMonthsAhead, 0)) {
		return "", fmt.Sprintf("Cannot book more than %d months in advance", v.rules.MaxMonthsAhead)
	}
	return d.Format(time.DateOnly), ""
}

func (v *Validator) bookingTime(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "Time is required"
	}
	m, err := minutesOf(raw)
	if err != nil {
		return "", "Invalid time format (use HH:MM)"
	}
	if m < v.opening || m > v.closing {
		return "", fmt.Sprintf("Restaurant is open from %s to %s", v.rules.OpeningTime, v.rules.ClosingTime)
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60), ""
}

// Slot validates a date and time the same way a booking submission does.
func (v *Validator) Slot(date, hhmm string) (domain.Slot, error) {
	verr := &domain.ValidationError{}
	var out domain.Slot
	if d, msg := v.bookingDate(date); msg != "" {
		verr.Add("date", msg)
	} else {
		out.Date = d
	}
	if t, msg := v.bookingTime(hhmm); msg != "" {
		verr.Add("time", msg)
	} else {
		out.Time = t
	}
	if err := verr.Err(); err != nil {
		return domain.Slot{}, err
	}
	return out, nil
}

// StatusUpdate validates a staff status change.
func (v *Validator) StatusUpdate(in StatusInput) (domain.StatusUpdate, error) {
	verr := &domain.ValidationError{}
	var out domain.StatusUpdate

	status := strings.TrimSpace(in.Status)
	if status == "" {
		verr.Add("status", "Status is required")
	} else if st, ok := domain.ParseBookingStatus(status); !ok {
		verr.Add("status", "Invalid status value")
	} else {
		out.Status = st
	}

	if in.Notes != nil {
		notes := strings.TrimSpace(*in.Notes)
		if utf8.RuneCountInString(notes) > maxNotesLen {
			verr.Add("notes", "Notes cannot exceed 1000 characters")
		} else {
			escaped := Escape(notes)
			out.Notes = &escaped
		}
	}

	if err := verr.Err(); err != nil {
		return domain.StatusUpdate{}, err
	}
	return out, nil
}

// Login checks credential format only; password strength is enforced when
// accounts are created.
func (v *Validator) Login(in LoginInput) (domain.LoginRequest, error) {
	verr := &domain.ValidationError{}

	username := strings.TrimSpace(in.Username)
	switch n := len(username); {
	case username == "":
		verr.Add("username", "Username is required")
	case n < minUsernameLen || n > maxUsernameLen:
		verr.Add("username", "Username must be between 3-50 characters")
	case !usernameRe.MatchString(username):
		verr.Add("username", "Username can only contain letters, numbers and underscores")
	}

	switch {
	case in.Password == "":
		verr.Add("password", "Password is required")
	case len(in.Password) < minPasswordLen:
		verr.Add("password", "Password must be at least 8 characters")
	}

	if err := verr.Err(); err != nil {
		return domain.LoginRequest{}, err
	}
	return domain.LoginRequest{Username: username, Password: in.Password}, nil
}

// BookingFilter validates list query parameters. Empty values mean no
// filter; limit defaults to 100 and is capped at 500.
func (v *Validator) BookingFilter(in FilterInput) (domain.BookingFilter, error) {
	verr := &domain.ValidationError{}
	f := domain.BookingFilter{Limit: domain.DefaultListLimit}

	if s := strings.TrimSpace(in.Status); s != "" {
		if st, ok := domain.ParseBookingStatus(s); ok {
			f.Status = &st
		} else {
			verr.Add("status", "Invalid status value")
		}
	}

	if raw := strings.TrimSpace(in.Date); raw != "" {
		if d, ok := parseDate(raw, v.loc); ok {
			date := d.Format(time.DateOnly)
			f.Date = &date
		} else {
			verr.Add("date", "Invalid date format")
		}
	}

	if raw := strings.TrimSpace(in.Limit); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 1 {
			verr.Add("limit", "Limit must be a positive integer")
		} else {
			f.Limit = min(n, domain.MaxListLimit)
		}
	}

	if raw := strings.TrimSpace(in.Offset); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 0 {
			verr.Add("offset", "Offset must be zero or a positive integer")
		} else {
			f.Offset = n
		}
	}

	if err := verr.Err(); err != nil {
		return domain.BookingFilter{}, err
	}
	return f, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp, which is
// interpreted in the restaurant's time zone.
func parseDate(raw string, loc *time.Location) (time.Time, bool) {
	if d, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return d, true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.In(loc)
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func minutesOf(hhmm string) (int, error) {
	m := timeRe.FindStringSubmatch(hhmm)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q", hhmm)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, nil
}
