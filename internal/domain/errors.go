package domain

import (
	"errors"
	"strings"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrSlotFull     = errors.New("slot is fully booked")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrBookingNotFound = &NotFoundError{Resource: "Booking"}
	ErrAdminNotFound   = &NotFoundError{Resource: "Admin"}
)

// ErrInvalidCredentials never distinguishes an unknown user from a wrong password.
var ErrInvalidCredentials = &AuthError{Message: "Invalid credentials"}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level problem found in a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field errors were collected.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// CapacityError is returned when a slot already holds its maximum bookings.
type CapacityError struct {
	Slot     Slot
	Capacity int
}

func (e *CapacityError) Error() string {
	return "Sorry, this time slot is fully booked. Please choose another time."
}

func (e *CapacityError) Unwrap() error { return ErrSlotFull }

// AuthError carries the generic message shown to the client.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return ErrUnauthorized }

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
