// Package repo defines the persistence ports shared by the Postgres, MongoDB
// and in-memory backends.
//
// Lookups return (nil, nil) when the record does not exist.
package repo

import (
	"context"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type BookingStore interface {
	// Reserve is the only way a booking is created. It admits the booking
	// as pending only if fewer than capacity bookings holding the slot
	// exist, and returns *domain.CapacityError otherwise. Concurrent
	// reservations for the same slot are serialized by the backend.
	Reserve(ctx context.Context, in domain.NewBooking, capacity int) (*domain.Booking, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// List returns one page of bookings ordered by date and time, newest
	// first, along with the number of bookings matching the filter.
	List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int, error)
	// UpdateStatus sets status and confirmedBy, and notes when non-nil.
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus, notes *string, actorID string) (*domain.Booking, error)
	Delete(ctx context.Context, id string) (bool, error)
	CountActive(ctx context.Context, slot domain.Slot) (int, error)
}

type AdminStore interface {
	FindActiveByUsername(ctx context.Context, username string) (*domain.Admin, error)
	FindByID(ctx context.Context, id string) (*domain.Admin, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// Create returns domain.ErrConflict when the username is taken.
	Create(ctx context.Context, a *domain.Admin) error
	Count(ctx context.Context) (int, error)
}

type TokenStore interface {
	Create(ctx context.Context, t *domain.AuthToken) error
	// FindLive returns the row for token only if it expires after now.
	FindLive(ctx context.Context, token string, now time.Time) (*domain.AuthToken, error)
	// Delete is idempotent.
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type AuditStore interface {
	Insert(ctx context.Context, e *domain.AuditLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles the four record collections of one backend.
type Store interface {
	Bookings() BookingStore
	Admins() AdminStore
	Tokens() TokenStore
	Audit() AuditStore
	// Backend names the storage engine for health reporting.
	Backend() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
