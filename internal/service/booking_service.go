package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
	"github.com/diagnosis/hanguk-bookings/pkg/events"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

// Auditor accepts audit entries without ever failing the caller.
type Auditor interface {
	Record(ctx context.Context, e domain.AuditLog)
}

// Notifier tells guests about their booking. Implementations must not block.
type Notifier interface {
	BookingReceived(ctx context.Context, b domain.Booking)
	BookingStatusChanged(ctx context.Context, b domain.Booking, from domain.BookingStatus)
}

type nopNotifier struct{}

func (nopNotifier) BookingReceived(context.Context, domain.Booking) {}
func (nopNotifier) BookingStatusChanged(context.Context, domain.Booking, domain.BookingStatus) {
}

// StaffRef is the public view of the admin who last changed a booking.
type StaffRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// BookingView is a booking with its confirmedBy reference resolved.
type BookingView struct {
	domain.Booking
	Staff *StaffRef
}

type BookingPage struct {
	Bookings []BookingView
	Total    int
}

// SlotAvailability is how much of a slot's capacity is still free.
type SlotAvailability struct {
	Slot      domain.Slot
	Capacity  int
	Booked    int
	Remaining int
}

// HistoryReader lists the audit trail of one resource, oldest first.
type HistoryReader interface {
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLog, error)
}

type BookingService interface {
	Submit(ctx context.Context, in validation.BookingInput) (*domain.Booking, error)
	List(ctx context.Context, in validation.FilterInput) (*BookingPage, error)
	Get(ctx context.Context, id string) (*BookingView, error)
	UpdateStatus(ctx context.Context, actor *domain.Admin, id string, in validation.StatusInput, meta domain.RequestMeta) (*domain.Booking, error)
	Delete(ctx context.Context, actor *domain.Admin, id string, meta domain.RequestMeta) error
	Availability(ctx context.Context, date, hhmm string) (*SlotAvailability, error)
	History(ctx context.Context, id string) ([]domain.AuditLog, error)
}

type bookingService struct {
	bookings  repo.BookingStore
	admins    repo.AdminStore
	history   HistoryReader
	validator *validation.Validator
	audit     Auditor
	eventBus  events.Publisher
	notifier  Notifier
	capacity  int
}

func NewBookingService(
	bookings repo.BookingStore,
	admins repo.AdminStore,
	history HistoryReader,
	validator *validation.Validator,
	audit Auditor,
	eventBus events.Publisher,
	notifier Notifier,
	capacity int,
) BookingService {
	if eventBus == nil {
		eventBus = events.NopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &bookingService{
		bookings:  bookings,
		admins:    admins,
		history:   history,
		validator: validator,
		audit:     audit,
		eventBus:  eventBus,
		notifier:  notifier,
		capacity:  capacity,
	}
}

// Submit admits a public booking as pending if its slot has room.
func (s *bookingService) Submit(ctx context.Context, in validation.BookingInput) (*domain.Booking, error) {
	nb, err := s.validator.Booking(in)
	if err != nil {
		metrics.BookingsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	booking, err := s.bookings.Reserve(ctx, nb, s.capacity)
	if err != nil {
		var capErr *domain.CapacityError
		if errors.As(err, &capErr) {
			metrics.BookingsRejected.WithLabelValues("capacity").Inc()
			logger.InfoContext(ctx, "Slot full, booking rejected", "slot", capErr.Slot.Key(), "capacity", capErr.Capacity)
			return nil, err
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	metrics.BookingsAdmitted.Inc()

	s.publish(ctx, events.BookingCreated, events.BookingCreatedEvent{
		BookingID: booking.ID,
		Date:      booking.Date,
		Time:      booking.Time,
		Guests:    booking.Guests,
		CreatedAt: booking.CreatedAt,
	})
	s.notifier.BookingReceived(ctx, *booking)

	return booking, nil
}

func (s *bookingService) List(ctx context.Context, in validation.FilterInput) (*BookingPage, error) {
	filter, err := s.validator.BookingFilter(in)
	if err != nil {
		return nil, err
	}

	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	staff := s.resolveStaff(ctx, bookings...)
	page := &BookingPage{Bookings: make([]BookingView, 0, len(bookings)), Total: total}
	for _, b := range bookings {
		page.Bookings = append(page.Bookings, BookingView{Booking: b, Staff: staffFor(staff, b.ConfirmedBy)})
	}
	return page, nil
}

func (s *bookingService) Get(ctx context.Context, id string) (*BookingView, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if b == nil {
		return nil, domain.ErrBookingNotFound
	}
	staff := s.resolveStaff(ctx, *b)
	return &BookingView{Booking: *b, Staff: staffFor(staff, b.ConfirmedBy)}, nil
}

// Availability counts the pending and confirmed bookings holding a slot.
func (s *bookingService) Availability(ctx context.Context, date, hhmm string) (*SlotAvailability, error) {
	slot, err := s.validator.Slot(date, hhmm)
	if err != nil {
		return nil, err
	}
	n, err := s.bookings.CountActive(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	return &SlotAvailability{
		Slot:      slot,
		Capacity:  s.capacity,
		Booked:    n,
		Remaining: max(s.capacity-n, 0),
	}, nil
}

// History returns the staff actions recorded against a booking. A deleted
// booking keeps its history; an id with neither history nor a booking is
// not found.
func (s *bookingService) History(ctx context.Context, id string) ([]domain.AuditLog, error) {
	entries, err := s.history.ListByResource(ctx, domain.ResourceBookings, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking history: %w", err)
	}
	if len(entries) > 0 {
		return entries, nil
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if b == nil {
		return nil, domain.ErrBookingNotFound
	}
	return []domain.AuditLog{}, nil
}

// UpdateStatus writes any valid status regardless of the current one.
// Transitions outside the usual lifecycle are logged, not rejected.
func (s *bookingService) UpdateStatus(ctx context.Context, actor *domain.Admin, id string, in validation.StatusInput, meta domain.RequestMeta) (*domain.Booking, error) {
	update, err := s.validator.StatusUpdate(in)
	if err != nil {
		return nil, err
	}

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if current == nil {
		return nil, domain.ErrBookingNotFound
	}

	if !domain.IsNominalTransition(current.Status, update.Status) {
		logger.WarnContext(ctx, "Off-lifecycle status change",
			"booking_id", id,
			"from", current.Status,
			"to", update.Status,
		)
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, update.Status, update.Notes, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrBookingNotFound
	}
	metrics.BookingTransitions.WithLabelValues(string(current.Status), string(updated.Status)).Inc()

	newValues := map[string]any{"status": string(update.Status), "notes": nil}
	if update.Notes != nil {
		newValues["notes"] = *update.Notes
	}
	actorID := actor.ID
	s.audit.Record(ctx, domain.AuditLog{
		AdminID:      &actorID,
		Action:       domain.ActionBookingUpdated,
		ResourceType: domain.ResourceBookings,
		ResourceID:   &id,
		OldValues:    map[string]any{"status": string(current.Status)},
		NewValues:    newValues,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})

	s.publish(ctx, events.BookingUpdated, events.BookingUpdatedEvent{
		BookingID:  id,
		FromStatus: string(current.Status),
		ToStatus:   string(updated.Status),
		ActorID:    actor.ID,
		UpdatedAt:  updated.UpdatedAt,
	})
	s.notifier.BookingStatusChanged(ctx, *updated, current.Status)

	return updated, nil
}

// Delete removes a booking for good; the audit entry keeps its last state.
func (s *bookingService) Delete(ctx context.Context, actor *domain.Admin, id string, meta domain.RequestMeta) error {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if current == nil {
		return domain.ErrBookingNotFound
	}

	deleted, err := s.bookings.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if !deleted {
		return domain.ErrBookingNotFound
	}

	actorID := actor.ID
	s.audit.Record(ctx, domain.AuditLog{
		AdminID:      &actorID,
		Action:       domain.ActionBookingDeleted,
		ResourceType: domain.ResourceBookings,
		ResourceID:   &id,
		OldValues:    current.Snapshot(),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})

	s.publish(ctx, events.BookingDeleted, events.BookingDeletedEvent{
		BookingID: id,
		ActorID:   actor.ID,
		DeletedAt: time.Now().UTC(),
	})
	return nil
}

// resolveStaff looks up the admins referenced by confirmedBy. Lookups that
// fail leave the reference unresolved rather than failing the read.
func (s *bookingService) resolveStaff(ctx context.Context, bookings ...domain.Booking) map[string]*StaffRef {
	out := map[string]*StaffRef{}
	for _, b := range bookings {
		if b.ConfirmedBy == nil {
			continue
		}
		id := *b.ConfirmedBy
		if _, seen := out[id]; seen {
			continue
		}
		a, err := s.admins.FindByID(ctx, id)
		if err != nil {
			logger.WarnContext(ctx, "Failed to resolve staff reference", "admin_id", id, "error", err)
		}
		if a == nil {
			out[id] = nil
			continue
		}
		out[id] = &StaffRef{ID: a.ID, Username: a.Username, Email: a.Email}
	}
	return out
}

func staffFor(staff map[string]*StaffRef, id *string) *StaffRef {
	if id == nil {
		return nil
	}
	return staff[*id]
}

func (s *bookingService) publish(ctx context.Context, subject string, payload any) {
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
