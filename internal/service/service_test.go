package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/hanguk-bookings/internal/audit"
	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo/memory"
	"github.com/diagnosis/hanguk-bookings/internal/service"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
	"github.com/diagnosis/hanguk-bookings/pkg/auth"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)

type captureAuditor struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (c *captureAuditor) Record(_ context.Context, e domain.AuditLog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureAuditor) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}

func (c *captureAuditor) last() domain.AuditLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[len(c.entries)-1]
}

type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *captureNotifier) BookingReceived(_ context.Context, b domain.Booking) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "received:"+b.ID)
}

func (c *captureNotifier) BookingStatusChanged(_ context.Context, b domain.Booking, from domain.BookingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, string(from)+"->"+string(b.Status)+":"+b.ID)
}

func (c *captureNotifier) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

type fixture struct {
	store    *memory.Store
	auditor  *captureAuditor
	notifier *captureNotifier
	bookings service.BookingService
	sessions service.SessionService
	admin    *domain.Admin
	now      time.Time
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(nil), auditor: &captureAuditor{}, notifier: &captureNotifier{}, now: fixedNow}
	clock := func() time.Time { return f.now }

	v, err := validation.New(validation.Rules{OpeningTime: "17:30", ClosingTime: "22:00", MaxGuests: 20, MaxMonthsAhead: 3}, time.UTC, clock)
	require.NoError(t, err)

	f.bookings = service.NewBookingService(f.store.Bookings(), f.store.Admins(), f.store.Audit(), v, f.auditor, nil, f.notifier, capacity)
	f.sessions, err = service.NewSessionService(f.store.Admins(), f.store.Tokens(), v, f.auditor, service.SessionConfig{
		Secret:   testSecret,
		TokenTTL: 24 * time.Hour,
		Now:      clock,
	})
	require.NoError(t, err)

	hash, err := auth.HashPassword("Password123!")
	require.NoError(t, err)
	f.admin = &domain.Admin{Username: "staff1", PasswordHash: hash, Email: "staff1@hangukbites.com", Role: domain.RoleStaff, IsActive: true}
	require.NoError(t, f.store.Admins().Create(context.Background(), f.admin))
	return f
}

func bookingInput(name, hhmm string, guests int) validation.BookingInput {
	return validation.BookingInput{
		Name:   name,
		Email:  "guest@example.com",
		Phone:  "555-123-4567",
		Date:   "2026-10-20",
		Time:   hhmm,
		Guests: json.Number(strconv.Itoa(guests)),
	}
}

var meta = domain.RequestMeta{IPAddress: "203.0.113.9", UserAgent: "test"}

func TestSubmit_CreatesPendingBooking(t *testing.T) {
	f := newFixture(t, 50)

	b, err := f.bookings.Submit(context.Background(), bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, "2026-10-20", b.Date)
	assert.Equal(t, "19:00", b.Time)
	assert.Nil(t, b.ConfirmedBy)
	// Public submissions are not audited.
	assert.Empty(t, f.auditor.actions())
	assert.Equal(t, []string{"received:" + b.ID}, f.notifier.all())
}

func TestSubmit_ValidationFailure(t *testing.T) {
	f := newFixture(t, 50)

	_, err := f.bookings.Submit(context.Background(), bookingInput("J", "23:00", 0))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubmit_SlotCapacity(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		b, err := f.bookings.Submit(ctx, bookingInput("Guest Name", "18:00", 2))
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	_, err := f.bookings.Submit(ctx, bookingInput("Guest Name", "18:00", 2))
	require.ErrorIs(t, err, domain.ErrSlotFull)

	// A different slot on the same evening is unaffected.
	_, err = f.bookings.Submit(ctx, bookingInput("Guest Name", "18:30", 2))
	require.NoError(t, err)

	// Cancelling frees the seat.
	_, err = f.bookings.UpdateStatus(ctx, f.admin, ids[0], validation.StatusInput{Status: "cancelled"}, meta)
	require.NoError(t, err)
	_, err = f.bookings.Submit(ctx, bookingInput("Guest Name", "18:00", 2))
	require.NoError(t, err)
}

func TestAvailability_CountsSlotHolders(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	a, err := f.bookings.Availability(ctx, "2026-10-20", "18:00")
	require.NoError(t, err)
	assert.Equal(t, &service.SlotAvailability{
		Slot:      domain.Slot{Date: "2026-10-20", Time: "18:00"},
		Capacity:  3,
		Booked:    0,
		Remaining: 3,
	}, a)

	var ids []string
	for i := 0; i < 3; i++ {
		b, err := f.bookings.Submit(ctx, bookingInput("Guest Name", "18:00", 2))
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	a, err = f.bookings.Availability(ctx, "2026-10-20", "18:00")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Booked)
	assert.Equal(t, 0, a.Remaining)

	_, err = f.bookings.UpdateStatus(ctx, f.admin, ids[0], validation.StatusInput{Status: "completed"}, meta)
	require.NoError(t, err)
	a, err = f.bookings.Availability(ctx, "2026-10-20", "18:00")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Booked)
	assert.Equal(t, 1, a.Remaining)
}

func TestAvailability_ValidatesSlot(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.bookings.Availability(context.Background(), "2026-10-01", "23:00")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	b, err := f.bookings.Submit(ctx, bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)

	entries, err := f.bookings.History(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)

	_, err = f.bookings.History(ctx, "no-such-booking")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id := b.ID
	require.NoError(t, f.store.Audit().Insert(ctx, &domain.AuditLog{
		Action:       domain.ActionBookingDeleted,
		ResourceType: domain.ResourceBookings,
		ResourceID:   &id,
	}))
	require.NoError(t, f.bookings.Delete(ctx, f.admin, b.ID, meta))

	entries, err = f.bookings.History(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionBookingDeleted, entries[0].Action)
}

// Mirrors the staff workflow: confirm, then complete, then a late correction
// back to pending that is allowed even though it leaves the usual lifecycle.
func TestUpdateStatus_PermissiveTransitions(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	b, err := f.bookings.Submit(ctx, bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)

	notes := "Window table"
	updated, err := f.bookings.UpdateStatus(ctx, f.admin, b.ID, validation.StatusInput{Status: "confirmed", Notes: &notes}, meta)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, updated.Status)
	assert.Equal(t, "Window table", updated.Notes)
	require.NotNil(t, updated.ConfirmedBy)
	assert.Equal(t, f.admin.ID, *updated.ConfirmedBy)

	entry := f.auditor.last()
	assert.Equal(t, domain.ActionBookingUpdated, entry.Action)
	assert.Equal(t, domain.ResourceBookings, entry.ResourceType)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, b.ID, *entry.ResourceID)
	assert.Equal(t, map[string]any{"status": "pending"}, entry.OldValues)
	assert.Equal(t, map[string]any{"status": "confirmed", "notes": "Window table"}, entry.NewValues)
	assert.Equal(t, meta.IPAddress, entry.IPAddress)

	_, err = f.bookings.UpdateStatus(ctx, f.admin, b.ID, validation.StatusInput{Status: "completed"}, meta)
	require.NoError(t, err)

	back, err := f.bookings.UpdateStatus(ctx, f.admin, b.ID, validation.StatusInput{Status: "pending"}, meta)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, back.Status)
	assert.Equal(t, "Window table", back.Notes, "omitted notes keep the stored value")

	entry = f.auditor.last()
	assert.Equal(t, map[string]any{"status": "completed"}, entry.OldValues)
	assert.Equal(t, map[string]any{"status": "pending", "notes": nil}, entry.NewValues)

	assert.Equal(t, []string{
		"received:" + b.ID,
		"pending->confirmed:" + b.ID,
		"confirmed->completed:" + b.ID,
		"completed->pending:" + b.ID,
	}, f.notifier.all())
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	_, err := f.bookings.UpdateStatus(ctx, f.admin, "missing", validation.StatusInput{Status: "confirmed"}, meta)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	b, err := f.bookings.Submit(ctx, bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, f.admin, b.ID, validation.StatusInput{Status: "seated"}, meta)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.auditor.actions())
}

type brokenAuditStore struct {
	memory.AuditStore
}

func (*brokenAuditStore) Insert(context.Context, *domain.AuditLog) error {
	return errors.New("audit table locked")
}

func TestUpdateStatus_SucceedsWhenAuditStoreFails(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	rec := audit.NewRecorder(&brokenAuditStore{}, audit.Options{QueueSize: 4})
	t.Cleanup(func() { _ = rec.Close(context.Background()) })

	v, err := validation.New(validation.Rules{OpeningTime: "17:30", ClosingTime: "22:00"}, time.UTC, func() time.Time { return fixedNow })
	require.NoError(t, err)
	svc := service.NewBookingService(f.store.Bookings(), f.store.Admins(), f.store.Audit(), v, rec, nil, nil, 50)

	b, err := svc.Submit(ctx, bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)
	updated, err := svc.UpdateStatus(ctx, f.admin, b.ID, validation.StatusInput{Status: "confirmed"}, meta)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, updated.Status)
	require.NoError(t, rec.Flush(ctx))
}

func TestDelete_AuditsFullSnapshot(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	b, err := f.bookings.Submit(ctx, bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)

	require.NoError(t, f.bookings.Delete(ctx, f.admin, b.ID, meta))

	entry := f.auditor.last()
	assert.Equal(t, domain.ActionBookingDeleted, entry.Action)
	assert.Equal(t, b.ID, entry.OldValues["id"])
	assert.Equal(t, "Ji-woo Park", entry.OldValues["name"])
	assert.Equal(t, "pending", entry.OldValues["status"])
	assert.Nil(t, entry.NewValues)

	_, err = f.bookings.Get(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.bookings.Delete(ctx, f.admin, b.ID, meta), domain.ErrNotFound)
}

func TestListAndGet_ResolveStaff(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	first, err := f.bookings.Submit(ctx, bookingInput("Ji-woo Park", "19:00", 4))
	require.NoError(t, err)
	_, err = f.bookings.Submit(ctx, bookingInput("Min Lee", "20:00", 2))
	require.NoError(t, err)
	_, err = f.bookings.UpdateStatus(ctx, f.admin, first.ID, validation.StatusInput{Status: "confirmed"}, meta)
	require.NoError(t, err)

	page, err := f.bookings.List(ctx, validation.FilterInput{Status: "confirmed"})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, 1, page.Total)
	require.NotNil(t, page.Bookings[0].Staff)
	assert.Equal(t, "staff1", page.Bookings[0].Staff.Username)

	view, err := f.bookings.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Staff)
	assert.Equal(t, "staff1@hangukbites.com", view.Staff.Email)

	_, err = f.bookings.List(ctx, validation.FilterInput{Limit: "0"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin_SuccessCreatesSession(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	res, err := f.sessions.Login(ctx, validation.LoginInput{Username: "staff1", Password: "Password123!"}, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, fixedNow.Add(24*time.Hour), res.ExpiresAt)
	require.NotNil(t, res.Admin.LastLogin)
	assert.Equal(t, fixedNow, *res.Admin.LastLogin)

	live, err := f.store.Tokens().FindLive(ctx, res.Token, fixedNow)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, meta.IPAddress, live.IPAddress)

	assert.Equal(t, []string{domain.ActionLoginSuccess}, f.auditor.actions())
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	_, errUnknown := f.sessions.Login(ctx, validation.LoginInput{Username: "nobody", Password: "Password123!"}, meta)
	_, errWrong := f.sessions.Login(ctx, validation.LoginInput{Username: "staff1", Password: "WrongPass1!"}, meta)

	require.ErrorIs(t, errUnknown, domain.ErrUnauthorized)
	require.ErrorIs(t, errWrong, domain.ErrUnauthorized)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())

	assert.Equal(t, []string{domain.ActionLoginFailed, domain.ActionLoginFailed}, f.auditor.actions())
	f.auditor.mu.Lock()
	unknown, wrong := f.auditor.entries[0], f.auditor.entries[1]
	f.auditor.mu.Unlock()
	assert.Nil(t, unknown.AdminID)
	assert.Equal(t, map[string]any{"username": "nobody"}, unknown.NewValues)
	require.NotNil(t, wrong.AdminID)
	assert.Equal(t, f.admin.ID, *wrong.AdminID)
}

func TestLogin_InactiveAdminRejected(t *testing.T) {
	f := newFixture(t, 50)
	f.store.Admins().(*memory.AdminStore).SetActive(f.admin.ID, false)

	_, err := f.sessions.Login(context.Background(), validation.LoginInput{Username: "staff1", Password: "Password123!"}, meta)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_RequiresSignatureAndLiveSession(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	res, err := f.sessions.Login(ctx, validation.LoginInput{Username: "staff1", Password: "Password123!"}, meta)
	require.NoError(t, err)

	admin, err := f.sessions.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, admin.ID)

	_, err = f.sessions.Authenticate(ctx, "not-a-jwt")
	assert.EqualError(t, err, "Invalid or expired token.")

	// A correctly signed token with no session row is refused.
	orphan, _, err := auth.NewAccessToken(f.admin.ID, "staff1", domain.RoleStaff, testSecret, fixedNow, time.Hour)
	require.NoError(t, err)
	_, err = f.sessions.Authenticate(ctx, orphan)
	assert.EqualError(t, err, "Token has been revoked or expired.")

	f.store.Admins().(*memory.AdminStore).SetActive(f.admin.ID, false)
	_, err = f.sessions.Authenticate(ctx, res.Token)
	assert.EqualError(t, err, "User not found or inactive.")
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	res, err := f.sessions.Login(ctx, validation.LoginInput{Username: "staff1", Password: "Password123!"}, meta)
	require.NoError(t, err)
	admin, err := f.sessions.Authenticate(ctx, res.Token)
	require.NoError(t, err)

	f.sessions.Logout(ctx, admin, res.Token, meta)
	_, err = f.sessions.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Logging out twice is harmless.
	f.sessions.Logout(ctx, admin, res.Token, meta)
	assert.Equal(t, []string{domain.ActionLoginSuccess, domain.ActionLogout, domain.ActionLogout}, f.auditor.actions())
}

func TestProfile(t *testing.T) {
	f := newFixture(t, 50)

	a, err := f.sessions.Profile(context.Background(), f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "staff1", a.Username)

	_, err = f.sessions.Profile(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
