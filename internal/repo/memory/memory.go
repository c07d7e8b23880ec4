// Package memory is an in-process Store for development and tests. It is
// correct for a single instance only.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo"
)

type Store struct {
	now func() time.Time

	bookings *BookingStore
	admins   *AdminStore
	tokens   *TokenStore
	audit    *AuditStore
}

var _ repo.Store = (*Store)(nil)

// New returns an empty store. now may be nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		bookings: &BookingStore{now: now, rows: map[string]*domain.Booking{}},
		admins:   &AdminStore{now: now, rows: map[string]*domain.Admin{}},
		tokens:   &TokenStore{now: now, rows: map[string]*domain.AuthToken{}},
		audit:    &AuditStore{now: now},
	}
}

func (s *Store) Bookings() repo.BookingStore { return s.bookings }
func (s *Store) Admins() repo.AdminStore     { return s.admins }
func (s *Store) Tokens() repo.TokenStore     { return s.tokens }
func (s *Store) Audit() repo.AuditStore      { return s.audit }
func (s *Store) Backend() string             { return "memory" }
func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

type BookingStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	rows map[string]*domain.Booking
}

func (s *BookingStore) Reserve(ctx context.Context, in domain.NewBooking, capacity int) (*domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := in.Slot()
	if s.countActiveLocked(slot) >= capacity {
		return nil, &domain.CapacityError{Slot: slot, Capacity: capacity}
	}

	now := s.now().UTC()
	b := &domain.Booking{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Date:            in.Date,
		Time:            in.Time,
		Guests:          in.Guests,
		SpecialRequests: in.SpecialRequests,
		Status:          domain.BookingPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.rows[b.ID] = b
	return cloneBooking(b), nil
}

func (s *BookingStore) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return cloneBooking(b), nil
}

func (s *BookingStore) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int, error) {
	s.mu.RLock()
	matched := make([]*domain.Booking, 0, len(s.rows))
	for _, b := range s.rows {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.Date != nil && b.Date != *f.Date {
			continue
		}
		matched = append(matched, cloneBooking(b))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if a.Time != b.Time {
			return a.Time > b.Time
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}

	out := make([]domain.Booking, 0, end-start)
	for _, b := range matched[start:end] {
		out = append(out, *b)
	}
	return out, total, nil
}

func (s *BookingStore) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus, notes *string, actorID string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	b.Status = status
	if notes != nil {
		b.Notes = *notes
	}
	actor := actorID
	b.ConfirmedBy = &actor
	b.UpdatedAt = s.now().UTC()
	return cloneBooking(b), nil
}

func (s *BookingStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func (s *BookingStore) CountActive(ctx context.Context, slot domain.Slot) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActiveLocked(slot), nil
}

func (s *BookingStore) countActiveLocked(slot domain.Slot) int {
	n := 0
	for _, b := range s.rows {
		if b.Date == slot.Date && b.Time == slot.Time && b.Status.HoldsSlot() {
			n++
		}
	}
	return n
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	if b.ConfirmedBy != nil {
		v := *b.ConfirmedBy
		c.ConfirmedBy = &v
	}
	return &c
}

type AdminStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	rows map[string]*domain.Admin
}

func (s *AdminStore) FindActiveByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.rows {
		if a.Username == username && a.IsActive {
			return cloneAdmin(a), nil
		}
	}
	return nil, nil
}

func (s *AdminStore) FindByID(ctx context.Context, id string) (*domain.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return cloneAdmin(a), nil
}

func (s *AdminStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return domain.ErrAdminNotFound
	}
	at = at.UTC()
	a.LastLogin = &at
	a.UpdatedAt = at
	return nil
}

func (s *AdminStore) Create(ctx context.Context, a *domain.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.Username == a.Username {
			return domain.ErrConflict
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.rows[a.ID] = cloneAdmin(a)
	return nil
}

func (s *AdminStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// SetActive toggles an account; used by tests to simulate deactivation.
func (s *AdminStore) SetActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.rows[id]; ok {
		a.IsActive = active
	}
}

func cloneAdmin(a *domain.Admin) *domain.Admin {
	c := *a
	if a.LastLogin != nil {
		v := *a.LastLogin
		c.LastLogin = &v
	}
	return &c
}

type TokenStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	rows map[string]*domain.AuthToken
}

func (s *TokenStore) Create(ctx context.Context, t *domain.AuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[t.Token]; ok {
		return domain.ErrConflict
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	c := *t
	s.rows[t.Token] = &c
	return nil
}

func (s *TokenStore) FindLive(ctx context.Context, token string, now time.Time) (*domain.AuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[token]
	if !ok || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (s *TokenStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, token)
	return nil
}

func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, t := range s.rows {
		if !t.ExpiresAt.After(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

type AuditStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	rows []domain.AuditLog
}

func (s *AuditStore) Insert(ctx context.Context, e *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.rows = append(s.rows, *e)
	return nil
}

func (s *AuditStore) ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditLog
	for _, e := range s.rows {
		if e.ResourceType == resourceType && e.ResourceID != nil && *e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *AuditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, e := range s.rows {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.rows = kept
	return n, nil
}

// All returns every stored entry in insertion order.
func (s *AuditStore) All() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, len(s.rows))
	copy(out, s.rows)
	return out
}
