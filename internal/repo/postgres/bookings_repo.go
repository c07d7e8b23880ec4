package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type BookingRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

const bookingCols = `id, name, email, phone,
to_char(booking_date, 'YYYY-MM-DD'), booking_time, guests,
special_requests, status, notes, confirmed_by,
created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone,
		&b.Date, &b.Time, &b.Guests,
		&b.SpecialRequests, &b.Status, &b.Notes, &b.ConfirmedBy,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func activeStatuses() []string {
	out := make([]string, 0, len(domain.ActiveStatuses))
	for _, s := range domain.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

// Reserve holds a transaction-scoped advisory lock keyed by the slot, so the
// count and the insert cannot interleave with another reservation for the
// same slot. Reservations for different slots do not contend.
func (r *BookingRepo) Reserve(ctx context.Context, in domain.NewBooking, capacity int) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	slot := in.Slot()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "slot:"+slot.Key()); err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	var n int
	const countQ = `SELECT count(*) FROM bookings
WHERE booking_date = $1::date AND booking_time = $2 AND status = ANY($3)`
	if err := tx.QueryRow(ctx, countQ, slot.Date, slot.Time, activeStatuses()).Scan(&n); err != nil {
		return nil, fmt.Errorf("count slot: %w", err)
	}
	if n >= capacity {
		return nil, &domain.CapacityError{Slot: slot, Capacity: capacity}
	}

	const insertQ = `INSERT INTO bookings (
    id, name, email, phone, booking_date, booking_time, guests, special_requests, status
  ) VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,'pending')
  RETURNING ` + bookingCols

	b, err := scanBooking(tx.QueryRow(ctx, insertQ,
		uuid.NewString(), in.Name, in.Email, in.Phone,
		in.Date, in.Time, in.Guests, in.SpecialRequests,
	))
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return b, nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *BookingRepo) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, *f.Date)
		where = append(where, fmt.Sprintf("booking_date = $%d::date", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM bookings`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	offset := max(f.Offset, 0)
	args = append(args, limit, offset)
	q := `SELECT ` + bookingCols + ` FROM bookings` + cond +
		fmt.Sprintf(` ORDER BY booking_date DESC, booking_time DESC, created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bs := make([]domain.Booking, 0, min(limit, total))
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bs = append(bs, *b)
	}
	return bs, total, rows.Err()
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus, notes *string, actorID string) (*domain.Booking, error) {
	const q = `UPDATE bookings
SET status=$2, notes=COALESCE($3, notes), confirmed_by=$4, updated_at=now()
WHERE id=$1
RETURNING ` + bookingCols
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id, string(status), notes, actorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *BookingRepo) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *BookingRepo) CountActive(ctx context.Context, slot domain.Slot) (int, error) {
	const q = `SELECT count(*) FROM bookings
WHERE booking_date = $1::date AND booking_time = $2 AND status = ANY($3)`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var n int
	err := r.pool.QueryRow(ctx, q, slot.Date, slot.Time, activeStatuses()).Scan(&n)
	return n, err
}
