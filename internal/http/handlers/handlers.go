package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/http/middleware"
	"github.com/diagnosis/hanguk-bookings/internal/http/response"
	"github.com/diagnosis/hanguk-bookings/internal/service"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
)

// HealthChecker reports on the backing store.
type HealthChecker interface {
	Backend() string
	Ping(ctx context.Context) error
}

type Handlers struct {
	bookings service.BookingService
	sessions service.SessionService
	store    HealthChecker
	resp     response.Writer
	env      string
	now      func() time.Time
}

func New(bookings service.BookingService, sessions service.SessionService, store HealthChecker, env string) *Handlers {
	return &Handlers{
		bookings: bookings,
		sessions: sessions,
		store:    store,
		resp:     response.Writer{Verbose: env != "production"},
		env:      env,
		now:      time.Now,
	}
}

// decodeJSON reads the request body into dst and writes the error response
// itself when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", response.CodeInvalidInput)
		return false
	}
	response.BadRequest(w, "Invalid JSON payload")
	return false
}

func requestMeta(r *http.Request) domain.RequestMeta {
	return domain.RequestMeta{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// bookingDTO is the wire form of a booking. Strings have angle brackets
// stripped on the way out.
type bookingDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Guests          int       `json:"guests"`
	SpecialRequests string    `json:"specialRequests"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes"`
	ConfirmedBy     any       `json:"confirmedBy"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toBookingDTO(b *domain.Booking) bookingDTO {
	s := validation.StripAngles
	dto := bookingDTO{
		ID:              s(b.ID),
		Name:            s(b.Name),
		Email:           s(b.Email),
		Phone:           s(b.Phone),
		Date:            b.Date,
		Time:            b.Time,
		Guests:          b.Guests,
		SpecialRequests: s(b.SpecialRequests),
		Status:          string(b.Status),
		Notes:           s(b.Notes),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if b.ConfirmedBy != nil {
		dto.ConfirmedBy = *b.ConfirmedBy
	}
	return dto
}

// toBookingViewDTO expands confirmedBy into the staff member, or null when
// the account no longer exists.
func toBookingViewDTO(v *service.BookingView) bookingDTO {
	dto := toBookingDTO(&v.Booking)
	dto.ConfirmedBy = nil
	if v.Staff != nil {
		dto.ConfirmedBy = service.StaffRef{
			ID:       v.Staff.ID,
			Username: validation.StripAngles(v.Staff.Username),
			Email:    validation.StripAngles(v.Staff.Email),
		}
	}
	return dto
}
