package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/hanguk-bookings/internal/http/middleware"
	"github.com/diagnosis/hanguk-bookings/internal/http/response"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
)

// CreateBooking accepts a public reservation request.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in validation.BookingInput
	if !decodeJSON(w, r, &in) {
		return
	}

	b, err := h.bookings.Submit(r.Context(), in)
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to create booking. Please try again.")
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Booking created successfully! We will contact you shortly to confirm.",
		"booking": toBookingDTO(b),
	})
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.bookings.List(r.Context(), validation.FilterInput{
		Status: q.Get("status"),
		Date:   q.Get("date"),
		Limit:  q.Get("limit"),
		Offset: q.Get("offset"),
	})
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to retrieve bookings")
		return
	}

	out := make([]bookingDTO, 0, len(page.Bookings))
	for i := range page.Bookings {
		out = append(out, toBookingViewDTO(&page.Bookings[i]))
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"bookings": out,
		"count":    page.Total,
		"total":    page.Total,
	})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	v, err := h.bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to retrieve booking")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"booking": toBookingViewDTO(v),
	})
}

func (h *Handlers) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	var in validation.StatusInput
	if !decodeJSON(w, r, &in) {
		return
	}

	b, err := h.bookings.UpdateStatus(r.Context(), middleware.Admin(r), chi.URLParam(r, "id"), in, requestMeta(r))
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to update booking")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Booking updated successfully",
		"booking": toBookingDTO(b),
	})
}

func (h *Handlers) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.bookings.Delete(r.Context(), middleware.Admin(r), chi.URLParam(r, "id"), requestMeta(r)); err != nil {
		h.resp.ServiceError(w, r, err, "Failed to delete booking")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Booking deleted successfully",
	})
}

// Availability reports how many seats of a slot are still open.
func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := h.bookings.Availability(r.Context(), q.Get("date"), q.Get("time"))
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to check availability")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"date":      a.Slot.Date,
		"time":      a.Slot.Time,
		"capacity":  a.Capacity,
		"booked":    a.Booked,
		"remaining": a.Remaining,
		"available": a.Remaining > 0,
	})
}

func (h *Handlers) BookingHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.bookings.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to retrieve booking history")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": entries,
		"count":   len(entries),
	})
}
