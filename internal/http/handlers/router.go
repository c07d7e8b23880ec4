package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/hanguk-bookings/internal/http/middleware"
	"github.com/diagnosis/hanguk-bookings/internal/ratelimit"
	mw "github.com/diagnosis/hanguk-bookings/pkg/middleware"
)

type RouterConfig struct {
	Auth           middleware.Authenticator
	GeneralLimiter *ratelimit.Limiter
	// LoginLimiter only counts failed logins.
	LoginLimiter *ratelimit.Limiter
	CORSOrigins  []string
	Production   bool
	MaxBodyBytes int64
	// TrustedProxies may report the client address in forwarding headers.
	TrustedProxies middleware.TrustedProxies
}

func (h *Handlers) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(mw.ServiceName("hanguk-bites"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(mw.SecurityHeaders(cfg.Production))
	r.Use(mw.CORS(cfg.CORSOrigins))
	if cfg.MaxBodyBytes > 0 {
		r.Use(mw.MaxBody(cfg.MaxBodyBytes))
	}

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	requireAdmin := middleware.RequireAdmin(cfg.Auth, h.resp)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.GeneralLimiter))

		r.Get("/health", h.Health)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/availability", h.Availability)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", h.ListBookings)
				r.Get("/{id}", h.GetBooking)
				r.Patch("/{id}", h.UpdateBooking)
				r.Delete("/{id}", h.DeleteBooking)
				r.Get("/{id}/history", h.BookingHistory)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RateLimit(cfg.LoginLimiter)).Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/logout", h.Logout)
				r.Get("/profile", h.Profile)
			})
		})
	})

	return r
}
