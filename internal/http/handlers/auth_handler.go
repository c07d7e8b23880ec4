package handlers

import (
	"net/http"

	"github.com/diagnosis/hanguk-bookings/internal/http/middleware"
	"github.com/diagnosis/hanguk-bookings/internal/http/response"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
)

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in validation.LoginInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.sessions.Login(r.Context(), in, requestMeta(r))
	if err != nil {
		h.resp.ServiceError(w, r, err, "Login failed. Please try again.")
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Login successful",
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user": map[string]any{
			"id":       res.Admin.ID,
			"username": res.Admin.Username,
			"email":    res.Admin.Email,
			"role":     res.Admin.Role,
		},
	})
}

// Logout always succeeds for an authenticated caller; the session row is
// removed on a best-effort basis.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), middleware.Admin(r), middleware.Token(r), requestMeta(r))
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	admin, err := h.sessions.Profile(r.Context(), middleware.Admin(r).ID)
	if err != nil {
		h.resp.ServiceError(w, r, err, "Failed to get profile")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"admin": map[string]any{
			"username":  admin.Username,
			"email":     admin.Email,
			"role":      admin.Role,
			"createdAt": admin.CreatedAt,
			"lastLogin": admin.LastLogin,
		},
	})
}
