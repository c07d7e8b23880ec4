package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
	// Stack carries the underlying error outside production only.
	Stack string `json:"stack,omitempty"`
}

const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeSlotFull      = "SLOT_FULL"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeNotFound      = "NOT_FOUND"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
)

// Writer renders responses; Verbose exposes internal error detail.
type Writer struct {
	Verbose bool
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, ErrorResponse{Message: message, Code: code})
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

// Internal writes a 500. err is logged and only shown when Verbose is set.
func (wr Writer) Internal(w http.ResponseWriter, r *http.Request, message string, err error) {
	logger.ErrorContext(r.Context(), message, "error", err, "path", r.URL.Path)
	body := ErrorResponse{Message: message, Code: CodeInternalError}
	if wr.Verbose && err != nil {
		body.Stack = err.Error()
	}
	JSON(w, http.StatusInternalServerError, body)
}

// ServiceError maps a service error onto the HTTP error taxonomy. fallback is
// the message used for unexpected failures.
func (wr Writer) ServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		verr    *domain.ValidationError
		capErr  *domain.CapacityError
		authErr *domain.AuthError
		nfErr   *domain.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Code:    CodeInvalidInput,
			Errors:  verr.Fields,
		})
	case errors.As(err, &capErr):
		WriteError(w, http.StatusBadRequest, capErr.Error(), CodeSlotFull)
	case errors.As(err, &authErr):
		Unauthorized(w, authErr.Message)
	case errors.As(err, &nfErr):
		NotFound(w, nfErr.Error())
	case errors.Is(err, domain.ErrRateLimited):
		RateLimit(w, "Too many requests, please try again later.")
	default:
		wr.Internal(w, r, fallback, err)
	}
}
