package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fixitnow/bookings/internal/domain"
	"github.com/fixitnow/bookings/pkg/logger"
)

// ErrorResponse is the structured JSON error body returned by every
// endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeIneligible        = "INELIGIBLE"
	CodeAlreadyOpen       = "ALREADY_OPEN"
	CodeSessionClosed     = "SESSION_CLOSED"
	CodeInternalError     = "INTERNAL_ERROR"
)

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

// DomainError maps the core error taxonomy onto HTTP statuses. Version
// conflicts and invalid transitions both surface as 409, the latter
// carrying the allowed-transition set so clients can recover.
func DomainError(w http.ResponseWriter, err error) {
	var invalid *domain.InvalidTransitionError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "booking not found", CodeNotFound)
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, "not permitted for this actor", CodeForbidden)
	case errors.Is(err, domain.ErrVersionConflict):
		WriteError(w, http.StatusConflict, "stale version, reread and retry", CodeVersionConflict)
	case errors.As(err, &invalid):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error:   invalid.Error(),
			Code:    CodeInvalidTransition,
			Details: "allowed transitions: " + joinTransitions(invalid.Allowed),
		})
	case errors.Is(err, domain.ErrIneligible):
		WriteError(w, http.StatusConflict, "booking is not active", CodeIneligible)
	case errors.Is(err, domain.ErrAlreadyOpen):
		WriteError(w, http.StatusConflict, "session already open", CodeAlreadyOpen)
	case errors.Is(err, domain.ErrSessionClosed):
		WriteError(w, http.StatusGone, "session closed", CodeSessionClosed)
	case errors.Is(err, domain.ErrConflict):
		WriteError(w, http.StatusConflict, "booking already exists", CodeConflict)
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidInput)
	}
}

func joinTransitions(ts []domain.Transition) string {
	if len(ts) == 0 {
		return "none"
	}
	out := ""
	for i, t := range ts {
		if i > 0 {
			out += ", "
		}
		out += string(t)
	}
	return out
}
