package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/usecase"
)

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), MessageResponse{Success: false, Message: err.Error()})
}

// statusFor maps engine errors onto HTTP codes. Gate refusals are conflicts with the
// current state; rejected levels or sizes are unprocessable.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuarantined),
		errors.Is(err, domain.ErrPositionExists),
		errors.Is(err, domain.ErrPositionLimit),
		errors.Is(err, domain.ErrDailyLossLimit),
		errors.Is(err, domain.ErrHighCorrelation),
		errors.Is(err, usecase.ErrCycleRunning),
		errors.Is(err, usecase.ErrPartialCloseNotDue):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidIntent),
		errors.Is(err, domain.ErrZeroQuantity),
		errors.Is(err, domain.ErrAdvisoryInvalid),
		errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAdvisoryDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
