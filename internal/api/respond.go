package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps service errors to HTTP statuses. Anything unrecognised is
// an internal error and its message is not exposed.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, triage.ErrValidation),
		errors.Is(err, triage.ErrAlreadyConnected):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, triage.ErrInvalidReference),
		errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, queue.ErrInvalidLabel):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status, text := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(r.Context(), err, msg)
	}
	writeError(w, status, text)
}
