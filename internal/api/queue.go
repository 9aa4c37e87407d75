package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

type newPatientRequest struct {
	AssignedLabel triage.Label `json:"assignedLabel" validate:"required,oneof=Emergency Delayed Minor"`
}

func (a *API) handleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.withTimeout(r)
	defer cancel()

	entries, err := a.queue.List(ctx)
	if err != nil {
		a.fail(w, r, err, "failed to list queue")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleNewPatient(w http.ResponseWriter, r *http.Request) {
	var req newPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid assignedLabel")
		return
	}

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	e, err := a.queue.Append(ctx, req.AssignedLabel)
	if err != nil {
		a.fail(w, r, err, "failed to queue patient")
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.Int("erqueue.patient.number", e.Number),
		attribute.String("erqueue.patient.label", string(e.AssignedLabel)),
	)
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleRemovePatient(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "patientNumber"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "invalid patient number")
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("erqueue.patient.number", number))

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	if err := a.queue.Remove(ctx, number); err != nil {
		a.fail(w, r, err, "failed to remove patient")
		return
	}
	w.WriteHeader(http.StatusOK)
}
