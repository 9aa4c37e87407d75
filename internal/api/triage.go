package api

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.withTimeout(r)
	defer cancel()

	g, err := a.triage.Load(ctx)
	if err != nil {
		a.fail(w, r, err, "failed to load triage tree")
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("erqueue.triage.nodes", g.Len()))
	writeJSON(w, http.StatusOK, triage.ToWire(g.Serialize()))
}

func (a *API) handleSaveTriage(w http.ResponseWriter, r *http.Request) {
	var dto triage.DTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := a.validate.Struct(&dto); err != nil {
		a.fail(w, r, err, "invalid triage tree")
		return
	}

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.Int("erqueue.triage.steps", len(dto.Nodes)),
		attribute.Int("erqueue.triage.options", len(dto.OptionNodes)),
	)
	if err := a.triage.Save(ctx, dto); err != nil {
		a.fail(w, r, err, "failed to save triage tree")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleDecisionTree(w http.ResponseWriter, r *http.Request) {
	stepID := r.URL.Query().Get("nextStepId")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("erqueue.triage.step_id", stepID))

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	view, err := a.triage.Walk(ctx, stepID)
	if err != nil {
		a.fail(w, r, err, "failed to walk triage tree")
		return
	}
	writeJSON(w, http.StatusOK, view)
}
