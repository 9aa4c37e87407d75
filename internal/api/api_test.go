package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/notify"
	"github.com/linnemanlabs/erqueue/internal/notify/sse"
	"github.com/linnemanlabs/erqueue/internal/queue"
	queuemem "github.com/linnemanlabs/erqueue/internal/queue/memstore"
	"github.com/linnemanlabs/erqueue/internal/triage"
	triagemem "github.com/linnemanlabs/erqueue/internal/triage/memstore"
)

type fixture struct {
	router chi.Router
	queue  *queue.Service
	triage *triage.Service
	events []notify.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{}
	f.triage = triage.NewService(triagemem.New(), triage.ServiceHooks{}, log.Nop())
	f.queue = queue.NewService(queuemem.New(), notify.NotifierFunc(func(_ context.Context, ev notify.Event) error {
		f.events = append(f.events, ev)
		return nil
	}), queue.ServiceHooks{}, log.Nop())

	a := New(nil, f.triage, f.queue, opts...)
	f.router = chi.NewRouter()
	a.RegisterRoutes(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// sampleTree is a root question with a "Yes" option leading to an
// Emergency label and a "No" option leading to a follow-up question.
func sampleTree(t *testing.T) (triage.DTO, string) {
	t.Helper()
	g := triage.NewGraph()
	root := g.CreateRoot()
	mustNoErr(t, g.UpdateStepValue(root, "Chest pain?"))

	yes, err := g.AddOption(root)
	mustNoErr(t, err)
	mustNoErr(t, g.UpdateOptionValue(yes, "Yes"))
	label, err := g.AddNestedStep(yes)
	mustNoErr(t, err)
	mustNoErr(t, g.UpdateStepType(label, triage.StepTypeLabel))
	mustNoErr(t, g.AssignLabel(label, triage.LabelEmergency))

	no, err := g.AddOption(root)
	mustNoErr(t, err)
	mustNoErr(t, g.UpdateOptionValue(no, "No"))
	next, err := g.AddNestedStep(no)
	mustNoErr(t, err)
	mustNoErr(t, g.UpdateStepValue(next, "Fever?"))

	return g.Serialize(), next
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	mustNoErr(t, err)
	return string(b)
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	a := New(nil, triage.NewService(triagemem.New(), triage.ServiceHooks{}, log.Nop()),
		queue.NewService(queuemem.New(), nil, queue.ServiceHooks{}, log.Nop()))
	if a.logger == nil {
		t.Fatal("New(nil, ...) left logger nil; expected Nop logger")
	}
	if a.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", a.timeout, defaultTimeout)
	}
}

func TestNew_NilServices_Panic(t *testing.T) {
	t.Parallel()

	ts := triage.NewService(triagemem.New(), triage.ServiceHooks{}, log.Nop())
	qs := queue.NewService(queuemem.New(), nil, queue.ServiceHooks{}, log.Nop())

	tests := []struct {
		name string
		fn   func()
	}{
		{"nil triage", func() { New(nil, nil, qs) }},
		{"nil queue", func() { New(nil, ts, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

// Triage routes

func TestGetTriage_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/triage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var w triage.Wire
	mustNoErr(t, json.Unmarshal(rec.Body.Bytes(), &w))
	if len(w.Nodes) != 0 || len(w.Edges) != 0 {
		t.Errorf("got %d nodes %d edges, want empty", len(w.Nodes), len(w.Edges))
	}
	if !strings.Contains(rec.Body.String(), `"nodes":[]`) {
		t.Errorf("body = %s, want empty arrays not null", rec.Body.String())
	}
}

func TestSaveThenGetTriage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dto, _ := sampleTree(t)

	rec := f.do(t, http.MethodPost, "/triage", mustJSON(t, dto))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /triage = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/triage", "")
	var w triage.Wire
	mustNoErr(t, json.Unmarshal(rec.Body.Bytes(), &w))
	got, err := triage.FromWire(w)
	mustNoErr(t, err)
	if len(got.Nodes) != len(dto.Nodes) || len(got.OptionNodes) != len(dto.OptionNodes) || len(got.Edges) != len(dto.Edges) {
		t.Errorf("round trip sizes = %d/%d/%d, want %d/%d/%d",
			len(got.Nodes), len(got.OptionNodes), len(got.Edges),
			len(dto.Nodes), len(dto.OptionNodes), len(dto.Edges))
	}
}

func TestSaveTriage_Errors(t *testing.T) {
	t.Parallel()

	dto, _ := sampleTree(t)

	twoRoots := dto
	twoRoots.Nodes = append([]triage.StepNode(nil), dto.Nodes...)
	twoRoots.Nodes[1].Data.IsRoot = true

	longValue := dto
	longValue.Nodes = append([]triage.StepNode(nil), dto.Nodes...)
	longValue.Nodes[0].Data.Value = strings.Repeat("x", triage.MaxValueLen+1)

	badType := dto
	badType.Nodes = append([]triage.StepNode(nil), dto.Nodes...)
	badType.Nodes[0].Data.StepType = "question"

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"bad json", `{bad`, http.StatusBadRequest},
		{"two roots", mustJSON(t, twoRoots), http.StatusUnprocessableEntity},
		{"value too long", mustJSON(t, longValue), http.StatusUnprocessableEntity},
		{"unknown step type", mustJSON(t, badType), http.StatusUnprocessableEntity},
		{"edge without id", `{"nodes":[],"optionNodes":[],"edges":[{"source":"a","target":"b"}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/triage", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var eb errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &eb); err != nil || eb.Error == "" {
				t.Errorf("body %q is not a JSON error", rec.Body.String())
			}
		})
	}
}

func TestDecisionTree(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dto, next := sampleTree(t)
	mustNoErr(t, f.triage.Save(context.Background(), dto))

	rec := f.do(t, http.MethodGet, "/triage/decision-tree", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view triage.StepView
	mustNoErr(t, json.Unmarshal(rec.Body.Bytes(), &view))
	if view.Step != "Chest pain?" {
		t.Errorf("step = %q", view.Step)
	}
	want := []triage.OptionView{
		{Value: "Yes", AssignedLabel: triage.LabelEmergency},
		{Value: "No", NextStep: next},
	}
	if len(view.Options) != len(want) {
		t.Fatalf("options = %+v", view.Options)
	}
	for i := range want {
		if view.Options[i] != want[i] {
			t.Errorf("option %d = %+v, want %+v", i, view.Options[i], want[i])
		}
	}

	rec = f.do(t, http.MethodGet, "/triage/decision-tree?nextStepId="+next, "")
	mustNoErr(t, json.Unmarshal(rec.Body.Bytes(), &view))
	if view.Step != "Fever?" || len(view.Options) != 0 {
		t.Errorf("next view = %+v", view)
	}
	if !strings.Contains(rec.Body.String(), `"options":[]`) {
		t.Errorf("body = %s, want empty options array", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/triage/decision-tree?nextStepId=missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown step status = %d, want 404", rec.Code)
	}
}

func TestDecisionTree_NeverSaved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/triage/decision-tree", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"step":"","options":[]}` {
		t.Errorf("body = %s", got)
	}

	rec = f.do(t, http.MethodGet, "/triage/decision-tree?nextStepId=missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown step status = %d, want 404", rec.Code)
	}
}

// Queue routes

func TestQueueLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for _, label := range []string{"Minor", "Emergency", "Delayed"} {
		rec := f.do(t, http.MethodPost, "/queue/new-patient", `{"assignedLabel":"`+label+`"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST new-patient %s = %d", label, rec.Code)
		}
		var e queue.Entry
		mustNoErr(t, json.Unmarshal(rec.Body.Bytes(), &e))
		if string(e.AssignedLabel) != label || e.Number <= 0 {
			t.Errorf("created entry = %+v", e)
		}
	}

	rec := f.do(t, http.MethodGet, "/queue", "")
	var got []queue.Entry
	mustNoErr(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want := []queue.Entry{
		{Number: 2, AssignedLabel: triage.LabelEmergency},
		{Number: 3, AssignedLabel: triage.LabelDelayed},
		{Number: 1, AssignedLabel: triage.LabelMinor},
	}
	if len(got) != len(want) {
		t.Fatalf("queue = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("queue[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	rec = f.do(t, http.MethodDelete, "/queue/2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /queue/2 = %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/queue/2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE /queue/2 = %d, want 404", rec.Code)
	}

	if len(f.events) != 4 {
		t.Fatalf("events = %+v, want 3 in and 1 out", f.events)
	}
	if f.events[3] != (notify.Event{Type: notify.PatientOut, Number: 2}) {
		t.Errorf("last event = %+v", f.events[3])
	}
}

func TestQueue_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"bad json", http.MethodPost, "/queue/new-patient", `{bad`, http.StatusBadRequest},
		{"missing label", http.MethodPost, "/queue/new-patient", `{}`, http.StatusBadRequest},
		{"unknown label", http.MethodPost, "/queue/new-patient", `{"assignedLabel":"Urgent"}`, http.StatusBadRequest},
		{"non numeric number", http.MethodDelete, "/queue/abc", "", http.StatusBadRequest},
		{"zero number", http.MethodDelete, "/queue/0", "", http.StatusBadRequest},
		{"unknown number", http.MethodDelete, "/queue/77", "", http.StatusNotFound},
		{"PUT not allowed", http.MethodPut, "/queue/new-patient", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			rec := f.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Staff auth

func TestStaffRoutes(t *testing.T) {
	t.Parallel()

	dto, _ := sampleTree(t)
	body := mustJSON(t, dto)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		auth       string
		wantStatus int
	}{
		{"save without token", http.MethodPost, "/triage", body, "", http.StatusUnauthorized},
		{"save with token", http.MethodPost, "/triage", body, "Bearer staff", http.StatusOK},
		{"remove without token", http.MethodDelete, "/queue/1", "", "", http.StatusUnauthorized},
		{"remove with wrong token", http.MethodDelete, "/queue/1", "", "Bearer nope", http.StatusUnauthorized},
		{"remove with token", http.MethodDelete, "/queue/1", "", "Bearer staff", http.StatusOK},
		{"public list", http.MethodGet, "/queue", "", "", http.StatusOK},
		{"public new patient", http.MethodPost, "/queue/new-patient", `{"assignedLabel":"Minor"}`, "", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, WithStaffToken("staff"))
			_, err := f.queue.Append(context.Background(), triage.LabelMinor)
			mustNoErr(t, err)

			var hdr []string
			if tt.auth != "" {
				hdr = []string{"Authorization", tt.auth}
			}
			rec := f.do(t, tt.method, tt.path, tt.body, hdr...)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// Error mapping

type failingQueue struct{ err error }

func (q failingQueue) List(context.Context) ([]queue.Entry, error) { return nil, q.err }
func (q failingQueue) Append(context.Context, triage.Label) (queue.Entry, error) {
	return queue.Entry{}, q.err
}
func (q failingQueue) Remove(context.Context, int) error { return q.err }

func TestInternalErrorsAreHidden(t *testing.T) {
	t.Parallel()

	a := New(log.Nop(), triage.NewService(triagemem.New(), triage.ServiceHooks{}, log.Nop()),
		failingQueue{err: errors.New("redis: connection refused")})
	r := chi.NewRouter()
	a.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/queue", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "redis") {
		t.Errorf("body leaks internal error: %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", triage.ErrValidation, http.StatusUnprocessableEntity},
		{"already connected", triage.ErrAlreadyConnected, http.StatusUnprocessableEntity},
		{"invalid reference", triage.ErrInvalidReference, http.StatusNotFound},
		{"not found", queue.ErrNotFound, http.StatusNotFound},
		{"invalid label", queue.ErrInvalidLabel, http.StatusBadRequest},
		{"wrapped", errors.Join(errors.New("x"), triage.ErrValidation), http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got, _ := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// Events

func TestQueueEvents(t *testing.T) {
	t.Parallel()

	b := sse.NewBroker(log.Nop())
	defer b.Close()
	f := newFixture(t, WithEvents(b))
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/queue/events", http.NoBody)
	mustNoErr(t, err)
	resp, err := http.DefaultClient.Do(req)
	mustNoErr(t, err)
	defer func() { _ = resp.Body.Close() }()

	r := bufio.NewReader(resp.Body)
	line, _ := r.ReadString('\n')
	if strings.TrimSpace(line) != "event: ping" {
		t.Fatalf("first line = %q, want ping", line)
	}

	deadline := time.Now().Add(time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = b.Publish(ctx, notify.Event{Type: notify.PatientIn, Number: 7})

	var got notify.Event
	mustNoErr(t, sse.Decode(r, func(ev notify.Event) bool {
		got = ev
		return false
	}))
	if got != (notify.Event{Type: notify.PatientIn, Number: 7}) {
		t.Errorf("event = %+v", got)
	}
}

func TestQueueEvents_NotRegisteredWithoutBroker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/queue/events", "")
	if rec.Code == http.StatusOK {
		t.Errorf("status = %d, want a non-200 without a broker", rec.Code)
	}
}
