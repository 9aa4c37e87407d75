// Package api serves the triage tree and the patient queue over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/erqueue/internal/authmw"
	"github.com/linnemanlabs/erqueue/internal/queue"
	"github.com/linnemanlabs/erqueue/internal/triage"
)

const defaultTimeout = 5 * time.Second

// TriageService defines the triage operations the API needs.
type TriageService interface {
	Load(ctx context.Context) (*triage.Graph, error)
	Save(ctx context.Context, dto triage.DTO) error
	Walk(ctx context.Context, stepID string) (*triage.StepView, error)
}

// QueueService defines the queue operations the API needs.
type QueueService interface {
	List(ctx context.Context) ([]queue.Entry, error)
	Append(ctx context.Context, label triage.Label) (queue.Entry, error)
	Remove(ctx context.Context, number int) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	triage   TriageService
	queue    QueueService
	events   http.Handler
	staff    func(http.Handler) http.Handler
	validate *validator.Validate
	timeout  time.Duration
}

// Option configures an API.
type Option func(*API)

// WithEvents serves h on GET /queue/events.
func WithEvents(h http.Handler) Option {
	return func(a *API) { a.events = h }
}

// WithStaffToken requires token on staff-only routes.
func WithStaffToken(token string) Option {
	return func(a *API) { a.staff = authmw.Staff(token, a.logger) }
}

// WithTimeout bounds every store call made by a handler.
func WithTimeout(d time.Duration) Option {
	return func(a *API) { a.timeout = d }
}

// New creates a new API handler.
func New(logger log.Logger, triageSvc TriageService, queueSvc QueueService, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if triageSvc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if queueSvc == nil {
		panic(xerrors.New("queue service is required"))
	}
	a := &API{
		logger:   logger,
		triage:   triageSvc,
		queue:    queueSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  defaultTimeout,
	}
	a.staff = authmw.Staff("", logger)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/triage", func(r chi.Router) {
		r.Get("/", a.handleGetTriage)
		r.With(a.staff).Post("/", a.handleSaveTriage)
		r.Get("/decision-tree", a.handleDecisionTree)
	})
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", a.handleListQueue)
		r.Post("/new-patient", a.handleNewPatient)
		r.With(a.staff).Delete("/{patientNumber}", a.handleRemovePatient)
		if a.events != nil {
			r.Get("/events", a.events.ServeHTTP)
		}
	})
}

func (a *API) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.timeout)
}
