package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// ServiceHooks are optional callbacks fired by the Service for metrics.
type ServiceHooks struct {
	OnSave func(result string, duration float64, nodes int)
	OnWalk func(result string)
}

// Service is the business boundary for the triage tree.
type Service struct {
	store  Store
	hooks  ServiceHooks
	logger log.Logger
}

// NewService creates a new triage service.
func NewService(store Store, hooks ServiceHooks, logger log.Logger) *Service {
	return &Service{
		store:  store,
		hooks:  hooks,
		logger: logger,
	}
}

// Load returns the saved tree as a Graph. A tree that was never saved loads
// as an empty graph.
func (s *Service) Load(ctx context.Context) (*Graph, error) {
	dto, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load triage tree: %w", err)
	}
	g, err := Deserialize(dto)
	if err != nil {
		return nil, fmt.Errorf("decode triage tree: %w", err)
	}
	return g, nil
}

// Save validates dto and replaces the saved tree with it. Invalid trees are
// rejected with an error wrapping ErrValidation and nothing is stored.
func (s *Service) Save(ctx context.Context, dto DTO) error {
	start := time.Now()

	g, err := Deserialize(dto)
	if err == nil {
		err = g.Validate()
	}
	if err != nil {
		s.observeSave("invalid", start, 0)
		return err
	}

	if err := s.store.Save(ctx, g.Serialize()); err != nil {
		s.observeSave("error", start, g.Len())
		s.logger.Error(ctx, err, "failed to save triage tree")
		return fmt.Errorf("save triage tree: %w", err)
	}

	s.observeSave("ok", start, g.Len())
	s.logger.Info(ctx, "triage tree saved",
		"steps", len(g.stepIDs),
		"options", len(g.optionIDs),
		"edges", len(g.edgeIDs),
	)
	return nil
}

// Walk returns one screen of the questionnaire. An empty stepID is the root.
func (s *Service) Walk(ctx context.Context, stepID string) (*StepView, error) {
	g, err := s.Load(ctx)
	if err != nil {
		s.observeWalk("error")
		return nil, err
	}
	view, err := g.Walk(stepID)
	switch {
	case errors.Is(err, ErrInvalidReference):
		s.observeWalk("not_found")
		return nil, err
	case err != nil:
		s.observeWalk("error")
		return nil, err
	}
	s.observeWalk("ok")
	return view, nil
}

func (s *Service) observeSave(result string, start time.Time, nodes int) {
	if s.hooks.OnSave != nil {
		s.hooks.OnSave(result, time.Since(start).Seconds(), nodes)
	}
}

func (s *Service) observeWalk(result string) {
	if s.hooks.OnWalk != nil {
		s.hooks.OnWalk(result)
	}
}
