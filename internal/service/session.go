package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/opro/internal/domain"
	"github.com/xiaot623/opro/internal/evalset"
	"github.com/xiaot623/opro/internal/optimizer"
)

const (
	minK = 1
	maxK = 20

	// Used when a create request leaves a model unset.
	defaultModel = "gpt-4o-mini"

	// Generation wants diversity across the k candidates; an unset
	// optimizer temperature defaults high. Scorer temperature stays at
	// whatever the request says, zero included.
	defaultOptimizerTemperature = 1.0
)

// CreateSession validates the request, freezes the evaluation set, builds
// the first step's meta-prompt (seeded history included, if any) and
// persists the new session.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrPrecondition)
	}
	if req.Config.K < minK || req.Config.K > maxK {
		return nil, fmt.Errorf("%w: k must be between %d and %d, got %d", domain.ErrPrecondition, minK, maxK, req.Config.K)
	}
	if req.Config.TopX < 1 {
		return nil, fmt.Errorf("%w: top_x must be at least 1, got %d", domain.ErrPrecondition, req.Config.TopX)
	}
	for i, seed := range req.SeedPrompts {
		if seed.Text == "" {
			return nil, fmt.Errorf("%w: seed prompt %d has empty text", domain.ErrPrecondition, i)
		}
		if seed.Score < 0 || seed.Score > 100 {
			return nil, fmt.Errorf("%w: seed prompt %d score %v outside [0,100]", domain.ErrPrecondition, i, seed.Score)
		}
	}

	items := req.EvaluationSet
	if req.EvaluationSetPath != "" {
		if len(items) > 0 {
			return nil, fmt.Errorf("%w: provide evaluation_set or evaluation_set_path, not both", domain.ErrPrecondition)
		}
		loaded, err := evalset.Load(req.EvaluationSetPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPrecondition, err)
		}
		items = loaded
	} else if err := evalset.Validate(items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPrecondition, err)
	}

	cfg := req.Config
	if cfg.OptimizerModel == "" {
		cfg.OptimizerModel = defaultModel
	}
	if cfg.ScorerModel == "" {
		cfg.ScorerModel = defaultModel
	}
	if cfg.OptimizerTemperature == 0 {
		cfg.OptimizerTemperature = defaultOptimizerTemperature
	}

	now := time.Now()
	session := &domain.Session{
		SessionID:     "ses_" + uuid.New().String()[:8],
		Name:          req.Name,
		Config:        cfg,
		EvaluationSet: items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if len(req.SeedPrompts) > 0 {
		seedStep := domain.Step{StepNumber: 0, CreatedAt: now}
		for _, seed := range req.SeedPrompts {
			score := seed.Score
			seedStep.Prompts = append(seedStep.Prompts, domain.Prompt{
				PromptID:  "prm_" + uuid.New().String()[:8],
				Text:      seed.Text,
				Score:     &score,
				State:     domain.PromptStateScored,
				CreatedAt: now,
			})
		}
		session.Steps = append(session.Steps, seedStep)
	}

	history := optimizer.SelectTop(session.ScoredPrompts(), cfg.TopX)
	examples := optimizer.SampleExamples(items, s.sampler)
	session.Steps = append(session.Steps, domain.Step{
		StepNumber: 1,
		MetaPrompt: optimizer.BuildMetaPrompt(history, examples),
		CreatedAt:  now,
	})
	session.CurrentStep = 1

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.recordEvent(ctx, session.SessionID, domain.EventTypeSessionCreated, map[string]interface{}{
		"name": session.Name,
	}); err != nil {
		log.Printf("ERROR: failed to record session_created event: %v", err)
	}

	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.loadSession(ctx, sessionID)
}

// ListSessions returns summaries of all sessions, oldest first.
func (s *Service) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		summaries = append(summaries, domain.SessionSummary{
			SessionID:   sess.SessionID,
			Name:        sess.Name,
			CurrentStep: sess.CurrentStep,
			BestScore:   sess.BestScore(),
			CreatedAt:   sess.CreatedAt,
			UpdatedAt:   sess.UpdatedAt,
		})
	}
	return summaries, nil
}

// DeleteSession removes a session and its events. If the autopilot is
// bound to it, the loop is torn down first.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return err
	}

	s.autopilot.forget(sessionID)

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ActivateSession marks sessionID as the session the user is looking at.
// Switching bumps the epoch, which orphans in-flight automated work for
// the previously active session: its results are discarded when they
// resolve instead of mutating state.
func (s *Service) ActivateSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.autopilot.bind(sessionID)
	return session, nil
}

// SetAutomation toggles the autopilot loop for a session.
func (s *Service) SetAutomation(ctx context.Context, sessionID string, enabled bool) error {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return err
	}

	eventType := domain.EventTypeAutopilotDisabled
	if enabled {
		s.autopilot.enable(sessionID)
		eventType = domain.EventTypeAutopilotEnabled
	} else {
		s.autopilot.disable(sessionID)
	}

	if err := s.recordEvent(ctx, sessionID, eventType, map[string]interface{}{
		"enabled": enabled,
	}); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
	return nil
}

// AutomationEnabled reports whether the autopilot is currently running
// for the given session.
func (s *Service) AutomationEnabled(sessionID string) bool {
	return s.autopilot.enabledFor(sessionID)
}
