// Package service implements the optimization loop operations over the
// store and the LLM-backed orchestration engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/xiaot623/opro/internal/adapter/llm"
	"github.com/xiaot623/opro/internal/config"
	"github.com/xiaot623/opro/internal/domain"
	"github.com/xiaot623/opro/internal/optimizer"
	"github.com/xiaot623/opro/internal/store"
	"github.com/xiaot623/opro/policy"
)

// errStale marks results discarded because the session epoch moved on
// while an orchestrator call was in flight. It never surfaces to API
// callers; only the autopilot sees it.
var errStale = errors.New("stale epoch")

type Service struct {
	store        store.Store
	llmClient    llm.LLMClient
	engine       *optimizer.Engine
	policyEngine *policy.Engine
	config       *config.Config
	sampler      optimizer.Sampler

	autopilot *autopilot

	mu   sync.Mutex
	busy map[string]bool
}

func New(st store.Store, llmClient llm.LLMClient, cfg *config.Config, policyEngine *policy.Engine) *Service {
	s := &Service{
		store:        st,
		llmClient:    llmClient,
		engine:       optimizer.NewEngine(llmClient),
		policyEngine: policyEngine,
		config:       cfg,
		sampler:      optimizer.DefaultSampler,
		busy:         make(map[string]bool),
	}
	s.autopilot = newAutopilot(s)
	return s
}

// beginOp marks a session as having a mutating operation in flight. The
// orchestrator fan-outs run outside any lock, so this guard is what stops
// two generations racing to append duplicate batches to the same step.
func (s *Service) beginOp(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[sessionID] {
		return fmt.Errorf("%w: session %s", domain.ErrBusy, sessionID)
	}
	s.busy[sessionID] = true
	return nil
}

func (s *Service) endOp(sessionID string) {
	s.mu.Lock()
	delete(s.busy, sessionID)
	s.mu.Unlock()
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return session, nil
}

// ListModels retrieves the list of models available at the LLM endpoint.
func (s *Service) ListModels(ctx context.Context) ([]llm.Model, error) {
	return s.llmClient.ListModels(ctx)
}

// roundScore rounds an accuracy to two decimals before it is persisted.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
