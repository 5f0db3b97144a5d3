package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/opro/internal/domain"
	"github.com/xiaot623/opro/internal/optimizer"
)

// GeneratePrompts fills the current step with k candidate instructions.
// The step must be empty; either all k candidates are appended or none.
func (s *Service) GeneratePrompts(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := s.beginOp(sessionID); err != nil {
		return nil, err
	}
	defer s.endOp(sessionID)
	return s.generatePrompts(ctx, sessionID, nil)
}

// ScorePrompt scores one prompt of the current step against the whole
// evaluation set. An empty promptID picks the first pending prompt.
func (s *Service) ScorePrompt(ctx context.Context, sessionID, promptID string) (*domain.Session, error) {
	if err := s.beginOp(sessionID); err != nil {
		return nil, err
	}
	defer s.endOp(sessionID)
	return s.scorePrompt(ctx, sessionID, promptID, nil)
}

// ScoreNextPending scores the first pending prompt of the current step.
func (s *Service) ScoreNextPending(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.ScorePrompt(ctx, sessionID, "")
}

// AdvanceStep closes a fully scored step and appends the next one with a
// freshly built meta-prompt.
func (s *Service) AdvanceStep(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := s.beginOp(sessionID); err != nil {
		return nil, err
	}
	defer s.endOp(sessionID)
	return s.advanceStep(ctx, sessionID, nil)
}

// The internal variants below take a commitOK callback. When non-nil it
// runs after the orchestrator returns and before anything is persisted; a
// false result means the caller's epoch went stale mid-flight, so the
// outcome is dropped and errStale returned with no store mutation.

func (s *Service) generatePrompts(ctx context.Context, sessionID string, commitOK func() bool) (*domain.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	step := session.LastStep()
	if len(step.Prompts) > 0 {
		return nil, fmt.Errorf("%w: step %d already has prompts", domain.ErrPrecondition, step.StepNumber)
	}

	if err := s.recordEvent(ctx, sessionID, domain.EventTypeGenerationStarted, map[string]interface{}{
		"step_number": step.StepNumber,
		"k":           session.Config.K,
	}); err != nil {
		log.Printf("ERROR: failed to record generation_started event: %v", err)
	}

	var delta domain.Statistics
	results, err := s.engine.Generate(ctx, optimizer.GenerateRequest{
		MetaPrompt:  step.MetaPrompt,
		K:           session.Config.K,
		Temperature: session.Config.OptimizerTemperature,
		Model:       session.Config.OptimizerModel,
		OnUsage: func(in, out int) {
			delta.TotalInputTokens += in
			delta.TotalOutputTokens += out
			delta.TotalRequests++
		},
	})
	if err != nil {
		// The step stays untouched. The token spend of the failed batch is
		// dropped along with it; statistics ride the same commit as the
		// prompts they paid for.
		if rerr := s.recordEvent(ctx, sessionID, domain.EventTypeGenerationFailed, map[string]interface{}{
			"step_number": step.StepNumber,
			"error":       err.Error(),
		}); rerr != nil {
			log.Printf("ERROR: failed to record generation_failed event: %v", rerr)
		}
		return nil, err
	}

	if commitOK != nil && !commitOK() {
		log.Printf("INFO: discarding stale generation results for session %s", sessionID)
		return nil, errStale
	}

	now := time.Now()
	for _, text := range results {
		step.Prompts = append(step.Prompts, domain.Prompt{
			PromptID:  "prm_" + uuid.New().String()[:8],
			Text:      text,
			State:     domain.PromptStatePending,
			CreatedAt: now,
		})
	}
	session.Statistics.Add(delta)

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if err := s.recordEvent(ctx, sessionID, domain.EventTypeGenerationFinished, map[string]interface{}{
		"step_number": step.StepNumber,
		"count":       len(results),
	}); err != nil {
		log.Printf("ERROR: failed to record generation_finished event: %v", err)
	}
	return session, nil
}

func (s *Service) scorePrompt(ctx context.Context, sessionID, promptID string, commitOK func() bool) (*domain.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	step := session.LastStep()
	var prompt *domain.Prompt
	if promptID == "" {
		prompt = step.FirstPending()
		if prompt == nil {
			return nil, fmt.Errorf("%w: no pending prompt in step %d", domain.ErrPrecondition, step.StepNumber)
		}
	} else {
		prompt = session.FindPrompt(promptID)
		if prompt == nil {
			return nil, fmt.Errorf("%w: prompt %s", domain.ErrNotFound, promptID)
		}
		if prompt.State != domain.PromptStatePending {
			return nil, fmt.Errorf("%w: prompt %s is %s, not %s", domain.ErrPrecondition, promptID, prompt.State, domain.PromptStatePending)
		}
	}

	// Persist the SCORING state before fanning out, so a crash mid-score
	// is visible and healed by load recovery instead of sticking forever.
	prompt.State = domain.PromptStateScoring
	prompt.Score = nil
	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if err := s.recordEvent(ctx, sessionID, domain.EventTypeScoringStarted, map[string]interface{}{
		"prompt_id": prompt.PromptID,
		"items":     len(session.EvaluationSet),
	}); err != nil {
		log.Printf("ERROR: failed to record scoring_started event: %v", err)
	}

	var delta domain.Statistics
	result, err := s.engine.Score(ctx, optimizer.ScoreRequest{
		PromptText:  prompt.Text,
		Items:       session.EvaluationSet,
		Temperature: session.Config.ScorerTemperature,
		Model:       session.Config.ScorerModel,
		OnUsage: func(in, out int) {
			delta.TotalInputTokens += in
			delta.TotalOutputTokens += out
			delta.TotalRequests++
		},
		OnItem: func(item int, correct bool) {
			if rerr := s.recordEvent(ctx, sessionID, domain.EventTypeItemScored, map[string]interface{}{
				"prompt_id": prompt.PromptID,
				"item":      item,
				"correct":   correct,
			}); rerr != nil {
				log.Printf("ERROR: failed to record item_scored event: %v", rerr)
			}
		},
	})
	if err != nil {
		if commitOK != nil && !commitOK() {
			// Stale: leave the stored SCORING state for load recovery.
			return nil, errStale
		}
		// Revert to pending so the prompt stays retryable. The tokens were
		// spent regardless of the outcome, so the counters keep them.
		prompt.State = domain.PromptStatePending
		prompt.Score = nil
		session.Statistics.Add(delta)
		if perr := s.store.PutSession(ctx, session); perr != nil {
			log.Printf("ERROR: failed to save session after scoring failure: %v", perr)
		}
		if rerr := s.recordEvent(ctx, sessionID, domain.EventTypeScoringFailed, map[string]interface{}{
			"prompt_id": prompt.PromptID,
			"error":     err.Error(),
		}); rerr != nil {
			log.Printf("ERROR: failed to record scoring_failed event: %v", rerr)
		}
		return nil, err
	}

	if commitOK != nil && !commitOK() {
		log.Printf("INFO: discarding stale score for session %s", sessionID)
		return nil, errStale
	}

	score := roundScore(result.Accuracy)
	prompt.Score = &score
	prompt.State = domain.PromptStateScored
	delta.CorrectCount = result.Correct
	delta.IncorrectCount = result.Incorrect
	session.Statistics.Add(delta)

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if err := s.recordEvent(ctx, sessionID, domain.EventTypePromptScored, map[string]interface{}{
		"prompt_id": prompt.PromptID,
		"score":     score,
	}); err != nil {
		log.Printf("ERROR: failed to record prompt_scored event: %v", err)
	}
	return session, nil
}

func (s *Service) advanceStep(ctx context.Context, sessionID string, commitOK func() bool) (*domain.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	step := session.LastStep()
	if !step.Complete() {
		return nil, fmt.Errorf("%w: step %d has unscored prompts", domain.ErrPrecondition, step.StepNumber)
	}
	next := step.StepNumber + 1

	history := optimizer.SelectTop(session.ScoredPrompts(), session.Config.TopX)
	examples := optimizer.SampleExamples(session.EvaluationSet, s.sampler)
	metaPrompt := optimizer.BuildMetaPrompt(history, examples)

	if commitOK != nil && !commitOK() {
		return nil, errStale
	}

	session.Steps = append(session.Steps, domain.Step{
		StepNumber: next,
		MetaPrompt: metaPrompt,
		CreatedAt:  time.Now(),
	})
	session.CurrentStep = next

	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if err := s.recordEvent(ctx, sessionID, domain.EventTypeStepAdvanced, map[string]interface{}{
		"step_number": next,
	}); err != nil {
		log.Printf("ERROR: failed to record step_advanced event: %v", err)
	}
	return session, nil
}
