package domain

// LastStep returns the active step. Sessions always hold at least one step,
// so callers may assume a non-nil result for a well-formed session.
func (s *Session) LastStep() *Step {
	if len(s.Steps) == 0 {
		return nil
	}
	return &s.Steps[len(s.Steps)-1]
}

// ScoredPrompts collects every scored prompt across all steps, in step order
// then insertion order. This is the selection history for the next
// meta-prompt.
func (s *Session) ScoredPrompts() []Prompt {
	var scored []Prompt
	for _, step := range s.Steps {
		for _, p := range step.Prompts {
			if p.State == PromptStateScored {
				scored = append(scored, p)
			}
		}
	}
	return scored
}

// FindPrompt looks up a prompt by id in the current step. Operations only
// ever target the active step.
func (s *Session) FindPrompt(promptID string) *Prompt {
	step := s.LastStep()
	if step == nil {
		return nil
	}
	for i := range step.Prompts {
		if step.Prompts[i].PromptID == promptID {
			return &step.Prompts[i]
		}
	}
	return nil
}

// RecoverInterrupted resets prompts stuck in SCORING back to PENDING and
// returns how many were reset. A crash or reload can leave a prompt
// mid-score; it must come back retryable, never stuck.
func (s *Session) RecoverInterrupted() int {
	reset := 0
	for i := range s.Steps {
		for j := range s.Steps[i].Prompts {
			if s.Steps[i].Prompts[j].State == PromptStateScoring {
				s.Steps[i].Prompts[j].State = PromptStatePending
				s.Steps[i].Prompts[j].Score = nil
				reset++
			}
		}
	}
	return reset
}

// BestScore returns the highest score across all scored prompts, or nil if
// nothing has been scored yet.
func (s *Session) BestScore() *float64 {
	var best *float64
	for _, step := range s.Steps {
		for _, p := range step.Prompts {
			if p.State != PromptStateScored || p.Score == nil {
				continue
			}
			if best == nil || *p.Score > *best {
				v := *p.Score
				best = &v
			}
		}
	}
	return best
}

// Complete reports whether every prompt in the step has been scored.
func (st *Step) Complete() bool {
	for _, p := range st.Prompts {
		if p.State != PromptStateScored {
			return false
		}
	}
	return true
}

// FirstPending returns the first pending prompt in insertion order, or nil.
func (st *Step) FirstPending() *Prompt {
	for i := range st.Prompts {
		if st.Prompts[i].State == PromptStatePending {
			return &st.Prompts[i]
		}
	}
	return nil
}
