package domain

import "time"

// CreateSessionRequest is the request to create an optimization session.
// The evaluation set comes either inline or from a file path on the server;
// exactly one source must be provided.
type CreateSessionRequest struct {
	Name              string        `json:"name"`
	Config            SessionConfig `json:"config"`
	EvaluationSet     []EvalItem    `json:"evaluation_set,omitempty"`
	EvaluationSetPath string        `json:"evaluation_set_path,omitempty"`
	SeedPrompts       []SeedPrompt  `json:"seed_prompts,omitempty"`
}

// SeedPrompt is a pre-scored instruction placed into seed step 0.
type SeedPrompt struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// ScoreRequest selects which prompt to score. An empty PromptID means the
// first pending prompt of the current step.
type ScoreRequest struct {
	PromptID string `json:"prompt_id,omitempty"`
}

// AutomationRequest toggles the autopilot for a session.
type AutomationRequest struct {
	Enabled bool `json:"enabled"`
}

// SessionSummary is the list-view projection of a session.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	CurrentStep int       `json:"current_step"`
	BestScore   *float64  `json:"best_score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
