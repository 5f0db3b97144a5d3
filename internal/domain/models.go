// Package domain defines the core domain models for the optimizer.
package domain

import (
	"encoding/json"
	"time"
)

// Prompt is one candidate instruction under evaluation.
type Prompt struct {
	PromptID  string      `json:"prompt_id"`
	Text      string      `json:"text"`
	Score     *float64    `json:"score,omitempty"` // set iff State == PromptStateScored
	State     PromptState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// Step is one optimization round. Prompts are kept in generation order and
// MetaPrompt is immutable once the step has been created.
type Step struct {
	StepNumber int       `json:"step_number"`
	Prompts    []Prompt  `json:"prompts"`
	MetaPrompt string    `json:"meta_prompt"`
	CreatedAt  time.Time `json:"created_at"`
}

// EvalItem is one question/gold-answer pair of the evaluation set.
type EvalItem struct {
	Question   string  `json:"question"`
	GoldAnswer float64 `json:"gold_answer"`
}

// SessionConfig holds the per-session optimization parameters. Immutable
// after session creation.
type SessionConfig struct {
	K                    int     `json:"k"`
	OptimizerTemperature float64 `json:"optimizer_temperature"`
	OptimizerModel       string  `json:"optimizer_model"`
	ScorerTemperature    float64 `json:"scorer_temperature"`
	ScorerModel          string  `json:"scorer_model"`
	TopX                 int     `json:"top_x"`
}

// Statistics holds monotonically increasing per-session counters.
type Statistics struct {
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
	TotalRequests     int `json:"total_requests"`
	CorrectCount      int `json:"correct_count"`
	IncorrectCount    int `json:"incorrect_count"`
}

// Add accumulates another set of counters into s.
func (s *Statistics) Add(delta Statistics) {
	s.TotalInputTokens += delta.TotalInputTokens
	s.TotalOutputTokens += delta.TotalOutputTokens
	s.TotalRequests += delta.TotalRequests
	s.CorrectCount += delta.CorrectCount
	s.IncorrectCount += delta.IncorrectCount
}

// Session is one optimization run: an append-only sequence of steps over a
// fixed evaluation set.
type Session struct {
	SessionID     string        `json:"session_id"`
	Name          string        `json:"name"`
	CurrentStep   int           `json:"current_step"`
	Steps         []Step        `json:"steps"`
	Config        SessionConfig `json:"config"`
	EvaluationSet []EvalItem    `json:"evaluation_set"`
	Statistics    Statistics    `json:"statistics"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Event is a progress event recorded for a session, consumed by UIs polling
// the event feed.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
