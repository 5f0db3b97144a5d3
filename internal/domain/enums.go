package domain

// PromptState represents the scoring lifecycle state of a prompt.
type PromptState string

const (
	PromptStatePending PromptState = "PENDING"
	PromptStateScoring PromptState = "SCORING"
	PromptStateScored  PromptState = "SCORED"
)

// EventType represents the type of a session event.
type EventType string

const (
	EventTypeSessionCreated EventType = "session_created"

	// Generation events
	EventTypeGenerationStarted  EventType = "generation_started"
	EventTypeGenerationFinished EventType = "generation_finished"
	EventTypeGenerationFailed   EventType = "generation_failed"

	// Scoring events
	EventTypeScoringStarted EventType = "scoring_started"
	EventTypeItemScored     EventType = "item_scored"
	EventTypePromptScored   EventType = "prompt_scored"
	EventTypeScoringFailed  EventType = "scoring_failed"

	EventTypeStepAdvanced EventType = "step_advanced"

	// Autopilot events
	EventTypeAutopilotEnabled  EventType = "autopilot_enabled"
	EventTypeAutopilotDisabled EventType = "autopilot_disabled"
	EventTypeAutopilotPaused   EventType = "autopilot_paused"
)
