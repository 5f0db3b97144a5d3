// Package optimizer implements the prompt-optimization loop primitives:
// meta-prompt construction from scored history, the concurrent candidate
// generation fan-out, and the concurrent evaluation scoring fan-out.
package optimizer

import (
	"math/rand"
	"time"

	"github.com/xiaot623/opro/internal/adapter/llm"
)

// Delimiters the generator is asked to wrap each new instruction in.
const (
	InstructionStart = "<INS>"
	InstructionEnd   = "</INS>"
)

// Sampler picks k distinct indices out of n. It exists so tests can pin
// the worked-example selection, which is otherwise random per step.
type Sampler func(n, k int) []int

// DefaultSampler draws k indices without replacement using process
// randomness.
func DefaultSampler(n, k int) []int {
	if k > n {
		k = n
	}
	return rand.Perm(n)[:k]
}

// TokenSink receives token accounting once per underlying model call,
// including retried attempts that got a response.
type TokenSink func(inputTokens, outputTokens int)

// ProgressFunc receives one per-item scoring outcome. Calls arrive in
// completion order, not item order, and always before the aggregate
// result is returned.
type ProgressFunc func(itemIndex int, correct bool)

// Engine runs the generation and scoring fan-outs against an LLM backend.
// Callbacks handed to an operation are serialized for its duration, so
// callers may mutate unguarded state inside them.
type Engine struct {
	client llm.LLMClient

	// Backoff returns the pause after a failed attempt (1-based).
	// Overridable so tests skip the real waits.
	Backoff func(attempt int) time.Duration
}

func NewEngine(client llm.LLMClient) *Engine {
	return &Engine{client: client, Backoff: defaultBackoff}
}
