package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/xiaot623/opro/internal/domain"
	"github.com/xiaot623/opro/policy"
)

// autopilot chains generate -> score -> advance continuations for one
// session at a time, paced by a single owned timer.
//
// The epoch is the cancellation token. Every scheduled tick and every
// in-flight operation captures the epoch it was born under; a mismatch
// against the current value means the user switched sessions, and the
// stale work discards its result instead of mutating state. In-flight
// LLM calls are not aborted, their outcome is simply dropped on arrival.
type autopilot struct {
	svc *Service

	mu        sync.Mutex
	epoch     uint64
	sessionID string
	enabled   bool
	failures  int
	timer     *time.Timer
}

func newAutopilot(svc *Service) *autopilot {
	return &autopilot{svc: svc}
}

// bind makes sessionID the active session. The epoch bump orphans any
// previous loop: its pending timer is stopped and whatever is mid-flight
// fails the commit check when it resolves.
func (a *autopilot) bind(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bindLocked(sessionID)
}

func (a *autopilot) bindLocked(sessionID string) {
	a.epoch++
	a.sessionID = sessionID
	a.enabled = false
	a.failures = 0
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// enable starts the loop for sessionID, rebinding first if some other
// session is active. The first action runs after one pacing delay.
func (a *autopilot) enable(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessionID != sessionID {
		a.bindLocked(sessionID)
	}
	if a.enabled {
		return
	}
	a.enabled = true
	a.failures = 0
	a.scheduleLocked()
}

// disable stops new continuations from being scheduled. A tick already
// pending still fires and runs its action; it checks this flag before
// chaining the next one. A hard kill needs a session switch instead.
func (a *autopilot) disable(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessionID != sessionID {
		return
	}
	a.enabled = false
}

// forget tears the loop down when its session is deleted.
func (a *autopilot) forget(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessionID != sessionID {
		return
	}
	a.bindLocked("")
}

func (a *autopilot) enabledFor(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled && a.sessionID == sessionID
}

func (a *autopilot) current(epoch uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return epoch == a.epoch
}

// scheduleLocked arms the timer for the next tick. Stopping any previous
// timer first keeps at most one continuation pending per loop.
func (a *autopilot) scheduleLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	epoch := a.epoch
	a.timer = time.AfterFunc(a.svc.config.PacingDelay, func() {
		a.tick(epoch)
	})
}

func (a *autopilot) tick(epoch uint64) {
	a.mu.Lock()
	if epoch != a.epoch {
		a.mu.Unlock()
		return
	}
	sessionID := a.sessionID
	a.mu.Unlock()

	err := a.runCycleAction(sessionID, epoch)
	a.afterAction(sessionID, epoch, err)
}

// runCycleAction performs whichever step of the generate/score/advance
// oscillation the session currently needs.
func (a *autopilot) runCycleAction(sessionID string, epoch uint64) error {
	if err := a.svc.beginOp(sessionID); err != nil {
		return err
	}
	defer a.svc.endOp(sessionID)

	// Not tied to an HTTP request. Each underlying call carries its own
	// client timeout and bounded retries, so the action itself is bounded.
	ctx := context.Background()

	session, err := a.svc.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}

	commitOK := func() bool { return a.current(epoch) }

	step := session.LastStep()
	switch {
	case len(step.Prompts) == 0:
		_, err = a.svc.generatePrompts(ctx, sessionID, commitOK)
	case step.FirstPending() != nil:
		_, err = a.svc.scorePrompt(ctx, sessionID, "", commitOK)
	default:
		_, err = a.svc.advanceStep(ctx, sessionID, commitOK)
	}
	return err
}

// afterAction routes an action's outcome: reset or count failures, consult
// the failure policy, and chain the next tick if the loop should go on.
func (a *autopilot) afterAction(sessionID string, epoch uint64, err error) {
	var kind string
	switch {
	case err == nil:
		a.resetFailures(epoch)
	case errors.Is(err, errStale):
		// A newer epoch owns the loop now.
		return
	case errors.Is(err, domain.ErrNotFound):
		log.Printf("WARN: autopilot: session %s is gone, disabling", sessionID)
		a.disable(sessionID)
		return
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrPrecondition):
		// Lost a race with a manual operation. The next tick will see the
		// session's fresh state and pick the right action.
	case errors.Is(err, domain.ErrGenerationFailed):
		kind = policy.KindGenerationFailed
	case errors.Is(err, domain.ErrScoringFailed):
		kind = policy.KindPromptScoreFailed
	default:
		log.Printf("ERROR: autopilot: unexpected failure for session %s, disabling: %v", sessionID, err)
		a.disable(sessionID)
		return
	}

	if kind != "" && !a.consultPolicy(sessionID, kind) {
		return
	}
	a.reschedule(epoch)
}

// consultPolicy asks the failure policy whether the loop survives this
// failure. Returns false when the loop pauses.
func (a *autopilot) consultPolicy(sessionID, kind string) bool {
	a.mu.Lock()
	a.failures++
	failures := a.failures
	a.mu.Unlock()

	decision, err := a.svc.policyEngine.Evaluate(context.Background(), map[string]interface{}{
		"kind":                 kind,
		"consecutive_failures": failures,
	})
	if err != nil {
		log.Printf("ERROR: autopilot: policy evaluation failed, pausing: %v", err)
		decision = policy.DecisionPause
	}
	if decision != policy.DecisionContinue {
		log.Printf("WARN: autopilot: pausing session %s after %d consecutive failure(s)", sessionID, failures)
		a.disable(sessionID)
		if rerr := a.svc.recordEvent(context.Background(), sessionID, domain.EventTypeAutopilotPaused, map[string]interface{}{
			"kind":     kind,
			"failures": failures,
		}); rerr != nil {
			log.Printf("ERROR: failed to record autopilot_paused event: %v", rerr)
		}
		return false
	}
	return true
}

func (a *autopilot) resetFailures(epoch uint64) {
	a.mu.Lock()
	if epoch == a.epoch {
		a.failures = 0
	}
	a.mu.Unlock()
}

func (a *autopilot) reschedule(epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if epoch != a.epoch || !a.enabled {
		return
	}
	a.scheduleLocked()
}
