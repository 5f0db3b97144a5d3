package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/opro/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testSession(id string) *domain.Session {
	now := time.Now()
	return &domain.Session{
		SessionID:   id,
		Name:        "demo",
		CurrentStep: 1,
		Steps:       []domain.Step{{StepNumber: 1, CreatedAt: now}},
		Config: domain.SessionConfig{
			K:              2,
			OptimizerModel: "gpt-4o",
			ScorerModel:    "gpt-4o-mini",
			TopX:           5,
		},
		EvaluationSet: []domain.EvalItem{{Question: "2+2?", GoldAnswer: 4}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestSQLiteStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := testSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.Name != "demo" || got.CurrentStep != 1 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if len(got.EvaluationSet) != 1 || got.EvaluationSet[0].GoldAnswer != 4 {
		t.Fatalf("evaluation set did not round-trip: %+v", got.EvaluationSet)
	}

	absent, err := store.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if absent != nil {
		t.Fatalf("expected nil for absent session, got %+v", absent)
	}
}

func TestSQLiteStorePutSessionUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := testSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	before := session.UpdatedAt

	session.Steps[0].Prompts = append(session.Steps[0].Prompts, domain.Prompt{
		PromptID:  "p1",
		Text:      "think step by step",
		State:     domain.PromptStatePending,
		CreatedAt: time.Now(),
	})
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}
	if !session.UpdatedAt.After(before) {
		t.Fatalf("PutSession must stamp updated_at: before=%v after=%v", before, session.UpdatedAt)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(got.Steps[0].Prompts) != 1 || got.Steps[0].Prompts[0].PromptID != "p1" {
		t.Fatalf("prompt did not persist: %+v", got.Steps[0])
	}
}

func TestSQLiteStorePutSessionKeepsEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := testSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	event := &domain.Event{
		EventID:   "e1",
		SessionID: "s1",
		Ts:        time.Now().UnixMilli(),
		Type:      domain.EventTypeSessionCreated,
	}
	if err := store.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	// Upserting the session must not disturb its events.
	if err := store.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}

	events, err := store.GetEvents(ctx, "s1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after upsert, got %d", len(events))
	}
}

func TestSQLiteStoreScoringRecoveryOnLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := testSession("s1")
	session.Steps[0].Prompts = []domain.Prompt{
		{PromptID: "p1", Text: "a", State: domain.PromptStateScoring, CreatedAt: time.Now()},
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Steps[0].Prompts[0].State != domain.PromptStatePending {
		t.Fatalf("expected interrupted prompt to load as PENDING, got %s", got.Steps[0].Prompts[0].State)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Steps[0].Prompts[0].State != domain.PromptStatePending {
		t.Fatalf("ListSessions must apply the same recovery: %+v", sessions)
	}
}

func TestSQLiteStoreDeleteSessionCascadesEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := testSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	event := &domain.Event{
		EventID:   "e1",
		SessionID: "s1",
		Ts:        time.Now().UnixMilli(),
		Type:      domain.EventTypeSessionCreated,
		Payload:   json.RawMessage(`{"name":"demo"}`),
	}
	if err := store.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected session gone, got %+v", got)
	}

	events, err := store.GetEvents(ctx, "s1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected events cascaded away, got %d", len(events))
	}

	// Deleting an unknown id is a no-op.
	if err := store.DeleteSession(ctx, "nope"); err != nil {
		t.Fatalf("DeleteSession of unknown id failed: %v", err)
	}
}

func TestSQLiteStoreEventFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := testSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Now().UnixMilli()
	eventTypes := []domain.EventType{
		domain.EventTypeGenerationStarted,
		domain.EventTypeItemScored,
		domain.EventTypePromptScored,
	}
	for i, typ := range eventTypes {
		event := &domain.Event{
			EventID:   "e" + string(rune('1'+i)),
			SessionID: "s1",
			Ts:        base + int64(i),
			Type:      typ,
		}
		if err := store.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	events, err := store.GetEvents(ctx, "s1", base, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after ts filter, got %d", len(events))
	}

	events, err = store.GetEvents(ctx, "s1", 0, []string{string(domain.EventTypeItemScored)}, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventTypeItemScored {
		t.Fatalf("unexpected type-filtered events: %+v", events)
	}

	events, err = store.GetEvents(ctx, "s1", 0, nil, 1)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected limit 1 to apply, got %d", len(events))
	}
}
