package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/opro/internal/adapter/llm"
	"github.com/xiaot623/opro/internal/domain"
)

func TestGeneratePrompts(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)

	got, err := svc.GeneratePrompts(context.Background(), session.SessionID)
	require.NoError(t, err)

	step := got.LastStep()
	require.Len(t, step.Prompts, 3)
	for _, p := range step.Prompts {
		assert.True(t, strings.HasPrefix(p.PromptID, "prm_"))
		assert.Equal(t, domain.PromptStatePending, p.State)
		assert.Nil(t, p.Score)
		assert.Contains(t, p.Text, "instruction")
	}

	assert.Equal(t, 3, got.Statistics.TotalRequests)
	assert.Equal(t, 24, got.Statistics.TotalInputTokens)
	assert.Equal(t, 12, got.Statistics.TotalOutputTokens)

	// Persisted, not just returned.
	loaded, err := svc.GetSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Len(t, loaded.LastStep().Prompts, 3)
}

func TestGeneratePromptsRejectsNonEmptyStep(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)

	_, err := svc.GeneratePrompts(context.Background(), session.SessionID)
	require.NoError(t, err)

	_, err = svc.GeneratePrompts(context.Background(), session.SessionID)
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestGeneratePromptsAtomicOnFailure(t *testing.T) {
	client := &stubLLM{}
	client.fn = func(call int, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		return nil, fmt.Errorf("llm down")
	}
	svc := newTestService(t, client)
	session := mustCreate(t, svc)

	_, err := svc.GeneratePrompts(context.Background(), session.SessionID)
	require.ErrorIs(t, err, domain.ErrGenerationFailed)

	// All-or-nothing: no prompts and no token spend were committed.
	loaded, err := svc.GetSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, loaded.LastStep().Prompts)
	assert.Zero(t, loaded.Statistics.TotalRequests)

	events, err := svc.ListEvents(context.Background(), session.SessionID, 0, []string{string(domain.EventTypeGenerationFailed)}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestScoreNextPending(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)
	ctx := context.Background()

	_, err := svc.GeneratePrompts(ctx, session.SessionID)
	require.NoError(t, err)

	got, err := svc.ScoreNextPending(ctx, session.SessionID)
	require.NoError(t, err)

	step := got.LastStep()
	first := step.Prompts[0]
	assert.Equal(t, domain.PromptStateScored, first.State)
	require.NotNil(t, first.Score)
	assert.Equal(t, 100.0, *first.Score)
	assert.Equal(t, domain.PromptStatePending, step.Prompts[1].State)
	assert.Equal(t, domain.PromptStatePending, step.Prompts[2].State)

	assert.Equal(t, 4, got.Statistics.CorrectCount)
	assert.Zero(t, got.Statistics.IncorrectCount)
	assert.Equal(t, 7, got.Statistics.TotalRequests)

	events, err := svc.ListEvents(ctx, session.SessionID, 0, []string{string(domain.EventTypeItemScored)}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestScorePromptByID(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)
	ctx := context.Background()

	generated, err := svc.GeneratePrompts(ctx, session.SessionID)
	require.NoError(t, err)
	target := generated.LastStep().Prompts[1].PromptID

	got, err := svc.ScorePrompt(ctx, session.SessionID, target)
	require.NoError(t, err)

	step := got.LastStep()
	assert.Equal(t, domain.PromptStatePending, step.Prompts[0].State)
	assert.Equal(t, domain.PromptStateScored, step.Prompts[1].State)

	// Scoring is one-shot per prompt.
	_, err = svc.ScorePrompt(ctx, session.SessionID, target)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = svc.ScorePrompt(ctx, session.SessionID, "prm_missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScoreNextPendingRequiresPendingPrompt(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)

	// Fresh step has no prompts at all.
	_, err := svc.ScoreNextPending(context.Background(), session.SessionID)
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	client := &stubLLM{}
	client.fn = func(call int, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		content := req.Messages[0].Content
		if strings.Contains(content, "<INS>") {
			return reply(fmt.Sprintf("<INS>instruction %d</INS>", call)), nil
		}
		if strings.Contains(content, "Q: item 0") {
			return reply("0"), nil
		}
		return reply("999"), nil
	}
	svc := newTestService(t, client)

	req := testCreateRequest()
	req.EvaluationSet = testItems(3)
	session, err := svc.CreateSession(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.GeneratePrompts(context.Background(), session.SessionID)
	require.NoError(t, err)

	got, err := svc.ScoreNextPending(context.Background(), session.SessionID)
	require.NoError(t, err)

	first := got.LastStep().Prompts[0]
	require.NotNil(t, first.Score)
	assert.Equal(t, 33.33, *first.Score)
	assert.Equal(t, 1, got.Statistics.CorrectCount)
	assert.Equal(t, 2, got.Statistics.IncorrectCount)
}

func TestScoreItemFailureCountsAsIncorrect(t *testing.T) {
	// Item 1 exhausts its retries; the batch still completes and the item
	// counts against the score.
	client := &stubLLM{}
	client.fn = func(call int, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		content := req.Messages[0].Content
		if strings.Contains(content, "<INS>") {
			return reply(fmt.Sprintf("<INS>instruction %d</INS>", call)), nil
		}
		if strings.Contains(content, "Q: item 1\n") {
			return nil, fmt.Errorf("transient upstream error")
		}
		if i := strings.Index(content, "Q: item "); i >= 0 {
			var idx int
			fmt.Sscanf(content[i:], "Q: item %d", &idx)
			return reply(fmt.Sprintf("The answer is %d.", idx*10)), nil
		}
		return reply("no idea"), nil
	}
	svc := newTestService(t, client)
	session := mustCreate(t, svc)
	ctx := context.Background()

	_, err := svc.GeneratePrompts(ctx, session.SessionID)
	require.NoError(t, err)

	got, err := svc.ScoreNextPending(ctx, session.SessionID)
	require.NoError(t, err)

	first := got.LastStep().Prompts[0]
	assert.Equal(t, domain.PromptStateScored, first.State)
	require.NotNil(t, first.Score)
	assert.Equal(t, 75.0, *first.Score)
	assert.Equal(t, 3, got.Statistics.CorrectCount)
	assert.Equal(t, 1, got.Statistics.IncorrectCount)
}

func TestScoringFailureRevertsToPending(t *testing.T) {
	client := &stubLLM{}
	client.fn = func(call int, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		if strings.Contains(req.Messages[0].Content, "<INS>") {
			return reply(fmt.Sprintf("<INS>instruction %d</INS>", call)), nil
		}
		return nil, fmt.Errorf("scorer down")
	}
	svc := newTestService(t, client)
	session := mustCreate(t, svc)
	ctx := context.Background()

	_, err := svc.GeneratePrompts(ctx, session.SessionID)
	require.NoError(t, err)

	_, err = svc.ScoreNextPending(ctx, session.SessionID)
	require.ErrorIs(t, err, domain.ErrScoringFailed)

	loaded, err := svc.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	first := loaded.LastStep().Prompts[0]
	assert.Equal(t, domain.PromptStatePending, first.State)
	assert.Nil(t, first.Score)

	// Generation's spend survives; the failed batch added nothing.
	assert.Equal(t, 3, loaded.Statistics.TotalRequests)

	events, err := svc.ListEvents(ctx, session.SessionID, 0, []string{string(domain.EventTypeScoringFailed)}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAdvanceStepRequiresCompleteStep(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)
	ctx := context.Background()

	_, err := svc.GeneratePrompts(ctx, session.SessionID)
	require.NoError(t, err)

	_, err = svc.AdvanceStep(ctx, session.SessionID)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	loaded, err := svc.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentStep)
	require.Len(t, loaded.Steps, 1)
	assert.Len(t, loaded.LastStep().Prompts, 3)
}

func TestAdvanceStepBuildsNextMetaPrompt(t *testing.T) {
	svc := newTestService(t, loopLLM())
	session := mustCreate(t, svc)
	firstMeta := session.LastStep().MetaPrompt
	ctx := context.Background()

	_, err := svc.GeneratePrompts(ctx, session.SessionID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.ScoreNextPending(ctx, session.SessionID)
		require.NoError(t, err)
	}

	got, err := svc.AdvanceStep(ctx, session.SessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, got.CurrentStep)
	require.Len(t, got.Steps, 2)
	next := got.LastStep()
	assert.Equal(t, 2, next.StepNumber)
	assert.Equal(t, got.CurrentStep, next.StepNumber)
	assert.Empty(t, next.Prompts)

	// Closed steps are append-only history: number and meta-prompt stick.
	assert.Equal(t, 1, got.Steps[0].StepNumber)
	assert.Equal(t, firstMeta, got.Steps[0].MetaPrompt)

	// top_x=2 of three scored prompts: exactly two history blocks.
	assert.Equal(t, 2, strings.Count(next.MetaPrompt, "text:\n"))
	assert.Equal(t, 2, strings.Count(next.MetaPrompt, "score:\n100.00"))

	assert.Equal(t, 15, got.Statistics.TotalRequests)
	assert.Equal(t, 12, got.Statistics.CorrectCount)

	// An empty step is trivially complete, so advancing again just
	// resamples the examples for a fresh meta-prompt.
	again, err := svc.AdvanceStep(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.CurrentStep)
	assert.Equal(t, 3, again.LastStep().StepNumber)
}

func TestConcurrentOperationRejected(t *testing.T) {
	release := make(chan struct{})
	client := &stubLLM{}
	client.fn = func(call int, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		content := req.Messages[0].Content
		if strings.Contains(content, "<INS>") {
			return reply(fmt.Sprintf("<INS>instruction %d</INS>", call)), nil
		}
		<-release
		return reply("The answer is 0."), nil
	}
	svc := newTestService(t, client)
	session := mustCreate(t, svc)

	_, err := svc.GeneratePrompts(context.Background(), session.SessionID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.ScoreNextPending(context.Background(), session.SessionID)
		done <- err
	}()

	// Wait for the scoring fan-out to be in flight before poking it.
	require.Eventually(t, func() bool { return client.callCount() >= 4 }, 2*time.Second, time.Millisecond)

	_, err = svc.GeneratePrompts(context.Background(), session.SessionID)
	require.ErrorIs(t, err, domain.ErrBusy)
	_, err = svc.AdvanceStep(context.Background(), session.SessionID)
	require.ErrorIs(t, err, domain.ErrBusy)

	close(release)
	require.NoError(t, <-done)
}
