package optimizer

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/xiaot623/opro/internal/adapter/llm"
	"github.com/xiaot623/opro/internal/domain"
)

// GenerateRequest describes one candidate-generation fan-out.
type GenerateRequest struct {
	MetaPrompt  string
	K           int
	Temperature float64
	Model       string
	OnUsage     TokenSink
}

// Generate produces K candidate instructions concurrently. Result i comes
// from call i regardless of completion order. The operation is all or
// nothing: if any call exhausts its retries the whole fan-out fails with
// domain.ErrGenerationFailed and no partial results are returned.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	if req.K < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrPrecondition, req.K)
	}

	results := make([]string, req.K)
	errs := make([]error, req.K)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < req.K; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.generateOne(ctx, req, &mu)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%w: call %d: %v", domain.ErrGenerationFailed, i, err)
		}
	}
	return results, nil
}

func (e *Engine) generateOne(ctx context.Context, req GenerateRequest, mu *sync.Mutex) (string, error) {
	var text string
	err := e.callWithRetry(ctx, func() error {
		resp, err := e.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    []llm.ChatMessage{{Role: "user", Content: req.MetaPrompt}},
			Temperature: &req.Temperature,
		})
		if err != nil {
			return err
		}
		if resp.Usage != nil && req.OnUsage != nil {
			mu.Lock()
			req.OnUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			mu.Unlock()
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
			return fmt.Errorf("completion has no choices")
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	candidate, delimited := ExtractInstruction(text)
	if !delimited {
		log.Printf("WARN: generation response has no %s span, using full text", InstructionStart)
	}
	return candidate, nil
}
