package optimizer

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/xiaot623/opro/internal/adapter/llm"
	"github.com/xiaot623/opro/internal/domain"
)

// ScoreRequest describes one prompt-scoring fan-out across an evaluation
// set.
type ScoreRequest struct {
	PromptText  string
	Items       []domain.EvalItem
	Temperature float64
	Model       string
	OnUsage     TokenSink
	OnItem      ProgressFunc
}

// ScoreResult aggregates one scoring fan-out. Accuracy is the raw
// 100*correct/total value; the caller rounds before persisting it.
type ScoreResult struct {
	Accuracy    float64
	Correct     int
	Incorrect   int
	FailedItems int
}

// Score evaluates one prompt against every item of the evaluation set,
// one concurrent call per item. An item that exhausts its retries counts
// as incorrect and the batch continues; only when every single call fails
// does the operation itself fail with domain.ErrScoringFailed.
func (e *Engine) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: evaluation set is empty", domain.ErrPrecondition)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var correct, incorrect, failed int
	for i, item := range req.Items {
		wg.Add(1)
		go func(i int, item domain.EvalItem) {
			defer wg.Done()
			ok, err := e.scoreItem(ctx, req, item, &mu)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("WARN: evaluation item %d failed after retries, counted incorrect: %v", i, err)
				failed++
				ok = false
			}
			if ok {
				correct++
			} else {
				incorrect++
			}
			if req.OnItem != nil {
				req.OnItem(i, ok)
			}
		}(i, item)
	}
	wg.Wait()

	if failed == len(req.Items) {
		return nil, fmt.Errorf("%w: all %d evaluation calls failed", domain.ErrScoringFailed, failed)
	}
	return &ScoreResult{
		Accuracy:    100 * float64(correct) / float64(len(req.Items)),
		Correct:     correct,
		Incorrect:   incorrect,
		FailedItems: failed,
	}, nil
}

func (e *Engine) scoreItem(ctx context.Context, req ScoreRequest, item domain.EvalItem, mu *sync.Mutex) (bool, error) {
	var content string
	err := e.callWithRetry(ctx, func() error {
		resp, err := e.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    []llm.ChatMessage{{Role: "user", Content: BuildEvalPrompt(req.PromptText, item.Question)}},
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
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return false, err
	}

	// A response without any number is a wrong answer, not a failure.
	answer, ok := ParseAnswer(content)
	if !ok {
		return false, nil
	}
	return answer == item.GoldAnswer, nil
}

// BuildEvalPrompt renders one evaluation request: the instruction under
// test applied to a single question.
func BuildEvalPrompt(instruction, question string) string {
	return fmt.Sprintf("%s\n\nQ: %s\nA:", instruction, question)
}
