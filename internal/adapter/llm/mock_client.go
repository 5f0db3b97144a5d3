package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// MockClient is a mock implementation of LLMClient for offline development
// and testing. It recognizes the two request shapes the optimizer sends:
// meta-prompts get a fresh delimited instruction, evaluation prompts get a
// numeric answer derived from the question.
type MockClient struct {
	calls atomic.Int64
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

var mockInstructions = []string{
	"Let's think step by step.",
	"Take a deep breath and work on this problem step-by-step.",
	"Break the problem into parts and solve each part carefully.",
	"Read the question twice, then compute the answer methodically.",
}

var mockNumberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	responseContent := m.generateMockResponse(req)

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: &ChatMessage{
					Role:    "assistant",
					Content: responseContent,
				},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			PromptTokens:     m.estimateTokens(req),
			CompletionTokens: len(responseContent) / 4,
			TotalTokens:      m.estimateTokens(req) + len(responseContent)/4,
		},
	}, nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{
		{
			ID:      "mock-gpt-4",
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
		{
			ID:      "mock-gpt-3.5-turbo",
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
	}, nil
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	// A meta-prompt asks for a new delimited instruction.
	if strings.Contains(lastUserMessage, "<INS>") {
		n := m.calls.Add(1) - 1
		instruction := mockInstructions[n%int64(len(mockInstructions))]
		if round := n / int64(len(mockInstructions)); round > 0 {
			instruction = fmt.Sprintf("%s Double-check the result (attempt %d).", instruction, round)
		}
		return fmt.Sprintf("<INS>%s</INS>", instruction)
	}

	// An evaluation prompt ends with the question to answer. Summing the
	// numbers in the question makes simple arithmetic sets score well, which
	// keeps the offline loop interesting.
	if matches := mockNumberPattern.FindAllString(lastUserMessage, -1); len(matches) > 0 {
		sum := 0.0
		for _, raw := range matches {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			sum += v
		}
		return fmt.Sprintf("The answer is %s.", strconv.FormatFloat(sum, 'f', -1, 64))
	}

	return "[MOCK] This is a mock response from the LLM client."
}

// estimateTokens provides a rough token count estimate.
func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}
