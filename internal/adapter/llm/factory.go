package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvOproMode is the environment variable name for mode selection.
	EnvOproMode = "OPRO_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client based on the OPRO_MODE environment
// variable. If OPRO_MODE=MOCK, returns a MockClient so the whole
// optimization loop runs offline; otherwise returns a real Client.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration, rps, burst int) LLMClient {
	mode := os.Getenv(EnvOproMode)

	if mode == ModeMock {
		log.Println("OPRO_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, timeout, rps, burst)
}
