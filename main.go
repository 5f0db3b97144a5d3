package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/xiaot623/opro/internal/adapter/llm"
	"github.com/xiaot623/opro/internal/config"
	"github.com/xiaot623/opro/internal/service"
	"github.com/xiaot623/opro/internal/store"
	transport "github.com/xiaot623/opro/internal/transport/http"
	"github.com/xiaot623/opro/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting optimizer service...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM URL: %s", cfg.LLMBaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient := llm.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout, cfg.LLMRequestsPerSecond, cfg.LLMBurst)

	// Initialize policy engine
	ctx := context.Background()
	policySource := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("Failed to read policy file %s: %v", cfg.PolicyPath, err)
		}
		policySource = string(data)
	}
	policyEngine, err := policy.NewEngine(ctx, policySource)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service
	svc := service.New(db, llmClient, cfg, policyEngine)

	// Create HTTP server
	server := transport.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down optimizer service...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Optimizer service stopped")
}
