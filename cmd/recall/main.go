package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antoniostano/recall/internal/agent"
	"github.com/antoniostano/recall/internal/config"
	"github.com/antoniostano/recall/internal/httpapi"
	"github.com/antoniostano/recall/internal/llm"
	"github.com/antoniostano/recall/internal/memory"
	"github.com/antoniostano/recall/internal/observability"
	"github.com/antoniostano/recall/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MemoryPath, cfg.MemoryStorageKey)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer store.Close()

	client, err := llm.NewClient(llm.Config{
		Mode:    cfg.LLMProvider,
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		log.Fatalf("llm client init failed: %v", err)
	}

	memoryService := memory.New(store, memory.Options{
		Summarize: cfg.MemorySummarize,
		Client:    client,
		ModelID:   cfg.MemorySummarizeModel,
		Threshold: cfg.MemorySummarizeThreshold,
		Metrics:   metrics,
	})

	sessions := session.NewManager(cfg.AgentName, cfg.SessionInactivityTimeout)

	runner, err := agent.NewRunner(agent.Definition{
		Name:        cfg.AgentName,
		Model:       cfg.AgentModel,
		Description: cfg.AgentDescription,
		Instruction: cfg.AgentInstructions,
	}, client, sessions, memoryService, metrics, cfg.MemoryRedactSecrets)
	if err != nil {
		log.Fatalf("agent init failed: %v", err)
	}

	// Abandoned sessions still reach long-term memory when the janitor
	// expires them.
	sessions.SetExpireHook(func(sess *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runner.Ingest(flushCtx, sess); err != nil {
			log.Printf("expired session %s not ingested: %v", sess.ID, err)
		}
	})

	api := httpapi.New(cfg, sessions, runner, memoryService, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// Let in-flight background summarizations land before the process exits.
	waitDone := make(chan struct{})
	go func() {
		memoryService.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(cfg.ShutdownTimeout):
		log.Printf("timed out waiting for background summarization")
	}

	log.Printf("shutdown complete")
}
