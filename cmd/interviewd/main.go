package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/activity"
	"github.com/coachly/interviewd/internal/cache"
	"github.com/coachly/interviewd/internal/config"
	"github.com/coachly/interviewd/internal/httpapi"
	"github.com/coachly/interviewd/internal/interview"
	"github.com/coachly/interviewd/internal/llm"
	"github.com/coachly/interviewd/internal/logger"
	"github.com/coachly/interviewd/internal/observability"
	"github.com/coachly/interviewd/internal/store"
	"github.com/coachly/interviewd/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zlog, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	answerStore, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		zlog.Fatal("store init failed", zap.Error(err))
	}
	defer answerStore.Close()

	questionCache, err := cache.NewCache(ctx, cfg.RedisURL)
	if err != nil {
		zlog.Fatal("question cache init failed", zap.Error(err))
	}
	defer questionCache.Close()

	var client llm.Client
	if cfg.GeminiAPIKey != "" {
		client, err = llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbedModel)
		if err != nil {
			zlog.Fatal("gemini client init failed", zap.Error(err))
		}
		zlog.Info("llm provider: gemini", zap.String("model", cfg.GeminiModel))
	} else {
		client = llm.NewStatic()
		zlog.Info("llm provider: static (GEMINI_API_KEY not set)")
	}

	poster := webhook.NewPoster(cfg.SummaryWebhookURL)
	coach := llm.NewCoach(client, questionCache, answerStore, poster, cfg.QuestionCacheTTL, zlog)
	activities := activity.NewExecutor(coach, activity.ExecutorConfig{
		MaxRetries:  cfg.ActivityMaxRetries,
		BackoffBase: cfg.ActivityBackoffBase,
		BackoffCap:  cfg.ActivityBackoffCap,
	}, zlog, metrics)

	poll := interview.PollConfig{
		Interval: cfg.BridgePollInterval,
		Attempts: cfg.BridgePollAttempts,
	}

	var (
		orchestrator interview.Orchestrator
		events       httpapi.EventSource
	)
	switch cfg.OrchestratorMode {
	case config.ModeDirect:
		orchestrator = interview.NewDirect(activities, answerStore, zlog, metrics)
	default:
		engine := interview.NewEngine(activities, answerStore, poll, zlog, metrics)
		defer engine.Close()
		orchestrator = engine
		events = engine
	}
	zlog.Info("orchestrator mode", zap.String("mode", cfg.OrchestratorMode))

	api := httpapi.New(cfg, orchestrator, events, metrics, zlog)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	zlog.Info("shutdown complete")
}
