package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Orchestration modes. Direct runs transitions inline with each request;
// durable routes commands to a resident per-session engine instance.
const (
	ModeDirect  = "direct"
	ModeDurable = "durable"
)

// Config contains all runtime settings for the interview coach service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogJSON          bool
	LogDebug         bool
	AllowAnyOrigin   bool

	OrchestratorMode string

	DatabaseURL  string
	EmbeddingDim int

	RedisURL         string
	QuestionCacheTTL time.Duration

	GeminiAPIKey    string
	GeminiModel     string
	GeminiEmbedModel string

	SummaryWebhookURL string

	BridgePollInterval time.Duration
	BridgePollAttempts int

	ActivityMaxRetries  int
	ActivityBackoffBase time.Duration
	ActivityBackoffCap  time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "interviewd"),
		OrchestratorMode:    strings.ToLower(envOrDefault("ORCHESTRATOR_MODE", ModeDurable)),
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		RedisURL:            trimmedEnv("REDIS_URL"),
		GeminiAPIKey:        trimmedEnv("GEMINI_API_KEY"),
		GeminiModel:         envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEmbedModel:    envOrDefault("GEMINI_EMBED_MODEL", "text-embedding-004"),
		SummaryWebhookURL:   trimmedEnv("SUMMARY_WEBHOOK_URL"),
		EmbeddingDim:        768,
		QuestionCacheTTL:    time.Hour,
		ShutdownTimeout:     15 * time.Second,
		BridgePollInterval:  300 * time.Millisecond,
		BridgePollAttempts:  20,
		ActivityMaxRetries:  3,
		ActivityBackoffBase: 250 * time.Millisecond,
		ActivityBackoffCap:  4 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.QuestionCacheTTL, err = durationFromEnv("QUESTION_CACHE_TTL", cfg.QuestionCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.BridgePollInterval, err = durationFromEnv("BRIDGE_POLL_INTERVAL", cfg.BridgePollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.BridgePollAttempts, err = intFromEnv("BRIDGE_POLL_ATTEMPTS", cfg.BridgePollAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ActivityMaxRetries, err = intFromEnv("ACTIVITY_MAX_RETRIES", cfg.ActivityMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.ActivityBackoffBase, err = durationFromEnv("ACTIVITY_BACKOFF_BASE", cfg.ActivityBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.ActivityBackoffCap, err = durationFromEnv("ACTIVITY_BACKOFF_CAP", cfg.ActivityBackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.LogJSON, err = boolFromEnv("APP_LOG_JSON", cfg.LogJSON)
	if err != nil {
		return Config{}, err
	}
	cfg.LogDebug, err = boolFromEnv("APP_LOG_DEBUG", cfg.LogDebug)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	switch cfg.OrchestratorMode {
	case ModeDirect, ModeDurable:
	default:
		return Config{}, fmt.Errorf("ORCHESTRATOR_MODE must be %q or %q, got %q", ModeDirect, ModeDurable, cfg.OrchestratorMode)
	}
	if cfg.BridgePollInterval <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_POLL_INTERVAL must be positive")
	}
	if cfg.BridgePollAttempts <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_POLL_ATTEMPTS must be positive")
	}
	if cfg.ActivityMaxRetries < 0 {
		return Config{}, fmt.Errorf("ACTIVITY_MAX_RETRIES must be >= 0")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
