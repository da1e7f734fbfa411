package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the recall assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	DatabaseURL      string
	MemoryPath       string
	MemoryStorageKey string

	MemorySummarize          bool
	MemorySummarizeModel     string
	MemorySummarizeThreshold int
	MemoryRedactSecrets      bool

	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	AgentName         string
	AgentModel        string
	AgentDescription  string
	AgentInstructions string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "recall"),
		AllowAnyOrigin:           false,
		DatabaseURL:              trimmedEnv("DATABASE_URL"),
		MemoryPath:               envOrDefault("MEMORY_PATH", ".recall/memory.json"),
		MemoryStorageKey:         envOrDefault("MEMORY_STORAGE_KEY", "recall.memory"),
		MemorySummarize:          false,
		MemorySummarizeModel:     envOrDefault("MEMORY_SUMMARIZE_MODEL", "gpt-4o-mini"),
		MemorySummarizeThreshold: 25,
		MemoryRedactSecrets:      true,
		LLMProvider:              envOrDefault("LLM_PROVIDER", "auto"),
		OpenAIAPIKey:             trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:            trimmedEnv("OPENAI_BASE_URL"),
		AgentName:                envOrDefault("AGENT_NAME", "recall"),
		AgentModel:               envOrDefault("AGENT_MODEL", "gpt-4o-mini"),
		AgentDescription:         envOrDefault("AGENT_DESCRIPTION", "A personal assistant that remembers past conversations."),
		AgentInstructions:        envOrDefault("AGENT_INSTRUCTIONS", "You are a helpful personal assistant. Use your memory of past conversations when relevant."),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MemorySummarize, err = boolFromEnv("MEMORY_SUMMARIZE", cfg.MemorySummarize)
	if err != nil {
		return Config{}, err
	}
	cfg.MemorySummarizeThreshold, err = intFromEnv("MEMORY_SUMMARIZE_THRESHOLD", cfg.MemorySummarizeThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRedactSecrets, err = boolFromEnv("MEMORY_REDACT_SECRETS", cfg.MemoryRedactSecrets)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MemorySummarizeThreshold < 1 {
		return Config{}, fmt.Errorf("MEMORY_SUMMARIZE_THRESHOLD must be at least 1")
	}
	if strings.TrimSpace(cfg.MemoryPath) == "" && strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("MEMORY_PATH or DATABASE_URL is required")
	}
	if strings.TrimSpace(cfg.AgentName) == "" {
		return Config{}, fmt.Errorf("AGENT_NAME must not be empty")
	}
	if strings.TrimSpace(cfg.AgentModel) == "" {
		return Config{}, fmt.Errorf("AGENT_MODEL must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "auto", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("LLM_PROVIDER must be one of auto, openai, mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
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
