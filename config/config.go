package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vnmchuo/llm-batch/internal/batch"
	"github.com/vnmchuo/llm-batch/internal/provider"
)

type Config struct {
	// Provider
	Provider provider.Config

	// Files
	InputPath  string // default: input_prompts.txt
	OutputPath string // default: llm_responses.json

	TimestampMode batch.TimestampMode // default: per-call

	// Cache (optional)
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration // default: 24h

	// Ledger (optional)
	PostgresDSN string

	// Observability
	OTELExporterType     string // "none", "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
	MetricsTextfile      string
	TokenEstimate        bool
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Provider: provider.Config{
			EndpointURL:     os.Getenv("LLM_ENDPOINT_URL"),
			AuthHeaderName:  getEnv("LLM_AUTH_HEADER_NAME", "Authorization"),
			AuthHeaderValue: os.Getenv("LLM_AUTH_HEADER_VALUE"),
			Model:           getEnv("LLM_MODEL", provider.DefaultModel),
		},
		InputPath:            getEnv("INPUT_FILE_PATH", "input_prompts.txt"),
		OutputPath:           getEnv("OUTPUT_FILE_PATH", "llm_responses.json"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "none"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		MetricsTextfile:      os.Getenv("METRICS_TEXTFILE"),
	}

	style, err := provider.ParseStyle(getEnv("LLM_REQUEST_STYLE", string(provider.StyleOpenAICompletions)))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_REQUEST_STYLE: %w", err)
	}
	cfg.Provider.Style = style

	maxTokens, err := strconv.Atoi(getEnv("LLM_MAX_OUTPUT_TOKENS", "150"))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_OUTPUT_TOKENS: %w", err)
	}
	cfg.Provider.MaxOutputTokens = maxTokens

	timeout, err := time.ParseDuration(getEnv("LLM_TIMEOUT", provider.DefaultTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}
	cfg.Provider.Timeout = timeout

	mode, err := batch.ParseTimestampMode(getEnv("TIMESTAMP_MODE", string(batch.TimestampPerCall)))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMESTAMP_MODE: %w", err)
	}
	cfg.TimestampMode = mode

	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = ttl

	estimate, err := strconv.ParseBool(getEnv("TOKEN_ESTIMATE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ESTIMATE: %w", err)
	}
	cfg.TokenEstimate = estimate

	// Validation
	if err := cfg.Provider.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	switch cfg.OTELExporterType {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_TYPE %q", cfg.OTELExporterType)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
