// Package factory builds llm.Client values from configuration.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/anthropic"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/vertex"
)

// New returns the provider client named by cfg.Provider.
func New(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case "openai", "":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   int32(cfg.MaxTokens),
		}, logger)
	case "vertex":
		return vertex.NewClient(ctx, vertex.Config{
			ProjectID:   cfg.ProjectID,
			Region:      cfg.Region,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   int32(cfg.MaxTokens),
		}, logger)
	case "anthropic", "claude":
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm provider %q", cfg.Provider), common.ErrInvalidInput)
	}
}

// Decorate rate-limits every attempt of m and retries failures.
func Decorate(m llm.Model, cfg common.LLMConfig, logger *slog.Logger) llm.Model {
	m = llm.WithRateLimit(m, cfg.RequestsPerSecond, cfg.Burst)
	return llm.WithRetry(m, llm.RetryConfig{
		Attempts:       cfg.MaxRetries + 1,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Timeout:        cfg.Timeout,
	}, logger)
}

// Credentialed reports whether cfg carries what its provider needs to
// authenticate.
func Credentialed(cfg common.LLMConfig) bool {
	if cfg.Provider == "vertex" {
		return cfg.ProjectID != ""
	}
	return cfg.APIKey != ""
}
