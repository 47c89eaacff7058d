package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/errors"
)

// NewEmbedder builds the provider named by cfg.Embeddings.Provider.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	ec := cfg.Embeddings

	switch ec.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:       ec.Endpoint,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Timeout:    cfg.ProviderTimeout(),
			PoolSize:   ec.Parallelism,
		}), nil

	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    ec.Endpoint,
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Timeout:    cfg.ProviderTimeout(),
			PoolSize:   ec.Parallelism,
		})

	case ProviderStatic:
		return NewStaticEmbedder(ec.Dimensions), nil

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", ec.Provider), nil).
			WithSuggestion("use 'ollama', 'openai' or 'static'")
	}
}

// New builds the configured embedder and wraps it in an Orchestrator.
func New(cfg *config.Config) (*Orchestrator, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	retry := errors.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Embeddings.MaxAttempts
	if d := cfg.RetryDelay(); d > 0 {
		retry.BaseDelay = d
	}

	slog.Debug("embedder_created",
		slog.String("provider", cfg.Embeddings.Provider),
		slog.String("model", embedder.ModelName()),
		slog.Int("batch_size", cfg.Embeddings.BatchSize),
		slog.Int("parallelism", cfg.Embeddings.Parallelism))

	return NewOrchestrator(embedder, Options{
		BatchSize:      cfg.Embeddings.BatchSize,
		Parallelism:    cfg.Embeddings.Parallelism,
		Retry:          retry,
		QueryCacheSize: cfg.Embeddings.CacheSize,
	}), nil
}

// Check reports whether the configured provider answers, for status output.
func Check(ctx context.Context, e Embedder) error {
	if e.Available(ctx) {
		return nil
	}
	return errors.New(errors.ErrCodeProviderUnavailable,
		fmt.Sprintf("embedding provider for %s is not reachable", e.ModelName()), nil)
}
