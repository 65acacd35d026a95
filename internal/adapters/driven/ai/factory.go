// Package ai provides factory functions for creating embedding service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	geminiembed "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/gemini"
	ollamaembed "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding/retry"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings domain.EmbeddingSettings) (*retry.Service, error) {
	svc, err := CreateEmbeddingService(ctx, settings)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: %s service unreachable: %w",
			domain.ErrEmbedding, settings.Provider, err)
	}
	return svc, nil
}

// CreateEmbeddingService creates the provider adapter for settings and wraps
// it with the retry policy and request throttle.
func CreateEmbeddingService(ctx context.Context, settings domain.EmbeddingSettings) (*retry.Service, error) {
	var (
		base driven.EmbeddingService
		err  error
	)

	switch settings.Provider {
	case domain.ProviderOpenAI:
		base, err = openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	case domain.ProviderOllama:
		base = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	case domain.ProviderGemini:
		base, err = geminiembed.NewEmbeddingService(ctx, geminiembed.Config{
			APIKey:   settings.APIKey,
			Model:    settings.Model,
			Endpoint: settings.BaseURL,
		})

	default:
		return nil, domain.NewConfigError("embedding_provider", "unsupported embedding provider %q", settings.Provider)
	}
	if err != nil {
		return nil, domain.NewConfigError("embedding_provider", "%s: %v", settings.Provider, err)
	}

	return retry.New(base, settings.Retry,
		retry.WithRequestsPerSecond(settings.RequestsPerSecond),
		retry.WithAttemptTimeout(settings.Timeout),
	), nil
}
