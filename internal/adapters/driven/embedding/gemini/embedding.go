// Package gemini provides an embedding service adapter using the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultModel is the default Gemini embedding model.
const DefaultModel = "gemini-embedding-001"

// Config holds configuration for the Gemini embedding service.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the embedding model (default: gemini-embedding-001).
	Model string

	// Endpoint overrides the API endpoint.
	Endpoint string
}

// batchFunc embeds texts in one provider call.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbeddingService generates embeddings with Gemini batch embedding.
type EmbeddingService struct {
	client     *genai.Client
	model      string
	embed      batchFunc
	dimensions atomic.Int64
}

// NewEmbeddingService creates a Gemini embedding service.
func NewEmbeddingService(ctx context.Context, cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	s := &EmbeddingService{client: client, model: cfg.Model}
	em := client.EmbeddingModel(cfg.Model)
	s.embed = func(ctx context.Context, texts []string) ([][]float32, error) {
		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		out := make([][]float32, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			if e == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, e.Values)
		}
		return out, nil
	}
	return s, nil
}

// EmbedBatch generates one embedding per text, in input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := s.embed(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("gemini: %w: sent %d texts, got %d vectors",
			domain.ErrVectorCountMismatch, len(texts), len(vecs))
	}

	if s.dimensions.Load() == 0 && len(vecs[0]) > 0 {
		s.dimensions.Store(int64(len(vecs[0])))
	}
	return vecs, nil
}

// classify maps API errors onto domain errors.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return &domain.RateLimitError{Message: "gemini: " + apiErr.Message}
		case http.StatusBadRequest:
			return fmt.Errorf("gemini batch embed: %w: %s", domain.ErrInvalidInput, apiErr.Message)
		}
	}
	return fmt.Errorf("gemini batch embed: %w", err)
}

// Dimensions returns the embedding vector size, known after the first call.
func (s *EmbeddingService) Dimensions() int {
	return int(s.dimensions.Load())
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping embeds a short probe text.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.EmbedBatch(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *EmbeddingService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
