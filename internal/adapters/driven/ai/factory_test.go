package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name      string
		settings  func() domain.EmbeddingSettings
		wantModel string
		wantErr   bool
	}{
		{
			name:      "openai provider creates service",
			settings:  func() domain.EmbeddingSettings { s := domain.DefaultSettings().Embedding; s.APIKey = "k"; return s },
			wantModel: "Vietnamese_Embedding",
		},
		{
			name: "ollama provider creates service",
			settings: func() domain.EmbeddingSettings {
				s := domain.DefaultSettings().Embedding
				s.SetProvider(domain.ProviderOllama)
				return s
			},
			wantModel: "nomic-embed-text",
		},
		{
			name: "gemini provider creates service",
			settings: func() domain.EmbeddingSettings {
				s := domain.DefaultSettings().Embedding
				s.SetProvider(domain.ProviderGemini)
				s.APIKey = "k"
				return s
			},
			wantModel: "gemini-embedding-001",
		},
		{
			name:     "openai without key fails",
			settings: func() domain.EmbeddingSettings { return domain.DefaultSettings().Embedding },
			wantErr:  true,
		},
		{
			name: "unknown provider fails",
			settings: func() domain.EmbeddingSettings {
				s := domain.DefaultSettings().Embedding
				s.Provider = "cohere"
				return s
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(context.Background(), tt.settings())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
		})
	}
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer server.Close()

	s := domain.DefaultSettings().Embedding
	s.SetProvider(domain.ProviderOllama)
	s.BaseURL = server.URL

	svc, err := CreateAndValidateEmbeddingService(context.Background(), s)
	require.NoError(t, err)
	assert.NoError(t, svc.Close())

	s.BaseURL = "http://127.0.0.1:1"
	_, err = CreateAndValidateEmbeddingService(context.Background(), s)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}
