package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	s := DefaultSettings()
	s.Embedding.APIKey = "sk-test"
	return s
}

func TestMode_IsValid(t *testing.T) {
	tests := []struct {
		mode     Mode
		expected bool
	}{
		{ModeURLs, true},
		{ModePDFs, true},
		{ModeBoth, true},
		{Mode(""), false},
		{Mode("all"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.mode.IsValid())
		})
	}
}

func TestMode_Includes(t *testing.T) {
	assert.True(t, ModeURLs.Includes(OriginURL))
	assert.False(t, ModeURLs.Includes(OriginPDF))
	assert.True(t, ModePDFs.Includes(OriginPDF))
	assert.False(t, ModePDFs.Includes(OriginURL))
	assert.True(t, ModeBoth.Includes(OriginURL))
	assert.True(t, ModeBoth.Includes(OriginPDF))
	assert.False(t, Mode("x").Includes(OriginURL))
}

func TestStoreKind(t *testing.T) {
	for _, k := range []StoreKind{StoreSQLite, StorePostgres, StoreQdrant, StoreMemory} {
		assert.True(t, k.IsValid())
		assert.NotEqual(t, unknownDescription, k.Description())
	}
	assert.False(t, StoreKind("chroma").IsValid())
	assert.Equal(t, unknownDescription, StoreKind("chroma").Description())
}

func TestEmbeddingProvider(t *testing.T) {
	assert.True(t, ProviderOpenAI.RequiresAPIKey())
	assert.True(t, ProviderGemini.RequiresAPIKey())
	assert.False(t, ProviderOllama.RequiresAPIKey())
	assert.False(t, EmbeddingProvider("cohere").IsValid())
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(50))
}

func TestDefaultSettings_AreValidWithCredentials(t *testing.T) {
	s := validSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, ModeBoth, s.Mode)
	assert.Equal(t, "rice_study", s.Collection)
	assert.Equal(t, 10*time.Second, s.Fetch.Timeout)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{"bad mode", func(s *Settings) { s.Mode = "all" }, "mode"},
		{"empty collection", func(s *Settings) { s.Collection = "" }, "collection"},
		{"unknown store", func(s *Settings) { s.Store.Kind = "chroma" }, "store"},
		{"postgres without url", func(s *Settings) { s.Store.Kind = StorePostgres }, "database_url"},
		{"qdrant without url", func(s *Settings) { s.Store.Kind = StoreQdrant }, "qdrant_url"},
		{"sqlite without dir", func(s *Settings) { s.Store.Dir = "" }, "store_dir"},
		{"zero chunk size", func(s *Settings) { s.Chunking.MaxSize = 0 }, "chunk_size"},
		{"overlap equals size", func(s *Settings) { s.Chunking.Overlap = s.Chunking.MaxSize }, "chunk_overlap"},
		{"negative overlap", func(s *Settings) { s.Chunking.Overlap = -1 }, "chunk_overlap"},
		{"zero batch", func(s *Settings) { s.BatchSize = 0 }, "batch_size"},
		{"zero concurrency", func(s *Settings) { s.Concurrency = 0 }, "concurrency"},
		{"zero fetch timeout", func(s *Settings) { s.Fetch.Timeout = 0 }, "fetch_timeout"},
		{"missing api key", func(s *Settings) { s.Embedding.APIKey = "" }, "api_key"},
		{"unknown provider", func(s *Settings) { s.Embedding.Provider = "cohere" }, "embedding_provider"},
		{"empty model", func(s *Settings) { s.Embedding.Model = "" }, "embedding_model"},
		{"zero attempts", func(s *Settings) { s.Embedding.Retry.MaxAttempts = 0 }, "embed_max_attempts"},
		{"bad jitter", func(s *Settings) { s.Embedding.Retry.Jitter = 1 }, "embed_retry"},
		{"bad multiplier", func(s *Settings) { s.Embedding.Retry.Multiplier = 0.5 }, "embed_retry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)

			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSettings_Validate_OllamaNeedsNoKey(t *testing.T) {
	s := DefaultSettings()
	s.Embedding.Provider = ProviderOllama
	assert.NoError(t, s.Validate())
}

func TestSettings_Validate_DryRunSkipsEmbedding(t *testing.T) {
	s := DefaultSettings()
	s.DryRun = true
	assert.NoError(t, s.Validate())
}

func TestSettings_SourceKeyFor(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "url:a", s.SourceKeyFor(OriginURL, "a"))

	s.Chunking.SharedSourceNamespace = true
	assert.Equal(t, "a", s.SourceKeyFor(OriginURL, "a"))
}

func TestSettings_StringOmitsSecrets(t *testing.T) {
	s := validSettings()
	assert.NotContains(t, s.String(), "sk-test")
	assert.Contains(t, s.String(), "collection=rice_study")
}

func TestEmbeddingSettings_SetProvider(t *testing.T) {
	e := DefaultSettings().Embedding
	e.SetProvider(ProviderOllama)
	assert.Equal(t, ProviderOllama, e.Provider)
	assert.Equal(t, "http://localhost:11434", e.BaseURL)
	assert.Equal(t, "nomic-embed-text", e.Model)

	e = DefaultSettings().Embedding
	e.Model = "bge-m3"
	e.SetProvider(ProviderOllama)
	assert.Equal(t, "bge-m3", e.Model)

	e.SetProvider(ProviderGemini)
	assert.Equal(t, "", e.BaseURL)
	assert.Equal(t, "bge-m3", e.Model)
}
