package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEmbeddingService(Config{BaseURL: srv.URL, Model: "bge-m3"})
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	svc := NewEmbeddingService(Config{})
	assert.Equal(t, DefaultBaseURL, svc.baseURL)
	assert.Equal(t, DefaultModel, svc.ModelName())
	assert.Equal(t, DefaultTimeout, svc.client.Timeout)
	assert.Equal(t, 0, svc.Dimensions())
	assert.NoError(t, svc.Close())
}

func TestEmbedBatch(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-m3", req.Model)
		assert.Equal(t, []string{"lúa", "gạo"}, req.Input)

		fmt.Fprint(w, `{"model":"bge-m3","embeddings":[[0.5,0.25],[1,2]]}`)
	})

	vecs, err := svc.EmbedBatch(context.Background(), []string{"lúa", "gạo"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}, {1, 2}}, vecs)
	assert.Equal(t, 2, svc.Dimensions())
}

func TestEmbedBatch_Errors(t *testing.T) {
	t.Run("count mismatch", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"embeddings":[[1]]}`)
		})
		_, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, domain.ErrVectorCountMismatch)
	})

	t.Run("model missing", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model \"bge-m3\" not found"}`)
		})
		_, err := svc.EmbedBatch(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("input too large", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := svc.EmbedBatch(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPing(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, svc.Ping(context.Background()))

	down := NewEmbeddingService(Config{BaseURL: "http://127.0.0.1:1"})
	assert.Error(t, down.Ping(context.Background()))
}
