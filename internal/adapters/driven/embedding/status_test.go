package embedding

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestStatusError(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "7")

		err := StatusError("openai", http.StatusTooManyRequests, h, []byte("slow down"))
		var rl *domain.RateLimitError
		require.True(t, errors.As(err, &rl))
		assert.Equal(t, 7*time.Second, rl.RetryAfter)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Contains(t, err.Error(), "slow down")
	})

	for _, status := range []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity} {
		err := StatusError("openai", status, http.Header{}, []byte("bad"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "status %d", status)
	}

	t.Run("server error", func(t *testing.T) {
		err := StatusError("ollama", http.StatusBadGateway, http.Header{}, []byte(strings.Repeat("x", 2000)))
		assert.NotErrorIs(t, err, domain.ErrInvalidInput)
		assert.NotErrorIs(t, err, domain.ErrRateLimited)
		assert.Contains(t, err.Error(), "ollama error (status 502)")
		assert.Less(t, len(err.Error()), 600)
	})
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 2}, ToFloat32([]float64{0.5, -1, 2}))
	assert.Empty(t, ToFloat32(nil))
}
