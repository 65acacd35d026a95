// Package embedding holds helpers shared by the embedding provider adapters.
package embedding

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/connectors/web"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// maxErrorBody bounds how much of an error body ends up in messages.
const maxErrorBody = 512

// StatusError maps a non-2xx provider response to an error. 429 becomes a
// *domain.RateLimitError; 400, 413 and 422 wrap domain.ErrInvalidInput so
// they are never retried.
func StatusError(provider string, status int, header http.Header, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}

	switch status {
	case http.StatusTooManyRequests:
		return &domain.RateLimitError{
			RetryAfter: web.ParseRetryAfter(header.Get("Retry-After"), time.Now()),
			Message:    fmt.Sprintf("%s: %s", provider, msg),
		}
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s error (status %d): %w: %s", provider, status, domain.ErrInvalidInput, msg)
	default:
		return fmt.Errorf("%s error (status %d): %s", provider, status, msg)
	}
}

// ToFloat32 converts a float64 vector.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
