package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrConfiguration", ErrConfiguration},
		{"ErrLoad", ErrLoad},
		{"ErrNormalization", ErrNormalization},
		{"ErrEmbedding", ErrEmbedding},
		{"ErrStore", ErrStore},
		{"ErrVectorCountMismatch", ErrVectorCountMismatch},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrNotFound", ErrNotFound},
		{"ErrLockHeld", ErrLockHeld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("chunk_size", "must be positive (got %d)", -1)

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrLoad))
	assert.Equal(t, "configuration: chunk_size: must be positive (got -1)", err.Error())

	wrapped := fmt.Errorf("startup: %w", err)
	var cfgErr *ConfigError
	assert.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, "chunk_size", cfgErr.Field)
}

func TestConfigError_NoField(t *testing.T) {
	err := &ConfigError{Err: errors.New("boom")}
	assert.Equal(t, "configuration: boom", err.Error())
}

func TestLoadError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &LoadError{SourceID: "https://example.com", Err: cause}

	assert.True(t, errors.Is(err, ErrLoad))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "https://example.com")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestBatchError_MatchesStage(t *testing.T) {
	tests := []struct {
		stage     BatchStage
		matches   error
		unmatched error
	}{
		{StageEmbed, ErrEmbedding, ErrStore},
		{StageStore, ErrStore, ErrEmbedding},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			err := &BatchError{Stage: tt.stage, BatchID: "b1", Err: ErrVectorCountMismatch}
			assert.True(t, errors.Is(err, tt.matches))
			assert.False(t, errors.Is(err, tt.unmatched))
			assert.True(t, errors.Is(err, ErrVectorCountMismatch))
			assert.Contains(t, err.Error(), "b1")
		})
	}
}

func TestBatchError_UnknownStage(t *testing.T) {
	err := &BatchError{Stage: "other", Err: errors.New("x")}
	assert.False(t, errors.Is(err, ErrEmbedding))
	assert.False(t, errors.Is(err, ErrStore))
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{RetryAfter: 3 * time.Second}
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, "rate limited", err.Error())

	withMsg := &RateLimitError{Message: "slow down"}
	assert.Equal(t, "rate limited: slow down", withMsg.Error())

	var rl *RateLimitError
	assert.True(t, errors.As(fmt.Errorf("embed: %w", err), &rl))
	assert.Equal(t, 3*time.Second, rl.RetryAfter)
}
