package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent pipeline failures by category.
// Only ErrConfiguration aborts a run; every other category is isolated to the
// document or batch it happened in.
var (
	// ErrConfiguration indicates invalid or missing configuration, detected
	// before any document is processed.
	ErrConfiguration = errors.New("configuration error")

	// ErrLoad indicates a single document could not be fetched, read or extracted.
	ErrLoad = errors.New("load error")

	// ErrNormalization indicates text normalisation failed. It is reported as a load error.
	ErrNormalization = errors.New("normalization error")

	// ErrEmbedding indicates a batch could not be embedded.
	ErrEmbedding = errors.New("embedding error")

	// ErrStore indicates a batch could not be written to the vector store.
	ErrStore = errors.New("store error")

	// ErrVectorCountMismatch indicates the provider returned a different number
	// of vectors than texts sent. It is never retried.
	ErrVectorCountMismatch = errors.New("embedding count mismatch")

	// ErrRateLimited indicates the remote API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates content with no extractor.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld indicates another process is ingesting into the same collection.
	ErrLockHeld = errors.New("ingestion already running")
)

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field string
	Err   error
}

// NewConfigError creates a ConfigError from a format string.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

// Unwrap exposes the cause.
func (e *ConfigError) Unwrap() error { return e.Err }

// Is matches ErrConfiguration.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// LoadError records a per-document failure.
type LoadError struct {
	SourceID string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.SourceID, e.Err)
}

// Unwrap exposes the cause.
func (e *LoadError) Unwrap() error { return e.Err }

// Is matches ErrLoad.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// BatchStage names the stage a batch failed in.
type BatchStage string

// Batch stages.
const (
	StageEmbed BatchStage = "embed"
	StageStore BatchStage = "store"
)

// BatchError records a per-batch failure.
type BatchError struct {
	Stage   BatchStage
	BatchID string
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s batch %s: %v", e.Stage, e.BatchID, e.Err)
}

// Unwrap exposes the cause.
func (e *BatchError) Unwrap() error { return e.Err }

// Is matches ErrEmbedding or ErrStore depending on the stage.
func (e *BatchError) Is(target error) bool {
	switch e.Stage {
	case StageEmbed:
		return target == ErrEmbedding
	case StageStore:
		return target == ErrStore
	default:
		return false
	}
}

// RateLimitError is returned when a provider answers 429.
// RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRateLimited, e.Message)
}

// Is matches ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
