// Package retry wraps an embedding service with bounded retries, jittered
// exponential backoff and request throttling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Service retries failed EmbedBatch calls of the wrapped service.
type Service struct {
	next    driven.EmbeddingService
	policy  domain.RetryPolicy
	limiter *rate.Limiter
	timeout time.Duration
	calls   atomic.Int64

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option configures a Service.
type Option func(*Service)

// WithRequestsPerSecond throttles provider requests, retries included.
// A value <= 0 disables throttling.
func WithRequestsPerSecond(rps float64) Option {
	return func(s *Service) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithAttemptTimeout bounds each attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// New wraps next with the retry policy.
func New(next driven.EmbeddingService, policy domain.RetryPolicy, opts ...Option) *Service {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	s := &Service{
		next:   next,
		policy: policy,
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calls returns the number of provider requests sent so far, retries included.
func (s *Service) Calls() int {
	return int(s.calls.Load())
}

// EmbedBatch calls the wrapped service until it succeeds, the error is not
// retryable, attempts run out or ctx is done.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, lastErrOr(lastErr, err)
			}
		}

		vecs, err := s.attempt(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if !Retryable(err) || ctx.Err() != nil || attempt == s.policy.MaxAttempts {
			break
		}

		wait := s.backoff(attempt, err)
		logger.Debug("embed attempt %d/%d failed, retrying in %s: %v",
			attempt, s.policy.MaxAttempts, wait, err)
		if err := s.sleep(ctx, wait); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (s *Service) attempt(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.timeout <= 0 {
		return s.next.EmbedBatch(ctx, texts)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.EmbedBatch(attemptCtx, texts)
}

// backoff returns the jittered wait after a failed attempt. A provider
// Retry-After hint wins when it is longer, up to the policy's MaxDelay.
func (s *Service) backoff(attempt int, err error) time.Duration {
	d := s.policy.Delay(attempt)
	if s.policy.Jitter > 0 {
		factor := 1 + s.policy.Jitter*(2*s.jitter()-1)
		d = time.Duration(float64(d) * factor)
	}

	var rl *domain.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > d {
		d = rl.RetryAfter
		if s.policy.MaxDelay > 0 {
			d = min(d, s.policy.MaxDelay)
		}
	}
	return d
}

// Retryable reports whether an embedding error may succeed on retry.
// Invalid input, vector count mismatches and cancellation are final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrVectorCountMismatch),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

func lastErrOr(last, err error) error {
	if last != nil {
		return last
	}
	return fmt.Errorf("embed throttle: %w", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dimensions returns the dimensions of the wrapped service.
func (s *Service) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the model of the wrapped service.
func (s *Service) ModelName() string { return s.next.ModelName() }

// Ping pings the wrapped service once.
func (s *Service) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the wrapped service.
func (s *Service) Close() error { return s.next.Close() }
