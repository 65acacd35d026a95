package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// scriptedEmbedder returns the scripted errors in order, then succeeds.
type scriptedEmbedder struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	closed bool
}

func (m *scriptedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2}
	}
	return out, nil
}

func (m *scriptedEmbedder) Dimensions() int              { return 2 }
func (m *scriptedEmbedder) ModelName() string            { return "scripted" }
func (m *scriptedEmbedder) Ping(_ context.Context) error { return nil }
func (m *scriptedEmbedder) Close() error                 { m.closed = true; return nil }

func newTestService(next *scriptedEmbedder, policy domain.RetryPolicy) (*Service, *[]time.Duration) {
	s := New(next, policy)
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	s.jitter = func() float64 { return 0.5 }
	return s, &waits
}

func TestEmbedBatch_SucceedsFirstTry(t *testing.T) {
	next := &scriptedEmbedder{}
	s, waits := newTestService(next, domain.DefaultRetryPolicy())

	vecs, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 1, s.Calls())
	assert.Empty(t, *waits)
}

func TestEmbedBatch_RetriesTransientErrors(t *testing.T) {
	transient := errors.New("connection reset")
	next := &scriptedEmbedder{errs: []error{transient, transient}}
	s, waits := newTestService(next, domain.DefaultRetryPolicy())

	vecs, err := s.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, s.Calls())
	// jitter 0.5 maps to factor 1.0
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *waits)
}

func TestEmbedBatch_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("503")
	next := &scriptedEmbedder{errs: []error{transient, transient, transient, transient, transient}}
	s, waits := newTestService(next, domain.DefaultRetryPolicy())

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, next.calls)
	assert.Equal(t, 4, s.Calls())
	assert.Len(t, *waits, 3)
}

func TestEmbedBatch_FinalErrorsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid input", fmt.Errorf("openai: %w: too long", domain.ErrInvalidInput)},
		{"count mismatch", fmt.Errorf("openai: %w", domain.ErrVectorCountMismatch)},
		{"canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scriptedEmbedder{errs: []error{tt.err}}
			s, waits := newTestService(next, domain.DefaultRetryPolicy())

			_, err := s.EmbedBatch(context.Background(), []string{"a"})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, next.calls)
			assert.Empty(t, *waits)
		})
	}
}

func TestEmbedBatch_RetryAfterWinsWhenLonger(t *testing.T) {
	next := &scriptedEmbedder{errs: []error{
		&domain.RateLimitError{RetryAfter: 5 * time.Second},
		&domain.RateLimitError{RetryAfter: 100 * time.Millisecond},
	}}
	s, waits := newTestService(next, domain.DefaultRetryPolicy())

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, time.Second}, *waits)
}

func TestEmbedBatch_RetryAfterCappedAtMaxDelay(t *testing.T) {
	next := &scriptedEmbedder{errs: []error{
		&domain.RateLimitError{RetryAfter: time.Hour},
	}}
	policy := domain.DefaultRetryPolicy()
	policy.MaxDelay = 10 * time.Second
	s, waits := newTestService(next, policy)

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second}, *waits)
}

func TestBackoff_JitterBounds(t *testing.T) {
	s := New(&scriptedEmbedder{}, domain.DefaultRetryPolicy())
	for _, j := range []float64{0, 0.25, 0.999} {
		s.jitter = func() float64 { return j }
		d := s.backoff(2, errors.New("x"))
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	policy := domain.DefaultRetryPolicy()
	policy.Jitter = 0
	s := New(&scriptedEmbedder{}, policy)
	assert.Equal(t, 30*time.Second, s.backoff(10, errors.New("x")))
}

func TestEmbedBatch_StopsWhenContextCanceledDuringWait(t *testing.T) {
	transient := errors.New("timeout")
	next := &scriptedEmbedder{errs: []error{transient, transient}}
	s := New(next, domain.DefaultRetryPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := s.EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 1, next.calls)
}

func TestEmbedBatch_AttemptTimeout(t *testing.T) {
	blocking := &blockingEmbedder{}
	policy := domain.DefaultRetryPolicy()
	policy.MaxAttempts = 2
	s := New(blocking, policy, WithAttemptTimeout(20*time.Millisecond))
	s.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, s.Calls())
}

type blockingEmbedder struct{ scriptedEmbedder }

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithRequestsPerSecond(t *testing.T) {
	s := New(&scriptedEmbedder{}, domain.DefaultRetryPolicy(), WithRequestsPerSecond(0))
	assert.Nil(t, s.limiter)

	s = New(&scriptedEmbedder{}, domain.DefaultRetryPolicy(), WithRequestsPerSecond(1000))
	require.NotNil(t, s.limiter)
	_, err := s.EmbedBatch(context.Background(), []string{"a"})
	assert.NoError(t, err)
}

func TestDelegates(t *testing.T) {
	next := &scriptedEmbedder{}
	s := New(next, domain.DefaultRetryPolicy())
	assert.Equal(t, 2, s.Dimensions())
	assert.Equal(t, "scripted", s.ModelName())
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
	assert.True(t, next.closed)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(errors.New("500")))
	assert.True(t, Retryable(&domain.RateLimitError{}))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.False(t, Retryable(domain.ErrInvalidInput))
}
