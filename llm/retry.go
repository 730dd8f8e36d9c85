package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Retrier retries transport calls that fail with a retryable error. It is used
// by the provider adapters only; the structured negotiator never retries.
type Retrier struct {
	config RetryConfig

	mu   sync.Mutex
	rand *rand.Rand
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RetryOperation represents an operation that can be retried
type RetryOperation[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs operation until it succeeds, fails with a non-retryable error,
// exhausts the configured attempts, or ctx is done.
func Execute[T any](r *Retrier, ctx context.Context, operation RetryOperation[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			if attempt > 0 && attempt >= r.config.MaxRetries {
				return zero, fmt.Errorf("operation failed after %d attempts: %w", attempt+1, err)
			}
			return zero, err
		}

		timer := time.NewTimer(r.calculateDelay(attempt, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func (r *Retrier) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxRetries {
		return false
	}

	if llmErr, ok := IsLLMError(err); ok {
		return llmErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range r.config.RetryableErrors {
		if strings.Contains(errStr, strings.ToLower(retryableErr)) {
			return true
		}
	}
	return false
}

// calculateDelay is exponential backoff with ±25% jitter, clamped to
// [InitialDelay, MaxDelay]. A provider-supplied RetryAfter wins.
func (r *Retrier) calculateDelay(attempt int, err error) time.Duration {
	if llmErr, ok := IsLLMError(err); ok && llmErr.RetryAfter > 0 {
		return time.Duration(llmErr.RetryAfter) * time.Second
	}

	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt))

	r.mu.Lock()
	jitter := 0.25 * delay * (r.rand.Float64()*2 - 1)
	r.mu.Unlock()
	delay += jitter

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if delay < float64(r.config.InitialDelay) {
		delay = float64(r.config.InitialDelay)
	}
	return time.Duration(delay)
}
