package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds an activity's retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second try.
	BaseDelay time.Duration
	// BackoffFactor multiplies the delay after each failed try. Zero or
	// one means constant delay.
	BackoffFactor float64
	// MaxDelay caps the per-retry wait. Zero means no cap.
	MaxDelay time.Duration
	// Timeout bounds the activity overall, across all tries. Zero means
	// no timeout.
	Timeout time.Duration
}

// Retry policies for the built-in activities.
var (
	// LoadDatasetPolicy retries dataset loads quickly.
	LoadDatasetPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	// RunEvalPolicy retries the engine with exponential backoff under an
	// overall 2h timeout.
	RunEvalPolicy = RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     5 * time.Second,
		BackoffFactor: 2,
		MaxDelay:      5 * time.Minute,
		Timeout:       2 * time.Hour,
	}
	// EmitResultsPolicy retries sink emission once. Failures are advisory:
	// the workflow still returns the run result.
	EmitResultsPolicy = RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}
)

// ExecuteActivity runs fn under the retry policy and journals the outcome.
// On replay the recorded outcome is returned without re-executing fn.
// A terminal failure (retries exhausted) is journaled too, so a replayed
// history observes the identical failure.
func ExecuteActivity[T any](wc *Context, name string, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	seq := wc.seq
	wc.seq++

	entry, err := wc.journal.Get(wc.ctx, wc.id, seq)
	if err == nil {
		if entry.Kind != KindActivity || entry.Name != name {
			return zero, fmt.Errorf("history mismatch at seq %d: journaled %s/%s, executing activity %s",
				seq, entry.Kind, entry.Name, name)
		}
		if entry.Err != "" {
			return zero, fmt.Errorf("activity %s failed: %s", name, entry.Err)
		}
		var result T
		if err := json.Unmarshal(entry.Result, &result); err != nil {
			return zero, fmt.Errorf("decode journaled result of %s: %w", name, err)
		}
		return result, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return zero, fmt.Errorf("read journal: %w", err)
	}

	result, execErr := runWithRetries(wc.ctx, policy, fn)
	if execErr != nil {
		if err := wc.recordFailure(seq, name, execErr); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("activity %s failed: %w", name, execErr)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("encode result of %s: %w", name, err)
	}
	record := Entry{
		WorkflowID: wc.id,
		Seq:        seq,
		Kind:       KindActivity,
		Name:       name,
		Result:     encoded,
		RecordedAt: time.Now().UTC(),
	}
	if err := wc.journal.Append(wc.ctx, record); err != nil {
		return zero, fmt.Errorf("append journal: %w", err)
	}
	return result, nil
}

// runWithRetries executes fn up to MaxAttempts times with backoff.
func runWithRetries[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		if policy.BackoffFactor > 1 {
			delay = time.Duration(float64(delay) * policy.BackoffFactor)
		}
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return zero, lastErr
}

// sleep waits for d, honouring cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
