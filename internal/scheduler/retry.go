package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hray3182/nudge/internal/models"
)

// RetryPolicy bounds the exponential backoff applied to transient storage
// failures.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
}

var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxTries:        5,
}

// retryTransient runs op until it succeeds, fails with anything other
// than models.ErrStorageUnavailable, or the policy is exhausted.
func retryTransient[T any](ctx context.Context, policy RetryPolicy, m *Metrics, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	tries := policy.MaxTries
	if tries == 0 {
		tries = 1
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 && m != nil {
			m.StorageRetries.Inc()
		}
		v, err := op()
		if err != nil && !errors.Is(err, models.ErrStorageUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}
