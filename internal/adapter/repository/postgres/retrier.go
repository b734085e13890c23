package postgres

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxRetries uint64
	FirstDelay time.Duration
	MaxDelay   time.Duration
	Deadline   time.Duration
}

// DefaultRetryPolicy is sized for short posting and stock transactions.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		FirstDelay: 50 * time.Millisecond,
		MaxDelay:   time.Second,
		Deadline:   10 * time.Second,
	}
}

// Retrier implements usecase.Retrier. A transaction that lost a lock race
// (deadlock or serialization failure) is run again after an exponential
// delay; any other error is returned as is.
type Retrier struct {
	policy  RetryPolicy
	retries *prometheus.CounterVec
	logger  zerolog.Logger
}

// NewRetrier creates a Retrier with DefaultRetryPolicy. retries, labelled by
// conflict reason, may be nil.
func NewRetrier(retries *prometheus.CounterVec, logger zerolog.Logger) *Retrier {
	return NewRetrierWithPolicy(DefaultRetryPolicy(), retries, logger)
}

// NewRetrierWithPolicy creates a Retrier with an explicit policy.
func NewRetrierWithPolicy(policy RetryPolicy, retries *prometheus.CounterVec, logger zerolog.Logger) *Retrier {
	return &Retrier{policy: policy, retries: retries, logger: logger}
}

// Retry runs fn until it succeeds, fails with a non-conflict error, or the
// policy is exhausted.
func (r *Retrier) Retry(ctx context.Context, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.FirstDelay
	exp.MaxInterval = r.policy.MaxDelay
	exp.MaxElapsedTime = r.policy.Deadline

	schedule := backoff.WithContext(backoff.WithMaxRetries(exp, r.policy.MaxRetries), ctx)

	attempt := func() error {
		err := fn()
		if err != nil && conflictReason(err) == "" {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(attempt, schedule, r.onConflict)
}

func (r *Retrier) onConflict(err error, wait time.Duration) {
	reason := conflictReason(err)
	if r.retries != nil {
		r.retries.WithLabelValues(reason).Inc()
	}
	r.logger.Warn().Err(err).Str("reason", reason).Dur("wait", wait).Msg("transaction conflict, retrying")
}
