package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxRetries      = 2
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultCallTimeout     = 2 * time.Minute
)

// RetryPolicy controls how failed oracle calls are retried. MaxRetries is taken
// literally: zero disables retries.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CallTimeout:     defaultCallTimeout,
	}
}

func (p *RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultMaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = defaultCallTimeout
	}
	return nil
}

// Retrying wraps a Client with a per-call timeout and exponential backoff.
// Cancellation of the caller's context is never retried.
type Retrying struct {
	log    *slog.Logger
	next   Client
	policy RetryPolicy
}

func NewRetrying(log *slog.Logger, next Client, policy RetryPolicy) *Retrying {
	_ = policy.Validate()
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Retrying{log: log, next: next, policy: policy}
}

func (r *Retrying) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
		defer cancel()

		text, err := r.next.Complete(callCtx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.Canceled) {
			return "", backoff.Permanent(err)
		}
		return "", err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(r.policy.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("llm: call failed, retrying", "attempt", attempt, "backoff", next, "error", err)
		}),
	)
}
