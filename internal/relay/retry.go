package relay

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"relaysync/internal/config"
)

// RetryPolicy yields a fresh schedule for every relayed action.
type RetryPolicy interface {
	NewBackOff() backoff.BackOff
}

// ImmediateRetry retries right away, at most Retries times after the first
// attempt.
type ImmediateRetry struct {
	Retries int
}

func (p ImmediateRetry) NewBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(max(p.Retries, 0)))
}

// ExponentialRetry waits between attempts, doubling from Initial up to Max.
type ExponentialRetry struct {
	Retries int
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetry) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	b.MaxElapsedTime = 0

	return backoff.WithMaxRetries(b, uint64(max(p.Retries, 0)))
}

func PolicyFromConfig(c config.ClientConfig) RetryPolicy {
	if c.Backoff == config.BackoffExponential {
		return ExponentialRetry{
			Retries: c.RetryTimes,
			Initial: 500 * time.Millisecond,
			Max:     c.BackoffMax,
		}
	}

	return ImmediateRetry{Retries: c.RetryTimes}
}
