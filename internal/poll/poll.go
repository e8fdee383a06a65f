// Package poll waits for an eventually-visible condition on the ledger with a
// bounded number of reads.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted means the attempt budget ran out before the condition held.
var ErrExhausted = errors.New("poll: attempts exhausted")

var errNotYet = errors.New("condition not met")

// Policy bounds a poll. InitialDelay is waited once before the first read;
// later reads back off from Interval up to MaxInterval.
type Policy struct {
	Attempts     int           `json:"attempts" yaml:"attempts"`
	InitialDelay time.Duration `json:"initialDelay" yaml:"initialDelay"`
	Interval     time.Duration `json:"interval" yaml:"interval"`
	MaxInterval  time.Duration `json:"maxInterval" yaml:"maxInterval"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Probe reads the ledger once. It returns true when the condition holds; an
// error counts as "not yet" and is retried.
type Probe func(ctx context.Context) (bool, error)

// Until runs probe until it reports true, the budget is spent or ctx ends.
// It returns how many probes ran. On exhaustion the error wraps ErrExhausted
// and the last probe error, if any.
func Until(ctx context.Context, p Policy, probe Probe) (int, error) {
	p = p.normalized()

	if p.InitialDelay > 0 {
		t := time.NewTimer(p.InitialDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Interval
	eb.MaxInterval = p.MaxInterval
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)

	var (
		attempts int
		lastErr  error
	)
	err := backoff.Retry(func() error {
		attempts++
		ok, err := probe(ctx)
		if err != nil {
			lastErr = err
			return err
		}
		if !ok {
			return errNotYet
		}
		return nil
	}, b)
	if err == nil {
		return attempts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attempts, ctxErr
	}
	if lastErr != nil {
		return attempts, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempts, lastErr)
	}
	return attempts, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
