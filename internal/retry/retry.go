// Package retry wraps fallible operations in a bounded, fixed-delay retry
// loop. The delay is deliberately not exponential: injected faults are
// low-probability and independent per attempt, so a clean re-run is as
// likely to succeed the second time as the tenth.
package retry

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	defaultWaitMin = 10 * time.Second
	defaultWaitMax = 20 * time.Second
)

// Policy bounds a retried operation. MaxRetries is the number of re-runs
// after the first attempt. A zero Wait picks a random delay in [10s, 20s)
// so concurrent retry loops do not fire in lockstep.
type Policy struct {
	MaxRetries int
	Wait       time.Duration
}

func (p Policy) delay() time.Duration {
	if p.Wait > 0 {
		return p.Wait
	}
	return defaultWaitMin + time.Duration(rand.Int63n(int64(defaultWaitMax-defaultWaitMin)))
}

// Do runs op up to MaxRetries+1 times, sleeping the policy delay between
// attempts. On success the result is returned immediately; once attempts
// are exhausted the last error comes back unchanged.
func Do[T any](log *zap.Logger, label string, p Policy, op func() (T, error)) (T, error) {
	if log == nil {
		log = zap.NewNop()
	}
	wait := p.delay()
	attempts := p.MaxRetries + 1

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt < attempts {
			log.Warn("operation failed, retrying",
				zap.String("op", label),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
			time.Sleep(wait)
		}
	}

	log.Error("operation failed after all attempts",
		zap.String("op", label),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(log *zap.Logger, label string, p Policy, op func() error) error {
	_, err := Do(log, label, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
