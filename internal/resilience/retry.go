package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Policy controls the retry loop.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Jitter is the fraction of each delay that is randomized, in [0,1].
	Jitter float64
}

// DefaultPolicy is used when a zero Policy is passed.
var DefaultPolicy = Policy{
	Attempts:   3,
	Backoff:    500 * time.Millisecond,
	MaxBackoff: 10 * time.Second,
	Jitter:     0.2,
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultPolicy.Backoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return p
}

// delay returns the wait before retry n (1-based): exponential, capped, jittered.
func (p Policy) delay(n int) time.Duration {
	d := p.Backoff << (n - 1)
	if d <= 0 || d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread) //nolint:gosec
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// policy is exhausted.
func Retry[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()
	var zero T
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) || attempt == p.Attempts {
			break
		}

		wait := p.delay(attempt)
		zap.L().Debug("retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, eris.Wrapf(ctx.Err(), "%s: cancelled during retry", op)
		case <-t.C:
		}
	}
	return zero, err
}
