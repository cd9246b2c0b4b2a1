package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrOpen is returned without calling the service while a breaker is open.
var ErrOpen = eris.New("resilience: circuit open")

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	// Failures opens the breaker after this many consecutive failures.
	Failures int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// Breaker is a consecutive-failure circuit breaker. While half-open a single
// probe is let through; its result closes or re-opens the circuit.
type Breaker struct {
	name     string
	settings BreakerSettings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed Breaker.
func NewBreaker(name string, s BreakerSettings) *Breaker {
	if s.Failures <= 0 {
		s.Failures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, settings: s, now: time.Now}
}

// State returns the current state, moving open to half-open once the
// cooldown has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Breaker) current() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(HalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	zap.L().Info("circuit breaker state change",
		zap.String("service", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
	b.probing = false
	if to == Open {
		b.openedAt = b.now()
	}
	if to == Closed {
		b.failures = 0
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.current() {
	case Open:
		return false
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Caller cancellation says nothing about the service.
	if err != nil && errors.Is(err, context.Canceled) {
		b.probing = false
		return
	}
	if err == nil {
		b.transition(Closed)
		b.failures = 0
		return
	}
	if b.state == HalfOpen {
		b.transition(Open)
		return
	}
	b.failures++
	if b.failures >= b.settings.Failures {
		b.transition(Open)
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
}

// Call runs fn through the breaker.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, eris.Wrapf(ErrOpen, "service %s", b.name)
	}
	v, err := fn(ctx)
	b.record(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}
