package resilience

import (
	"context"
	"sort"
	"sync"
)

// Guard pairs a retry policy with a breaker for one external service.
// Each attempt passes through the breaker; an open breaker ends the loop.
type Guard struct {
	Policy  Policy
	Breaker *Breaker
}

// Do runs fn under g. A nil Guard calls fn directly.
func Do[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	return Retry(ctx, g.Policy, op, func(ctx context.Context) (T, error) {
		if g.Breaker == nil {
			return fn(ctx)
		}
		return Call(ctx, g.Breaker, fn)
	})
}

// Registry hands out one Guard per service name.
type Registry struct {
	policy   Policy
	settings BreakerSettings

	mu     sync.Mutex
	guards map[string]*Guard
}

// NewRegistry creates a Registry whose guards share policy and settings.
func NewRegistry(policy Policy, settings BreakerSettings) *Registry {
	return &Registry{policy: policy, settings: settings, guards: make(map[string]*Guard)}
}

// Guard returns the guard for service, creating it on first use.
func (r *Registry) Guard(service string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guards[service]
	if !ok {
		g = &Guard{Policy: r.policy, Breaker: NewBreaker(service, r.settings)}
		r.guards[service] = g
	}
	return g
}

// States snapshots every breaker's state, keyed by service.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]State, len(names))
	for _, name := range names {
		out[name] = r.Guard(name).Breaker.State()
	}
	return out
}
