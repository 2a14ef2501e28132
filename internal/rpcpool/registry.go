// internal/rpcpool/registry.go
package rpcpool

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// Per-minute request budgets.
	premiumBudget = 5000
	publicBudget  = 30

	// rateLimitWindow is the budget accounting window.
	rateLimitWindow = time.Minute

	// rateLimitCooldown is how long an endpoint sits out after a 429.
	rateLimitCooldown = time.Minute

	// healthProbeInterval is how long a health verdict stays fresh; within
	// it the cached verdict is reused instead of probing again.
	healthProbeInterval = 30 * time.Second
)

type endpointState struct {
	windowStart   time.Time
	used          int
	cooldownUntil time.Time
	healthy       bool
	lastProbe     time.Time
}

// Registry tracks per-endpoint request budgets, rate limit cooldowns and
// health verdicts. All decisions are made against the injected clock.
type Registry struct {
	clock  clockwork.Clock
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]*endpointState
}

// NewRegistry creates an endpoint registry.
func NewRegistry(clock clockwork.Clock, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clock:  clock,
		logger: logger.Named("rpc-registry"),
		states: make(map[string]*endpointState),
	}
}

func budgetFor(kind Kind) int {
	if kind == KindPremium {
		return premiumBudget
	}
	return publicBudget
}

func (r *Registry) state(url string) *endpointState {
	st, ok := r.states[url]
	if !ok {
		st = &endpointState{windowStart: r.clock.Now()}
		r.states[url] = st
	}
	return st
}

// CanMakeRequest reports whether the endpoint has budget left and is not
// cooling down after a 429.
func (r *Registry) CanMakeRequest(ep Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canMakeRequestLocked(ep)
}

func (r *Registry) canMakeRequestLocked(ep Endpoint) bool {
	now := r.clock.Now()
	st := r.state(ep.URL)

	if now.Before(st.cooldownUntil) {
		return false
	}
	if now.Sub(st.windowStart) >= rateLimitWindow {
		st.windowStart = now
		st.used = 0
	}
	return st.used < budgetFor(ep.Kind)
}

// RecordRequest consumes one unit of the endpoint's budget.
func (r *Registry) RecordRequest(ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	st := r.state(ep.URL)
	if now.Sub(st.windowStart) >= rateLimitWindow {
		st.windowStart = now
		st.used = 0
	}
	st.used++
}

// RecordRateLimited puts the endpoint on a cooldown after a 429 response.
func (r *Registry) RecordRateLimited(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state(url)
	st.cooldownUntil = r.clock.Now().Add(rateLimitCooldown)
	r.logger.Warn("Endpoint rate limited, cooling down",
		zap.String("url", url),
		zap.Duration("cooldown", rateLimitCooldown))
}

// RecordHealth stores a health probe verdict for the endpoint.
func (r *Registry) RecordHealth(url string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state(url)
	st.healthy = healthy
	st.lastProbe = r.clock.Now()
	if !healthy {
		r.logger.Warn("Endpoint marked unhealthy", zap.String("url", url))
	}
}

// Health returns the cached verdict and whether it is still fresh. A stale
// verdict means the caller should probe again.
func (r *Registry) Health(url string) (healthy, fresh bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[url]
	if !ok || st.lastProbe.IsZero() {
		return false, false
	}
	fresh = r.clock.Now().Sub(st.lastProbe) < healthProbeInterval
	return st.healthy, fresh
}

// PickAvailable returns the first endpoint in the given order that has
// budget and is not cooling down. Endpoints with a fresh unhealthy verdict
// are skipped.
func (r *Registry) PickAvailable(ordered []Endpoint) (Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ep := range ordered {
		if !r.canMakeRequestLocked(ep) {
			continue
		}
		if st, ok := r.states[ep.URL]; ok && !st.lastProbe.IsZero() {
			if fresh := r.clock.Now().Sub(st.lastProbe) < healthProbeInterval; fresh && !st.healthy {
				continue
			}
		}
		return ep, true
	}
	return Endpoint{}, false
}
