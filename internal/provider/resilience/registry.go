package resilience

import (
	"sort"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/sony/gobreaker/v2"
)

// Status summarizes provider health.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Breaker reports circuit breaker state. *Client implements it.
type Breaker interface {
	CircuitBreakerState() gobreaker.State
	CircuitBreakerCounts() gobreaker.Counts
}

// ProviderHealth is a point-in-time view of one provider.
type ProviderHealth struct {
	Name          string           `json:"name"`
	Status        Status           `json:"status"`
	CircuitState  string           `json:"circuitState"`
	Counts        gobreaker.Counts `json:"-"`
	Requests      uint32           `json:"requests"`
	Failures      uint32           `json:"failures"`
	LastSuccessAt *time.Time       `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time       `json:"lastFailureAt,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
}

func statusOf(s gobreaker.State) Status {
	switch s {
	case gobreaker.StateOpen:
		return StatusDown
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusOK
	}
}

// Registry tracks providers and their most recent outcomes.
type Registry struct {
	mu        sync.RWMutex
	clock     clock.Clock
	providers map[string]*registeredProvider
}

type registeredProvider struct {
	breaker       Breaker
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates a registry. A nil clock uses the wall clock.
func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Registry{
		clock:     clk,
		providers: make(map[string]*registeredProvider),
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &registeredProvider{breaker: b}
}

// Unregister removes a provider.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// RecordSuccess stamps a successful call. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.clock.Now().UTC()
		p.lastSuccessAt = &now
	}
}

// RecordFailure stamps a failed call. Unknown names are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.clock.Now().UTC()
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	}
}

// Health returns one provider's health, or nil when unknown.
func (r *Registry) Health(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil
	}
	return p.health(name)
}

// Snapshot returns every provider's health sorted by name.
func (r *Registry) Snapshot() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ProviderHealth, 0, len(r.providers))
	for name, p := range r.providers {
		out = append(out, p.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall folds provider health into one status: down when every provider
// is down, degraded when any is not ok.
func (r *Registry) Overall() Status {
	snap := r.Snapshot()
	if len(snap) == 0 {
		return StatusOK
	}
	down, notOK := 0, 0
	for _, h := range snap {
		if h.Status == StatusDown {
			down++
		}
		if h.Status != StatusOK {
			notOK++
		}
	}
	switch {
	case down == len(snap):
		return StatusDown
	case notOK > 0:
		return StatusDegraded
	default:
		return StatusOK
	}
}

func (p *registeredProvider) health(name string) *ProviderHealth {
	state := p.breaker.CircuitBreakerState()
	counts := p.breaker.CircuitBreakerCounts()
	return &ProviderHealth{
		Name:          name,
		Status:        statusOf(state),
		CircuitState:  state.String(),
		Counts:        counts,
		Requests:      counts.Requests,
		Failures:      counts.TotalFailures,
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		LastError:     p.lastError,
	}
}
