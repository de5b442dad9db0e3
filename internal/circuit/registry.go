package circuit

import (
	"fmt"
	"log/slog"
	"sort"

	cbmetrics "gatekeeper/internal/circuit/metrics"
	"gatekeeper/internal/counter"
	"gatekeeper/internal/platform/config"
)

// Registry holds the named breaker instances. Built once at process start and
// passed by handle to call sites; there is no ambient global state and no
// teardown besides process exit.
type Registry struct {
	breakers map[string]*Breaker
}

// NewRegistry constructs one breaker per configured profile.
func NewRegistry(store counter.Store, profiles []config.BreakerProfile, logger *slog.Logger, m *cbmetrics.Metrics) (*Registry, error) {
	breakers := make(map[string]*Breaker, len(profiles))
	for _, p := range profiles {
		if _, exists := breakers[p.Service]; exists {
			return nil, fmt.Errorf("duplicate breaker profile for service %q", p.Service)
		}
		b, err := New(p.Service, store, Config{
			FailureThreshold: p.FailureThreshold,
			SuccessThreshold: p.SuccessThreshold,
			Timeout:          p.Timeout,
			WindowSize:       p.WindowSize,
		}, WithLogger(logger), WithMetrics(m))
		if err != nil {
			return nil, err
		}
		breakers[p.Service] = b
	}
	return &Registry{breakers: breakers}, nil
}

// Get returns the breaker for a downstream service.
func (r *Registry) Get(service string) (*Breaker, bool) {
	b, ok := r.breakers[service]
	return b, ok
}

// All returns every breaker, ordered by service name for stable diagnostics.
func (r *Registry) All() []*Breaker {
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].service < out[j].service })
	return out
}
