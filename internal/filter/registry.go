package filter

import (
	"context"
	"sync"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/match"
)

// DomainFetcher fetches the configuration of a host unseen since the
// last invalidation. The synchronizer provides the implementation.
type DomainFetcher interface {
	FetchDomain(ctx context.Context, host string) (*config.DomainConfig, error)
}

// Registry resolves a filter type to an instance. Host applications may
// register their own filters, which take precedence over the built-in
// set; an unresolved type falls back to the no-op unknown filter, so a
// typo in configuration degrades to a skipped filter rather than a
// failing pipeline.
type Registry struct {
	mu      sync.RWMutex
	custom  map[string]Filter
	builtin map[string]Filter
	unknown Filter
}

// NewRegistry creates a registry populated with the built-in filters.
func NewRegistry(store *config.Store, fetcher DomainFetcher, matcher *match.RouteMatcher) *Registry {
	return &Registry{
		custom: map[string]Filter{},
		builtin: map[string]Filter{
			config.FilterTypeDomain:             &DomainFilter{store: store, fetcher: fetcher},
			config.FilterTypeTenant:             &TenantFilter{matcher: matcher},
			config.FilterTypeRouteMatching:      &RouteMatchingFilter{matcher: matcher},
			config.FilterTypeHeader:             &HeaderFilter{matcher: matcher},
			config.FilterTypeBlackList:          &BlackListFilter{},
			config.FilterTypeAuthentication:     &AuthenticationFilter{matcher: matcher},
			config.FilterTypePredefinedResponse: &PredefinedResponseFilter{},
		},
		unknown: &UnknownFilter{},
	}
}

// Register installs a host-application filter under the given type.
// Registered filters shadow built-ins of the same type.
func (r *Registry) Register(filterType string, f Filter) {
	r.mu.Lock()
	r.custom[filterType] = f
	r.mu.Unlock()
}

// Find resolves a filter type, consulting registered filters first,
// then the built-ins, then the unknown fallback.
func (r *Registry) Find(filterType string) Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.custom[filterType]; ok {
		return f
	}
	if f, ok := r.builtin[filterType]; ok {
		return f
	}
	return r.unknown
}
