package config

import (
	"strings"
	"sync"
	"sync/atomic"
)

const minIntervalMillis = 1000

// Store holds the live configuration snapshot. Readers get a consistent
// tree via a single atomic pointer load; writers build a fresh snapshot
// under a mutex and publish it with one swap, so a reader never
// observes a half-updated tree.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[GlobalConfig]
}

// NewStore creates a store seeded with the bootstrap configuration.
func NewStore(initial *GlobalConfig) *Store {
	s := &Store{}
	if initial == nil {
		initial = &GlobalConfig{}
	}
	if initial.Domains == nil {
		initial.Domains = map[string]*DomainConfig{}
	}
	s.snapshot.Store(initial)
	return s
}

// Snapshot returns the current configuration tree. The returned value
// must be treated as read-only.
func (s *Store) Snapshot() *GlobalConfig {
	return s.snapshot.Load()
}

// Domain looks up a domain by host in the current snapshot.
func (s *Store) Domain(host string) (*DomainConfig, bool) {
	d, ok := s.Snapshot().Domains[host]
	return d, ok
}

// ReplaceAll swaps in a freshly fetched configuration. A fetch missing
// either server URL is rejected outright; a URL with the wrong scheme
// or an interval at or below one second keeps the previous value, so a
// partial control-plane response can never degrade connectivity
// settings.
func (s *Store) ReplaceAll(next *GlobalConfig) bool {
	if next == nil || next.ConfigurationServerURL == "" || next.NotificationServerURL == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot.Load()
	merged := *next
	if !hasScheme(next.ConfigurationServerURL, "http://", "https://") {
		merged.ConfigurationServerURL = prev.ConfigurationServerURL
	}
	if !hasScheme(next.NotificationServerURL, "ws://", "wss://") {
		merged.NotificationServerURL = prev.NotificationServerURL
	}
	if next.ConfigurationServerConnectionTimeout <= minIntervalMillis {
		merged.ConfigurationServerConnectionTimeout = prev.ConfigurationServerConnectionTimeout
	}
	if next.ConfigurationServerRetryInterval <= minIntervalMillis {
		merged.ConfigurationServerRetryInterval = prev.ConfigurationServerRetryInterval
	}
	if next.NotificationServerConnectionTimeout <= minIntervalMillis {
		merged.NotificationServerConnectionTimeout = prev.NotificationServerConnectionTimeout
	}
	if next.NotificationServerRetryInterval <= minIntervalMillis {
		merged.NotificationServerRetryInterval = prev.NotificationServerRetryInterval
	}
	if merged.Domains == nil {
		merged.Domains = map[string]*DomainConfig{}
	}
	s.snapshot.Store(&merged)
	return true
}

// UpsertDomain publishes a new snapshot with the given domain added or
// replaced under host.
func (s *Store) UpsertDomain(host string, domain *DomainConfig) {
	if domain == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot.Load()
	next := *prev
	next.Domains = make(map[string]*DomainConfig, len(prev.Domains)+1)
	for k, v := range prev.Domains {
		next.Domains[k] = v
	}
	next.Domains[host] = domain
	s.snapshot.Store(&next)
}

// ClearDomains publishes a new snapshot with an empty domain map; the
// map repopulates lazily as hosts are seen again.
func (s *Store) ClearDomains() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot.Load()
	next := *prev
	next.Domains = map[string]*DomainConfig{}
	s.snapshot.Store(&next)
}

func hasScheme(url string, schemes ...string) bool {
	for _, scheme := range schemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
