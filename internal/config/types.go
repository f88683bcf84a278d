// Package config holds the dynamic routing configuration tree, its
// JSON decoding, and the atomically swappable store shared by the
// request pipeline and the background synchronizer.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Domain parameter and request-scoped keys shared across packages.
const (
	DomainNotFoundURLParameter = "archura.domain.not-found.url"

	// DefaultDomainName is used when the Host header is absent or unresolvable.
	DefaultDomainName = "default"

	// WildcardMethod keys the catch-all route list in MethodRoutes.
	WildcardMethod = "*"
)

// restrictedHeaders are hop-controlled headers that are never relayed
// in either direction; the transport sets each one itself.
var restrictedHeaders = map[string]struct{}{
	"host":              {},
	"upgrade":           {},
	"connection":        {},
	"content-length":    {},
	"transfer-encoding": {},
}

// IsRestrictedHeader reports whether the named header must not be
// copied between the client and the downstream service.
func IsRestrictedHeader(name string) bool {
	_, ok := restrictedHeaders[strings.ToLower(name)]
	return ok
}

// GlobalConfig is the root of the configuration tree. It is fetched from
// the configuration server and swapped wholesale into the Store; nothing
// mutates a published GlobalConfig in place.
type GlobalConfig struct {
	ConfigurationServerURL               string            `json:"configurationServerURL"`
	ConfigurationServerRequestHeaders    map[string]string `json:"configurationServerRequestHeaders"`
	ConfigurationServerConnectionTimeout int64             `json:"configurationServerConnectionTimeout"`
	ConfigurationServerRetryInterval     int64             `json:"configurationServerRetryInterval"`

	NotificationServerURL               string            `json:"notificationServerURL"`
	NotificationServerRequestHeaders    map[string]string `json:"notificationServerRequestHeaders"`
	NotificationServerConnectionTimeout int64             `json:"notificationServerConnectionTimeout"`
	NotificationServerRetryInterval     int64             `json:"notificationServerRetryInterval"`

	PreFilters  FilterChain `json:"preFilters"`
	PostFilters FilterChain `json:"postFilters"`

	Domains map[string]*DomainConfig `json:"domains"`
}

// DomainConfig is the configuration unit selected by the inbound Host
// header. It owns tenants and an optional domain-level route table that
// serves as the fallback when no tenant route matches.
type DomainConfig struct {
	Name            string            `json:"name"`
	CustomerAccount string            `json:"customerAccount"`
	DefaultTenantID string            `json:"defaultTenantId"`
	Parameters      map[string]string `json:"parameters"`

	// JWT verification material for the Authentication filter.
	PublicCertificate     string `json:"publicCertificate"`
	PublicCertificateType string `json:"publicCertificateType"`

	PreFilters  FilterChain `json:"preFilters"`
	PostFilters FilterChain `json:"postFilters"`

	Tenants      map[string]*TenantConfig  `json:"tenants"`
	MethodRoutes map[string][]*RouteConfig `json:"methodRoutes"`
}

// TenantConfig is a sub-unit of a domain with its own route table and
// filter scope.
type TenantConfig struct {
	Name        string      `json:"name"`
	PreFilters  FilterChain `json:"preFilters"`
	PostFilters FilterChain `json:"postFilters"`

	MethodRoutes map[string][]*RouteConfig `json:"methodRoutes"`
}

// RouteConfig maps a request shape to a downstream target or a
// predefined response.
type RouteConfig struct {
	Name        string      `json:"name"`
	PreFilters  FilterChain `json:"preFilters"`
	PostFilters FilterChain `json:"postFilters"`

	MatchConfiguration   *MatchConfig   `json:"matchConfiguration"`
	ExtractConfiguration *ExtractConfig `json:"extractConfiguration"`
	MapConfiguration     *MapConfig     `json:"mapConfiguration"`

	PredefinedResponseConfiguration *PredefinedResponseConfig `json:"predefinedResponseConfiguration"`

	// Variables holds route-level constants merged into the request
	// namespace on match.
	Variables map[string]string `json:"variables"`
}

// MatchConfig gates route selection: every listed matcher must fully
// match its target.
type MatchConfig struct {
	PathConfiguration   []*PathConfig   `json:"pathConfiguration"`
	HeaderConfiguration []*HeaderConfig `json:"headerConfiguration"`
	QueryConfiguration  []*QueryConfig  `json:"queryConfiguration"`
}

// ExtractConfig populates variables after a route has matched; a
// non-matching extractor contributes nothing and never rejects.
type ExtractConfig struct {
	PathConfiguration   []*PathConfig   `json:"pathConfiguration"`
	HeaderConfiguration []*HeaderConfig `json:"headerConfiguration"`
	QueryConfiguration  []*QueryConfig  `json:"queryConfiguration"`
}

// MapConfig describes the downstream call for a matched route. URL and
// header values may contain ${variable} placeholders.
type MapConfig struct {
	URL       string            `json:"url"`
	MethodMap map[string]string `json:"methodMap"`
	Headers   map[string]string `json:"headers"`
}

// Clone returns a deep copy so per-request substitution never touches
// the shared configuration tree.
func (m *MapConfig) Clone() *MapConfig {
	if m == nil {
		return nil
	}
	c := &MapConfig{URL: m.URL}
	if m.MethodMap != nil {
		c.MethodMap = make(map[string]string, len(m.MethodMap))
		for k, v := range m.MethodMap {
			c.MethodMap[k] = v
		}
	}
	if m.Headers != nil {
		c.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			c.Headers[k] = v
		}
	}
	return c
}

// PredefinedResponseConfig short-circuits a route to a static response;
// such a route is never sent downstream.
type PredefinedResponseConfig struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// PathConfig matches the request URI against a regex and surfaces the
// named capture groups as variables.
type PathConfig struct {
	Regex         string   `json:"regex"`
	CaptureGroups []string `json:"captureGroups"`

	pattern *regexp.Regexp
}

// HeaderConfig matches the value of a named request header.
type HeaderConfig struct {
	Name          string   `json:"name"`
	Regex         string   `json:"regex"`
	CaptureGroups []string `json:"captureGroups"`

	pattern *regexp.Regexp
}

// QueryConfig matches the value of a named query parameter.
type QueryConfig struct {
	Name          string   `json:"name"`
	Regex         string   `json:"regex"`
	CaptureGroups []string `json:"captureGroups"`

	pattern *regexp.Regexp
}

// Pattern returns the compiled regex, or nil before Compile has run.
func (p *PathConfig) Pattern() *regexp.Regexp   { return p.pattern }
func (h *HeaderConfig) Pattern() *regexp.Regexp { return h.pattern }
func (q *QueryConfig) Pattern() *regexp.Regexp  { return q.pattern }

func compileAnchored(regex string) (*regexp.Regexp, error) {
	// Full-match semantics: the whole input must satisfy the regex.
	return regexp.Compile("^(?:" + regex + ")$")
}

// Compile walks the whole tree and compiles every matcher regex once,
// at load time. A malformed regex is a configuration error surfaced
// here, never at request time. The compiled patterns are immutable
// afterwards; the tree must not have been published yet.
func (g *GlobalConfig) Compile() error {
	for host, domain := range g.Domains {
		if err := domain.Compile(); err != nil {
			return fmt.Errorf("domain %q: %w", host, err)
		}
	}
	return nil
}

// Compile compiles every matcher regex under this domain.
func (d *DomainConfig) Compile() error {
	for tenantID, tenant := range d.Tenants {
		if err := compileMethodRoutes(tenant.MethodRoutes); err != nil {
			return fmt.Errorf("tenant %q: %w", tenantID, err)
		}
	}
	return compileMethodRoutes(d.MethodRoutes)
}

func compileMethodRoutes(methodRoutes map[string][]*RouteConfig) error {
	for method, routes := range methodRoutes {
		for _, route := range routes {
			if err := route.compile(); err != nil {
				return fmt.Errorf("method %q route %q: %w", method, route.Name, err)
			}
		}
	}
	return nil
}

func (r *RouteConfig) compile() error {
	if r.MatchConfiguration != nil {
		if err := compileMatchers(
			r.MatchConfiguration.PathConfiguration,
			r.MatchConfiguration.HeaderConfiguration,
			r.MatchConfiguration.QueryConfiguration,
		); err != nil {
			return err
		}
	}
	if r.ExtractConfiguration != nil {
		if err := compileMatchers(
			r.ExtractConfiguration.PathConfiguration,
			r.ExtractConfiguration.HeaderConfiguration,
			r.ExtractConfiguration.QueryConfiguration,
		); err != nil {
			return err
		}
	}
	return nil
}

func compileMatchers(paths []*PathConfig, headers []*HeaderConfig, queries []*QueryConfig) error {
	for _, p := range paths {
		pattern, err := compileAnchored(p.Regex)
		if err != nil {
			return fmt.Errorf("path regex %q: %w", p.Regex, err)
		}
		p.pattern = pattern
	}
	for _, h := range headers {
		pattern, err := compileAnchored(h.Regex)
		if err != nil {
			return fmt.Errorf("header %q regex %q: %w", h.Name, h.Regex, err)
		}
		h.pattern = pattern
	}
	for _, q := range queries {
		pattern, err := compileAnchored(q.Regex)
		if err != nil {
			return fmt.Errorf("query %q regex %q: %w", q.Name, q.Regex, err)
		}
		q.pattern = pattern
	}
	return nil
}
