package match

import (
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/logging"
)

// Request is the view of an inbound request consumed by route matching.
// Headers carries the non-restricted request headers with canonical
// MIME keys.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Query    url.Values
	Headers  map[string]string
}

// NewRequest builds the matching view of r. Restricted headers are
// dropped here once and stay out of everything derived from the view,
// including relayed header sets.
func NewRequest(r *http.Request) *Request {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if config.IsRestrictedHeader(name) || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}
	return &Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Query:    r.URL.Query(),
		Headers:  headers,
	}
}

// Header returns a header value from the view by name.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[http.CanonicalHeaderKey(name)]
	return v, ok
}

// Selection is the outcome of route matching: the chosen route with its
// map configuration already variable-substituted, plus the committed
// request namespace.
type Selection struct {
	Route     *config.RouteConfig
	Variables *Namespace
}

// RouteMatcher selects a route for a request from the tenant and domain
// route tables.
type RouteMatcher struct {
	cache *Cache
}

// NewRouteMatcher creates a matcher backed by the given pattern cache.
func NewRouteMatcher(cache *Cache) *RouteMatcher {
	if cache == nil {
		cache = NewCache(0)
	}
	return &RouteMatcher{cache: cache}
}

// Cache exposes the matcher's pattern cache for collaborators that
// evaluate regexes from free-form filter parameters.
func (m *RouteMatcher) Cache() *Cache {
	return m.cache
}

// Select walks the route tables in fallback order: tenant routes for
// the request method, tenant catch-all, domain routes for the method,
// domain catch-all. Within a list the first fully matching route wins;
// declaration order is the only precedence. When nothing matches, a
// not-found route is synthesized from the domain configuration.
func (m *RouteMatcher) Select(req *Request, domain *config.DomainConfig, tenant *config.TenantConfig) *Selection {
	if tenant != nil {
		if sel := m.findMatching(req, tenant.MethodRoutes[req.Method]); sel != nil {
			return sel
		}
		if sel := m.findMatching(req, tenant.MethodRoutes[config.WildcardMethod]); sel != nil {
			return sel
		}
	}
	if domain != nil {
		if sel := m.findMatching(req, domain.MethodRoutes[req.Method]); sel != nil {
			return sel
		}
		if sel := m.findMatching(req, domain.MethodRoutes[config.WildcardMethod]); sel != nil {
			return sel
		}
	}
	return m.notFound(req, domain)
}

func (m *RouteMatcher) findMatching(req *Request, routes []*config.RouteConfig) *Selection {
	for _, route := range routes {
		// Each candidate gets its own namespace; variables from a
		// rejected candidate never leak into the request.
		ns := NewNamespace()
		if !m.matchRoute(req, route, ns) {
			continue
		}
		if route.ExtractConfiguration != nil {
			m.extractVariables(req, route.ExtractConfiguration, ns)
		}
		addRequestVariables(req, ns)
		ns.Merge(route.Variables)
		return &Selection{
			Route:     m.applyTemplateVariables(req, route, ns),
			Variables: ns,
		}
	}
	return nil
}

// matchRoute evaluates the route's match configuration as a
// conjunction. An omitted configuration is trivially satisfied; the
// first failing matcher rejects the candidate.
func (m *RouteMatcher) matchRoute(req *Request, route *config.RouteConfig, ns *Namespace) bool {
	mc := route.MatchConfiguration
	if mc == nil {
		return true
	}
	for _, pc := range mc.PathConfiguration {
		pattern := m.pattern(pc.Pattern(), pc.Regex)
		if pattern == nil {
			return false
		}
		vars, ok := Evaluate(pattern, pc.CaptureGroups, "match.path", "match.path", req.Path)
		if !ok {
			return false
		}
		ns.Merge(vars)
	}
	for _, hc := range mc.HeaderConfiguration {
		value, present := req.Header(hc.Name)
		if !present {
			return false
		}
		pattern := m.pattern(hc.Pattern(), hc.Regex)
		if pattern == nil {
			return false
		}
		vars, ok := Evaluate(pattern, hc.CaptureGroups, "match.header", "match.header."+hc.Name, value)
		if !ok {
			return false
		}
		ns.Merge(vars)
	}
	for _, qc := range mc.QueryConfiguration {
		values, present := req.Query[qc.Name]
		if !present || len(values) == 0 {
			return false
		}
		pattern := m.pattern(qc.Pattern(), qc.Regex)
		if pattern == nil {
			return false
		}
		vars, ok := Evaluate(pattern, qc.CaptureGroups, "match.query", "match.query."+qc.Name, values[0])
		if !ok {
			return false
		}
		ns.Merge(vars)
	}
	return true
}

// extractVariables runs extraction matchers after a route has matched.
// A non-matching extractor contributes nothing; it never rejects.
func (m *RouteMatcher) extractVariables(req *Request, ec *config.ExtractConfig, ns *Namespace) {
	for _, pc := range ec.PathConfiguration {
		if pattern := m.pattern(pc.Pattern(), pc.Regex); pattern != nil {
			if vars, ok := Evaluate(pattern, pc.CaptureGroups, "extract.path", "extract.path", req.Path); ok {
				ns.Merge(vars)
			}
		}
	}
	for _, hc := range ec.HeaderConfiguration {
		value, present := req.Header(hc.Name)
		if !present {
			continue
		}
		if pattern := m.pattern(hc.Pattern(), hc.Regex); pattern != nil {
			if vars, ok := Evaluate(pattern, hc.CaptureGroups, "extract.header", "extract.header."+hc.Name, value); ok {
				ns.Merge(vars)
			}
		}
	}
	for _, qc := range ec.QueryConfiguration {
		values, present := req.Query[qc.Name]
		if !present || len(values) == 0 {
			continue
		}
		if pattern := m.pattern(qc.Pattern(), qc.Regex); pattern != nil {
			if vars, ok := Evaluate(pattern, qc.CaptureGroups, "extract.query", "extract.query."+qc.Name, values[0]); ok {
				ns.Merge(vars)
			}
		}
	}
}

func addRequestVariables(req *Request, ns *Namespace) {
	ns.Set("request.path", req.Path)
	ns.Set("request.method", req.Method)
	ns.Set("request.query", req.RawQuery)
	for name, value := range req.Headers {
		ns.Set("request.header."+name, value)
	}
}

// applyTemplateVariables clones the matched route with a substituted
// map configuration. The clone's headers are the request headers
// overridden by the substituted route templates; the shared
// configuration tree is never written to.
func (m *RouteMatcher) applyTemplateVariables(req *Request, route *config.RouteConfig, ns *Namespace) *config.RouteConfig {
	applied := *route
	if route.MapConfiguration == nil {
		return &applied
	}
	mapCfg := route.MapConfiguration.Clone()
	mapCfg.URL = ns.Apply(mapCfg.URL)

	headers := make(map[string]string, len(req.Headers)+len(mapCfg.Headers))
	for name, value := range req.Headers {
		headers[name] = value
	}
	for name, value := range mapCfg.Headers {
		headers[name] = ns.Apply(value)
	}
	mapCfg.Headers = headers

	applied.MapConfiguration = mapCfg
	return &applied
}

// notFound synthesizes the fallback route. A domain with a configured
// not-found URL gets a GET redirect carrying the request headers;
// otherwise the route answers 404 directly.
func (m *RouteMatcher) notFound(req *Request, domain *config.DomainConfig) *Selection {
	route := &config.RouteConfig{Name: "not-found"}
	ns := NewNamespace()

	var notFoundURL string
	if domain != nil {
		notFoundURL = domain.Parameters[config.DomainNotFoundURLParameter]
	}
	if notFoundURL == "" {
		route.PredefinedResponseConfiguration = &config.PredefinedResponseConfig{
			Status: http.StatusNotFound,
			Body:   "Request URL not found",
		}
		return &Selection{Route: route, Variables: ns}
	}

	headers := make(map[string]string, len(req.Headers))
	for name, value := range req.Headers {
		headers[name] = value
	}
	route.MapConfiguration = &config.MapConfig{
		URL:       notFoundURL,
		MethodMap: map[string]string{req.Method: http.MethodGet},
		Headers:   headers,
	}
	return &Selection{Route: route, Variables: ns}
}

func (m *RouteMatcher) pattern(compiled *regexp.Regexp, regex string) *regexp.Regexp {
	if compiled != nil {
		return compiled
	}
	pattern, err := m.cache.Get(regex)
	if err != nil {
		logging.Warn("invalid matcher regex", zap.String("regex", regex), zap.Error(err))
		return nil
	}
	return pattern
}
