package match

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/canmogol/archura-router/internal/config"
)

func matcherRequest(t *testing.T, method, target string, headers map[string]string) *Request {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return NewRequest(r)
}

func pathRoute(name, regex, url string, groups ...string) *config.RouteConfig {
	return &config.RouteConfig{
		Name: name,
		MatchConfiguration: &config.MatchConfig{
			PathConfiguration: []*config.PathConfig{
				{Regex: regex, CaptureGroups: groups},
			},
		},
		MapConfiguration: &config.MapConfig{URL: url},
	}
}

func TestSelectSubstitutesPathVariable(t *testing.T) {
	tenant := &config.TenantConfig{
		Name: "t1",
		MethodRoutes: map[string][]*config.RouteConfig{
			"GET": {
				pathRoute("users", `/(?P<tenantId>.*)/user.*`, "http://svc/${match.path.tenantId}", "tenantId"),
			},
		},
	}
	domain := &config.DomainConfig{Name: "shop.example.com", CustomerAccount: "acme"}

	req := matcherRequest(t, http.MethodGet, "http://shop.example.com/12345/user/1", nil)
	sel := NewRouteMatcher(nil).Select(req, domain, tenant)

	if sel.Route.Name != "users" {
		t.Fatalf("route = %q", sel.Route.Name)
	}
	if sel.Route.MapConfiguration.URL != "http://svc/12345" {
		t.Errorf("url = %q, want %q", sel.Route.MapConfiguration.URL, "http://svc/12345")
	}
	if v, _ := sel.Variables.Get("match.path.tenantId"); v != "12345" {
		t.Errorf("match.path.tenantId = %q", v)
	}
}

func TestSelectFirstDeclaredWins(t *testing.T) {
	first := pathRoute("first", `/users/.*`, "http://first/${request.path}")
	second := pathRoute("second", `/users/.*`, "http://second/${request.path}")
	tenant := &config.TenantConfig{
		MethodRoutes: map[string][]*config.RouteConfig{
			"GET": {first, second},
		},
	}

	req := matcherRequest(t, http.MethodGet, "http://x/users/1", nil)
	sel := NewRouteMatcher(nil).Select(req, &config.DomainConfig{}, tenant)

	if sel.Route.Name != "first" {
		t.Errorf("route = %q, declaration order must decide", sel.Route.Name)
	}
	// the losing route's template must stay untouched
	if second.MapConfiguration.URL != "http://second/${request.path}" {
		t.Errorf("second route mutated: %q", second.MapConfiguration.URL)
	}
}

func TestSelectConjunctiveMatching(t *testing.T) {
	route := pathRoute("both", `/orders/.*`, "http://svc")
	route.MatchConfiguration.HeaderConfiguration = []*config.HeaderConfig{
		{Name: "X-Version", Regex: `v2`},
	}
	tenant := &config.TenantConfig{
		MethodRoutes: map[string][]*config.RouteConfig{"GET": {route}},
	}
	m := NewRouteMatcher(nil)

	// header mismatch rejects despite the path matching
	req := matcherRequest(t, http.MethodGet, "http://x/orders/9", map[string]string{"X-Version": "v1"})
	if sel := m.Select(req, &config.DomainConfig{}, tenant); sel.Route.Name == "both" {
		t.Fatal("route selected although its header matcher failed")
	}

	// absent header rejects too
	req = matcherRequest(t, http.MethodGet, "http://x/orders/9", nil)
	if sel := m.Select(req, &config.DomainConfig{}, tenant); sel.Route.Name == "both" {
		t.Fatal("route selected although the matched header is absent")
	}

	// with the matcher satisfied the same route is selectable
	req = matcherRequest(t, http.MethodGet, "http://x/orders/9", map[string]string{"X-Version": "v2"})
	if sel := m.Select(req, &config.DomainConfig{}, tenant); sel.Route.Name != "both" {
		t.Fatalf("route = %q, want %q", sel.Route.Name, "both")
	}
}

func TestSelectRejectedCandidateLeavesNoVariables(t *testing.T) {
	leaky := pathRoute("leaky", `/(?P<leak>.*)/a`, "http://svc", "leak")
	leaky.MatchConfiguration.HeaderConfiguration = []*config.HeaderConfig{
		{Name: "X-Never", Regex: `.+`},
	}
	fallback := pathRoute("fallback", `/.*`, "http://svc")
	tenant := &config.TenantConfig{
		MethodRoutes: map[string][]*config.RouteConfig{"GET": {leaky, fallback}},
	}

	req := matcherRequest(t, http.MethodGet, "http://x/42/a", nil)
	sel := NewRouteMatcher(nil).Select(req, &config.DomainConfig{}, tenant)

	if sel.Route.Name != "fallback" {
		t.Fatalf("route = %q", sel.Route.Name)
	}
	if _, ok := sel.Variables.Get("match.path.leak"); ok {
		t.Error("variable from a rejected candidate leaked into the request namespace")
	}
}

func TestSelectQueryMatcher(t *testing.T) {
	route := &config.RouteConfig{
		Name: "byquery",
		MatchConfiguration: &config.MatchConfig{
			QueryConfiguration: []*config.QueryConfig{
				{Name: "tenantId", Regex: `(?P<tid>\d+)`, CaptureGroups: []string{"tid"}},
			},
		},
		MapConfiguration: &config.MapConfig{URL: "http://svc/${match.query.tid}"},
	}
	tenant := &config.TenantConfig{
		MethodRoutes: map[string][]*config.RouteConfig{"GET": {route}},
	}

	req := matcherRequest(t, http.MethodGet, "http://x/any?tenantId=777", nil)
	sel := NewRouteMatcher(nil).Select(req, &config.DomainConfig{}, tenant)
	if sel.Route.MapConfiguration.URL != "http://svc/777" {
		t.Errorf("url = %q", sel.Route.MapConfiguration.URL)
	}
}

func TestSelectFallbackOrder(t *testing.T) {
	tenantWildcard := pathRoute("tenant-wildcard", `/t/.*`, "http://tenant-wildcard")
	domainMethod := pathRoute("domain-method", `/d/.*`, "http://domain-method")
	domainWildcard := pathRoute("domain-wildcard", `/.*`, "http://domain-wildcard")

	tenant := &config.TenantConfig{
		MethodRoutes: map[string][]*config.RouteConfig{
			config.WildcardMethod: {tenantWildcard},
		},
	}
	domain := &config.DomainConfig{
		MethodRoutes: map[string][]*config.RouteConfig{
			"GET":                 {domainMethod},
			config.WildcardMethod: {domainWildcard},
		},
	}
	m := NewRouteMatcher(nil)

	tests := []struct {
		target string
		want   string
	}{
		{"http://x/t/1", "tenant-wildcard"},
		{"http://x/d/1", "domain-method"},
		{"http://x/other", "domain-wildcard"},
	}
	for _, tt := range tests {
		req := matcherRequest(t, http.MethodGet, tt.target, nil)
		if sel := m.Select(req, domain, tenant); sel.Route.Name != tt.want {
			t.Errorf("Select(%s) = %q, want %q", tt.target, sel.Route.Name, tt.want)
		}
	}
}

func TestSelectNotFoundPredefined(t *testing.T) {
	domain := &config.DomainConfig{Name: "d"}
	req := matcherRequest(t, http.MethodDelete, "http://x/unrouted", nil)

	sel := NewRouteMatcher(nil).Select(req, domain, &config.TenantConfig{})

	pr := sel.Route.PredefinedResponseConfiguration
	if pr == nil {
		t.Fatal("expected a predefined 404 response")
	}
	if pr.Status != http.StatusNotFound || pr.Body != "Request URL not found" {
		t.Errorf("predefined = %+v", pr)
	}
}

func TestSelectNotFoundRedirect(t *testing.T) {
	domain := &config.DomainConfig{
		Name: "d",
		Parameters: map[string]string{
			config.DomainNotFoundURLParameter: "http://fallback.example.com",
		},
	}
	req := matcherRequest(t, http.MethodPost, "http://x/unrouted", map[string]string{"X-Trace": "abc"})

	sel := NewRouteMatcher(nil).Select(req, domain, &config.TenantConfig{})

	mc := sel.Route.MapConfiguration
	if mc == nil {
		t.Fatal("expected a redirect map configuration")
	}
	if mc.URL != "http://fallback.example.com" {
		t.Errorf("url = %q", mc.URL)
	}
	if mc.MethodMap[http.MethodPost] != http.MethodGet {
		t.Errorf("method map = %v, POST must remap to GET", mc.MethodMap)
	}
	if mc.Headers["X-Trace"] != "abc" {
		t.Errorf("request headers not carried: %v", mc.Headers)
	}
}

func TestSelectAppliedHeadersUnion(t *testing.T) {
	route := pathRoute("r", `/.*`, "http://svc")
	route.MapConfiguration.Headers = map[string]string{
		"X-Tenant": "${match.path.id}",
		"Accept":   "application/json",
	}
	route.MatchConfiguration.PathConfiguration[0].Regex = `/(?P<id>\d+)`
	route.MatchConfiguration.PathConfiguration[0].CaptureGroups = []string{"id"}

	tenant := &config.TenantConfig{
		MethodRoutes: map[string][]*config.RouteConfig{"GET": {route}},
	}
	req := matcherRequest(t, http.MethodGet, "http://x/42", map[string]string{
		"Accept":  "text/html",
		"X-Trace": "keep",
	})

	sel := NewRouteMatcher(nil).Select(req, &config.DomainConfig{}, tenant)
	headers := sel.Route.MapConfiguration.Headers

	if headers["X-Tenant"] != "42" {
		t.Errorf("X-Tenant = %q", headers["X-Tenant"])
	}
	if headers["Accept"] != "application/json" {
		t.Errorf("Accept = %q, route template must override the request header", headers["Accept"])
	}
	if headers["X-Trace"] != "keep" {
		t.Errorf("X-Trace = %q, untouched request headers must be retained", headers["X-Trace"])
	}
	// shared tree stays clean
	if route.MapConfiguration.Headers["X-Tenant"] != "${match.path.id}" {
		t.Error("substitution mutated the configured route")
	}
}

func TestNewRequestDropsRestrictedHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://x/", nil)
	r.Header.Set("Connection", "keep-alive")
	r.Header.Set("Upgrade", "h2c")
	r.Header.Set("X-Kept", "yes")

	req := NewRequest(r)
	if _, ok := req.Header("Connection"); ok {
		t.Error("Connection must be dropped")
	}
	if _, ok := req.Header("Upgrade"); ok {
		t.Error("Upgrade must be dropped")
	}
	if v, _ := req.Header("X-Kept"); v != "yes" {
		t.Errorf("X-Kept = %q", v)
	}
}
