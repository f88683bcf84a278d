package filter

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/match"
	"github.com/canmogol/archura-router/internal/proxy"
)

func newPipeline(t *testing.T, globalJSON string) (*Pipeline, *Registry) {
	t.Helper()
	global, err := config.ParseGlobal([]byte(globalJSON))
	if err != nil {
		t.Fatalf("parsing global configuration: %v", err)
	}
	store := config.NewStore(global)
	matcher := match.NewRouteMatcher(nil)
	registry := NewRegistry(store, nil, matcher)
	return NewPipeline(store, registry, matcher, proxy.NewRelay(0), nil), registry
}

func TestPipelineRoutesToDownstream(t *testing.T) {
	var gotPath, gotTenant atomic.Value
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotTenant.Store(r.Header.Get("X-Tenant"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name": "some user"}`)
	}))
	defer downstream.Close()

	pipeline, _ := newPipeline(t, fmt.Sprintf(`{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"preFilters": {
			"domain": {},
			"tenant": {"extractConfiguration": {"pathConfiguration": [
				{"regex": "\\/(?P<tenantId>[0-9]+)\\/.*", "captureGroups": ["tenantId"]}
			]}},
			"routeMatching": {}
		},
		"domains": {
			"shop.example.com": {
				"name": "shop",
				"tenants": {
					"12345": {
						"name": "main",
						"methodRoutes": {
							"GET": [{
								"name": "user-route",
								"matchConfiguration": {"pathConfiguration": [
									{"regex": "\\/(?P<tenantId>[0-9]+)\\/user.*", "captureGroups": ["tenantId"]}
								]},
								"mapConfiguration": {
									"url": "%s/profile/${match.path.tenantId}",
									"headers": {"X-Tenant": "${match.path.tenantId}"}
								}
							}]
						}
					}
				}
			}
		}
	}`, downstream.URL))

	recorder := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://shop.example.com/12345/user?details=full", nil)
	pipeline.ServeHTTP(recorder, r)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", recorder.Code, recorder.Body.String())
	}
	if gotPath.Load() != "/profile/12345" {
		t.Errorf("downstream path = %v", gotPath.Load())
	}
	if gotTenant.Load() != "12345" {
		t.Errorf("X-Tenant = %v", gotTenant.Load())
	}
	if got := recorder.Body.String(); got != `{"name": "some user"}` {
		t.Errorf("relayed body = %q", got)
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}

const minimalGlobal = `{
	"configurationServerURL": "http://localhost:9010",
	"notificationServerURL": "ws://localhost:9000",
	"domains": {
		"shop.example.com": {
			"name": "shop",
			"defaultTenantId": "main",
			"tenants": {"main": {"name": "main"}}
		}
	}
}`

func TestPipelineNotFound(t *testing.T) {
	pipeline, _ := newPipeline(t, minimalGlobal)

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://shop.example.com/nowhere", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if got := recorder.Body.String(); got != "Request URL not found" {
		t.Errorf("body = %q", got)
	}
}

func TestPipelinePreFilterShortCircuit(t *testing.T) {
	var downstreamCalls atomic.Int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamCalls.Add(1)
	}))
	defer downstream.Close()

	pipeline, registry := newPipeline(t, fmt.Sprintf(`{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"preFilters": {
			"maintenance": {
				"type": "predefinedResponse",
				"parameters": {"status": "503", "body": "down for maintenance"}
			},
			"mustNotRun": {"type": "probe"}
		},
		"domains": {
			"shop.example.com": {
				"name": "shop",
				"defaultTenantId": "main",
				"tenants": {"main": {"name": "main", "methodRoutes": {"GET": [{
					"name": "catch-all",
					"mapConfiguration": {"url": "%s"}
				}]}}}
			}
		}
	}`, downstream.URL))

	var probeRan atomic.Bool
	registry.Register("probe", FilterFunc(func(ctx *RequestContext, cfg config.FilterConfig) error {
		probeRan.Store(true)
		return nil
	}))

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://shop.example.com/user", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	if recorder.Body.String() != "down for maintenance" {
		t.Errorf("body = %q", recorder.Body.String())
	}
	if probeRan.Load() {
		t.Error("filter after the handling filter still ran")
	}
	if downstreamCalls.Load() != 0 {
		t.Error("downstream called despite the short circuit")
	}
}

func TestPipelineFilterRejection(t *testing.T) {
	pipeline, _ := newPipeline(t, `{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"preFilters": {
			"required-headers": {"type": "header", "mandatory": [{"name": "X-Request-Id"}]}
		},
		"domains": {}
	}`)

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://shop.example.com/user", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "X-Request-Id") {
		t.Errorf("body = %q", recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestPipelinePredefinedRouteSkipsDownstreamAndPostFilters(t *testing.T) {
	pipeline, registry := newPipeline(t, `{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"preFilters": {"domain": {}, "tenant": {}, "routeMatching": {}},
		"postFilters": {"post-probe": {"type": "probe"}},
		"domains": {
			"shop.example.com": {
				"name": "shop",
				"defaultTenantId": "main",
				"tenants": {"main": {"name": "main", "methodRoutes": {"GET": [{
					"name": "static",
					"predefinedResponseConfiguration": {"status": 200, "body": "static answer"}
				}]}}}
			}
		}
	}`)

	var probeRan atomic.Bool
	registry.Register("probe", FilterFunc(func(ctx *RequestContext, cfg config.FilterConfig) error {
		probeRan.Store(true)
		return nil
	}))

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://shop.example.com/anything", nil))

	if recorder.Code != http.StatusOK || recorder.Body.String() != "static answer" {
		t.Fatalf("response = %d %q", recorder.Code, recorder.Body.String())
	}
	if probeRan.Load() {
		t.Error("post filter ran for a predefined response")
	}
}

func TestPipelinePostFilterTakeover(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "downstream body")
	}))
	defer downstream.Close()

	pipeline, registry := newPipeline(t, fmt.Sprintf(`{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"preFilters": {"domain": {}, "tenant": {}, "routeMatching": {}},
		"postFilters": {"rewrite": {"type": "takeover"}},
		"domains": {
			"shop.example.com": {
				"name": "shop",
				"defaultTenantId": "main",
				"tenants": {"main": {"name": "main", "methodRoutes": {"GET": [{
					"name": "catch-all",
					"mapConfiguration": {"url": "%s"}
				}]}}}
			}
		}
	}`, downstream.URL))

	registry.Register("takeover", FilterFunc(func(ctx *RequestContext, cfg config.FilterConfig) error {
		if ctx.Downstream == nil {
			return fmt.Errorf("post filter ran without a downstream response")
		}
		body, _ := io.ReadAll(ctx.Downstream.Body)
		ctx.Respond(http.StatusAccepted, strings.ToUpper(string(body)))
		return nil
	}))

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://shop.example.com/user", nil))

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("status = %d", recorder.Code)
	}
	if recorder.Body.String() != "DOWNSTREAM BODY" {
		t.Errorf("body = %q", recorder.Body.String())
	}
}

func TestPipelineDownstreamFailure(t *testing.T) {
	pipeline, _ := newPipeline(t, `{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"preFilters": {"domain": {}, "tenant": {}, "routeMatching": {}},
		"domains": {
			"shop.example.com": {
				"name": "shop",
				"defaultTenantId": "main",
				"tenants": {"main": {"name": "main", "methodRoutes": {"GET": [{
					"name": "catch-all",
					"mapConfiguration": {"url": "http://127.0.0.1:1"}
				}]}}}
			}
		}
	}`)

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://shop.example.com/user", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "downstream") {
		t.Errorf("body = %q", recorder.Body.String())
	}
}

func TestPipelineUnknownDomainFallsThrough(t *testing.T) {
	// Without a domain filter the synthesized default domain has no
	// routes, so every request resolves to the not-found response.
	pipeline, _ := newPipeline(t, `{
		"configurationServerURL": "http://localhost:9010",
		"notificationServerURL": "ws://localhost:9000",
		"domains": {}
	}`)

	recorder := httptest.NewRecorder()
	pipeline.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://anywhere.example.com/user", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}
