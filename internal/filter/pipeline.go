package filter

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/match"
	"github.com/canmogol/archura-router/internal/metrics"
	"github.com/canmogol/archura-router/internal/proxy"
)

// Pipeline is the root request handler. It drives the filter scopes in
// order, resolves the route, performs or skips the downstream call, and
// relays the response. All pipeline errors are absorbed here; nothing
// escapes to the transport layer unhandled.
type Pipeline struct {
	store    *config.Store
	registry *Registry
	matcher  *match.RouteMatcher
	relay    *proxy.Relay
	metrics  *metrics.Metrics
}

// NewPipeline wires the pipeline from its collaborators. metrics may be
// nil.
func NewPipeline(store *config.Store, registry *Registry, matcher *match.RouteMatcher, relay *proxy.Relay, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:    store,
		registry: registry,
		matcher:  matcher,
		relay:    relay,
		metrics:  m,
	}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := NewRequestContext(w, r, p.store)
	if err := p.run(ctx); err != nil {
		re, ok := errors.AsRouterError(err)
		if !ok {
			re = errors.New(http.StatusInternalServerError, err.Error())
		}
		logging.Error("request pipeline failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", re.Code),
			zap.Error(err),
		)
		p.countRequest(ctx, "error")
		if !ctx.Handled() {
			re.Write(w)
		}
	}
}

func (p *Pipeline) run(ctx *RequestContext) error {
	// pre filters, global to route; any handled state or error stops
	// everything downstream of it
	if err := p.runChain(ctx, ctx.Snapshot.PreFilters); err != nil {
		return err
	}
	if ctx.Handled() {
		p.countRequest(ctx, "handled_pre")
		return nil
	}

	if ctx.Domain == nil {
		ctx.Domain = &config.DomainConfig{Name: config.DefaultDomainName}
	}
	if err := p.runChain(ctx, ctx.Domain.PreFilters); err != nil {
		return err
	}
	if ctx.Handled() {
		p.countRequest(ctx, "handled_pre")
		return nil
	}

	if ctx.Tenant == nil {
		ctx.Tenant = &config.TenantConfig{}
	}
	if err := p.runChain(ctx, ctx.Tenant.PreFilters); err != nil {
		return err
	}
	if ctx.Handled() {
		p.countRequest(ctx, "handled_pre")
		return nil
	}

	if ctx.Route == nil {
		sel := p.matcher.Select(ctx.Match, ctx.Domain, ctx.Tenant)
		ctx.Route = sel.Route
		ctx.Variables = sel.Variables
	}
	if err := p.runChain(ctx, ctx.Route.PreFilters); err != nil {
		return err
	}
	if ctx.Handled() {
		p.countRequest(ctx, "handled_pre")
		return nil
	}

	if pr := ctx.Route.PredefinedResponseConfiguration; pr != nil {
		ctx.Respond(pr.Status, pr.Body)
		p.countRequest(ctx, "predefined")
		return nil
	}

	start := time.Now()
	res, err := p.relay.Do(ctx.Request.Context(), ctx.Route, ctx.Request, ctx.DownstreamTimeout)
	if err != nil {
		return errors.Wrap(err, http.StatusInternalServerError, "Error occurred while calling downstream service.")
	}
	defer res.Body.Close()
	p.observeLatency(ctx, time.Since(start))
	ctx.Downstream = res

	// post filters run in reverse scope order before the body is
	// relayed, so a post filter can still take over the response
	postChains := []config.FilterChain{
		ctx.Route.PostFilters,
		ctx.Tenant.PostFilters,
		ctx.Domain.PostFilters,
		ctx.Snapshot.PostFilters,
	}
	for _, chain := range postChains {
		if err := p.runChain(ctx, chain); err != nil {
			return err
		}
		if ctx.Handled() {
			p.countRequest(ctx, "handled_post")
			return nil
		}
	}

	p.countRequest(ctx, "downstream")
	// The response commits inside WriteResponse; a relay error after
	// that point can only be logged, never answered.
	ctx.MarkHandled()
	return proxy.WriteResponse(ctx.Writer, res)
}

// runChain executes one scope's filters in configured order, stopping
// at the first handled state or error.
func (p *Pipeline) runChain(ctx *RequestContext, chain config.FilterChain) error {
	for _, nf := range chain {
		if ctx.Handled() {
			return nil
		}
		f := p.registry.Find(nf.Config.Type)
		if err := f.Apply(ctx, nf.Config); err != nil {
			if p.metrics != nil {
				p.metrics.FilterRejections.WithLabelValues(nf.Name).Inc()
			}
			return fmt.Errorf("filter %q: %w", nf.Name, err)
		}
	}
	return nil
}

func (p *Pipeline) countRequest(ctx *RequestContext, outcome string) {
	if p.metrics == nil {
		return
	}
	domain := config.DefaultDomainName
	if ctx.Domain != nil && ctx.Domain.Name != "" {
		domain = ctx.Domain.Name
	}
	p.metrics.RequestsTotal.WithLabelValues(domain, outcome).Inc()
}

func (p *Pipeline) observeLatency(ctx *RequestContext, d time.Duration) {
	if p.metrics == nil {
		return
	}
	domain := config.DefaultDomainName
	if ctx.Domain != nil && ctx.Domain.Name != "" {
		domain = ctx.Domain.Name
	}
	p.metrics.DownstreamLatency.WithLabelValues(domain).Observe(d.Seconds())
}
