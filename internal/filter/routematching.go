package filter

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/match"
)

// RouteMatchingFilter selects the current route. With an inline route
// table in its configuration that table is consulted first; otherwise
// the tenant and domain tables apply in the usual fallback order.
type RouteMatchingFilter struct {
	matcher *match.RouteMatcher
}

func (f *RouteMatchingFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	if ctx.Domain == nil || ctx.Tenant == nil {
		return errors.New(http.StatusNotFound, "No domain or tenant configuration found for request.")
	}

	var matchCfg config.RouteMatchingFilterConfig
	if err := cfg.Decode(&matchCfg); err != nil {
		return errors.Wrap(err, http.StatusInternalServerError, "Invalid route matching filter configuration.")
	}

	tenant := ctx.Tenant
	if len(matchCfg.MethodRoutes) > 0 {
		tenant = &config.TenantConfig{
			Name:         ctx.Tenant.Name,
			MethodRoutes: matchCfg.MethodRoutes,
		}
	}

	sel := f.matcher.Select(ctx.Match, ctx.Domain, tenant)
	ctx.Route = sel.Route
	ctx.Variables = sel.Variables
	logging.Debug("current route resolved", zap.String("route", sel.Route.Name))
	return nil
}
