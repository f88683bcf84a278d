package filter

import (
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/match"
)

// TenantFilter resolves the current tenant within the resolved domain.
// The tenant id is extracted from the request per the filter's extract
// configuration, probing headers, then the path, then query
// parameters; the domain's default tenant id is the fallback.
type TenantFilter struct {
	matcher *match.RouteMatcher
}

func (f *TenantFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	if ctx.Domain == nil || ctx.Domain.Name == "" || ctx.Domain.Name == config.DefaultDomainName {
		return errors.New(http.StatusNotFound, "No domain configuration found for request.")
	}

	var tenantCfg config.TenantFilterConfig
	if err := cfg.Decode(&tenantCfg); err != nil {
		return errors.Wrap(err, http.StatusInternalServerError, "Invalid tenant filter configuration.")
	}

	tenantID := f.findTenantID(ctx, tenantCfg.ExtractConfiguration)
	if tenantID == "" {
		tenantID = ctx.Domain.DefaultTenantID
	}
	if tenantID == "" {
		return errors.New(http.StatusNotFound, "No tenant found in request.")
	}

	tenant, ok := ctx.Domain.Tenants[tenantID]
	if !ok {
		return errors.Newf(http.StatusNotFound, "No tenant configuration found for tenantId: '%s'", tenantID)
	}
	ctx.Tenant = tenant
	logging.Debug("current tenant resolved", zap.String("tenant", tenant.Name))
	return nil
}

func (f *TenantFilter) findTenantID(ctx *RequestContext, ec *config.ExtractConfig) string {
	if ec == nil {
		return ""
	}
	for _, hc := range ec.HeaderConfiguration {
		value, present := ctx.Match.Header(hc.Name)
		if !present {
			continue
		}
		if id := f.extract(hc.Pattern(), hc.Regex, hc.CaptureGroups, value); id != "" {
			return id
		}
	}
	for _, pc := range ec.PathConfiguration {
		if id := f.extract(pc.Pattern(), pc.Regex, pc.CaptureGroups, ctx.Match.Path); id != "" {
			return id
		}
	}
	for _, qc := range ec.QueryConfiguration {
		values, present := ctx.Match.Query[qc.Name]
		if !present || len(values) == 0 {
			continue
		}
		if id := f.extract(qc.Pattern(), qc.Regex, qc.CaptureGroups, values[0]); id != "" {
			return id
		}
	}
	return ""
}

func (f *TenantFilter) extract(compiled *regexp.Regexp, regex string, captureGroups []string, input string) string {
	pattern := compiled
	if pattern == nil {
		var err error
		pattern, err = f.matcher.Cache().Get(regex)
		if err != nil {
			logging.Warn("invalid tenant extraction regex", zap.String("regex", regex), zap.Error(err))
			return ""
		}
	}
	vars, ok := match.Evaluate(pattern, captureGroups, "tenant", "tenant", input)
	if !ok {
		return ""
	}
	if len(captureGroups) == 0 {
		return vars["tenant"]
	}
	for _, group := range captureGroups {
		if v, present := vars["tenant."+group]; present {
			return v
		}
	}
	return ""
}
