package filter

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
	"github.com/canmogol/archura-router/internal/logging"
	"github.com/canmogol/archura-router/internal/match"
)

// HeaderFilter rewrites and validates the cached request headers. Add
// and remove mutate the header view consumed by route matching and the
// downstream relay; validate and mandatory reject the request with 400
// when unsatisfied.
type HeaderFilter struct {
	matcher *match.RouteMatcher
}

func (f *HeaderFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	var headerCfg config.HeaderFilterConfig
	if err := cfg.Decode(&headerCfg); err != nil {
		return errors.Wrap(err, http.StatusInternalServerError, "Invalid header filter configuration.")
	}

	headers := ctx.Match.Headers
	vars := f.requestVariables(ctx)

	for _, op := range headerCfg.Add {
		if op.Name == "" {
			continue
		}
		headers[http.CanonicalHeaderKey(op.Name)] = vars.Apply(op.Value)
	}

	for _, op := range headerCfg.Remove {
		delete(headers, http.CanonicalHeaderKey(op.Name))
	}

	for _, op := range headerCfg.Validate {
		if op.Name == "" || op.Regex == "" {
			continue
		}
		value, present := headers[http.CanonicalHeaderKey(op.Name)]
		if !present {
			continue
		}
		pattern, err := f.matcher.Cache().Get(op.Regex)
		if err != nil {
			logging.Warn("invalid header validation regex", zap.String("regex", op.Regex), zap.Error(err))
			continue
		}
		if !pattern.MatchString(value) {
			return errors.Newf(http.StatusBadRequest,
				"Header '%s' value: '%s' does not match regex: '%s'", op.Name, value, op.Regex)
		}
	}

	for _, op := range headerCfg.Mandatory {
		if op.Name == "" {
			continue
		}
		if _, present := headers[http.CanonicalHeaderKey(op.Name)]; !present {
			return errors.Newf(http.StatusBadRequest,
				"Header '%s' is mandatory but not present in request.", op.Name)
		}
	}
	return nil
}

// requestVariables exposes the request-derived variables to add
// operations. After route matching the committed route namespace is
// used; before it, a minimal namespace is built from the request.
func (f *HeaderFilter) requestVariables(ctx *RequestContext) *match.Namespace {
	if ctx.Variables != nil && ctx.Variables.Len() > 0 {
		return ctx.Variables
	}
	ns := match.NewNamespace()
	ns.Set("request.path", ctx.Match.Path)
	ns.Set("request.method", ctx.Match.Method)
	ns.Set("request.query", ctx.Match.RawQuery)
	for name, value := range ctx.Match.Headers {
		ns.Set("request.header."+name, value)
	}
	if ctx.Domain != nil {
		ns.Set("request.domain.name", ctx.Domain.Name)
	}
	if ctx.Tenant != nil {
		ns.Set("request.tenant.name", ctx.Tenant.Name)
	}
	return ns
}
