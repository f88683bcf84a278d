package filter

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
	"github.com/canmogol/archura-router/internal/logging"
)

// DomainFilter resolves the inbound Host header to a domain
// configuration, fetching unseen hosts from the configuration server
// on demand and caching them in the store.
type DomainFilter struct {
	store   *config.Store
	fetcher DomainFetcher
}

func (f *DomainFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	host := ctx.Request.Host
	if host == "" {
		return errors.New(http.StatusBadRequest, "Host header is missing")
	}

	domain, ok := f.store.Domain(host)
	if !ok {
		domain = f.fetchDomain(ctx, host)
		if domain == nil {
			return errors.Newf(http.StatusNotFound, "Domain configuration not found for this host: '%s'", host)
		}
		f.store.UpsertDomain(host, domain)
	}

	ctx.Domain = domain
	logging.Debug("current domain resolved", zap.String("domain", domain.Name))
	return nil
}

func (f *DomainFilter) fetchDomain(ctx *RequestContext, host string) *config.DomainConfig {
	if f.fetcher == nil {
		return nil
	}
	domain, err := f.fetcher.FetchDomain(ctx.Request.Context(), host)
	if err != nil {
		logging.Error("domain configuration fetch failed",
			zap.String("host", host), zap.Error(err))
		return nil
	}
	return domain
}
