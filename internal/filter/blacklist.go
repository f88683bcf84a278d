package filter

import (
	"net/http"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
)

// BlackListFilter rejects requests from denied client addresses, using
// the global list and the per-domain list of its configuration.
type BlackListFilter struct{}

func (f *BlackListFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	var blackListCfg config.BlackListFilterConfig
	if err := cfg.Decode(&blackListCfg); err != nil {
		return errors.Wrap(err, http.StatusInternalServerError, "Invalid black list filter configuration.")
	}

	denied := blackListCfg.IPs
	if ctx.Domain != nil {
		denied = append(denied, blackListCfg.DomainIPs[ctx.Domain.Name]...)
	}
	if len(denied) == 0 {
		return nil
	}

	clientIP := ctx.ClientIP()
	for _, ip := range denied {
		if ip == clientIP {
			return errors.New(http.StatusForbidden, "Client IP is blacklisted.")
		}
	}
	return nil
}
