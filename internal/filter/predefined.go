package filter

import (
	"net/http"
	"strconv"

	"github.com/canmogol/archura-router/internal/config"
)

// PredefinedResponseFilter answers the request directly from its
// configured status and body parameters, short-circuiting the rest of
// the pipeline.
type PredefinedResponseFilter struct{}

func (f *PredefinedResponseFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	status := http.StatusOK
	if raw, ok := cfg.Parameters["status"]; ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			status = parsed
		}
	}
	ctx.Respond(status, cfg.Parameters["body"])
	return nil
}
