package filter

import (
	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/logging"
)

// UnknownFilter is the fallback for unresolved filter types. It logs
// and does nothing, so a misconfigured chain keeps serving.
type UnknownFilter struct{}

func (f *UnknownFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	logging.Debug("unknown filter type, skipping", zap.String("type", cfg.Type))
	return nil
}
