// Package filter implements the request pipeline: the filter contract,
// the per-request context, the registry of built-in and host-registered
// filters, and the chain executor.
package filter

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/match"
)

// clientIPHeaders is the probe order for the original client address
// behind proxies.
var clientIPHeaders = []string{
	"X-Forwarded-For",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_X_FORWARDED_FOR",
	"HTTP_X_FORWARDED",
	"HTTP_X_CLUSTER_CLIENT_IP",
	"HTTP_CLIENT_IP",
	"HTTP_FORWARDED_FOR",
	"HTTP_FORWARDED",
	"HTTP_VIA",
	"REMOTE_ADDR",
}

// Filter is a named, configuration-driven unit of pre/post request
// processing. A filter mutates the context, may finalize the response
// through it, or rejects the request by returning an error; a returned
// *errors.RouterError carries the client-facing status and message.
type Filter interface {
	Apply(ctx *RequestContext, cfg config.FilterConfig) error
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ctx *RequestContext, cfg config.FilterConfig) error

func (f FilterFunc) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	return f(ctx, cfg)
}

// RequestContext carries the state of one request through the pipeline.
// It lives on a single goroutine and is discarded at request end.
type RequestContext struct {
	Request *http.Request
	Writer  http.ResponseWriter

	// Match is the request view consumed by matchers: path, query,
	// and the non-restricted headers, built once per request.
	Match *match.Request

	// Snapshot is the configuration tree this request runs against.
	Snapshot *config.GlobalConfig
	Store    *config.Store

	Domain *config.DomainConfig
	Tenant *config.TenantConfig
	Route  *config.RouteConfig

	Variables *match.Namespace

	// Downstream holds the relayed response between the downstream
	// call and the post-filter stages.
	Downstream *http.Response

	// DownstreamTimeout overrides the default downstream timeout when
	// set by a filter.
	DownstreamTimeout time.Duration

	clientIP string
	handled  bool
}

// NewRequestContext builds the context for one inbound request.
func NewRequestContext(w http.ResponseWriter, r *http.Request, store *config.Store) *RequestContext {
	return &RequestContext{
		Request:   r,
		Writer:    w,
		Match:     match.NewRequest(r),
		Snapshot:  store.Snapshot(),
		Store:     store,
		Variables: match.NewNamespace(),
	}
}

// Handled reports whether the response has been finalized; once true,
// no further filter runs and the downstream call is skipped.
func (c *RequestContext) Handled() bool {
	return c.handled
}

// MarkHandled finalizes the pipeline without writing anything more.
func (c *RequestContext) MarkHandled() {
	c.handled = true
}

// Respond writes a plain-text response and marks the request handled.
func (c *RequestContext) Respond(status int, body string) {
	payload := []byte(body)
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	c.Writer.WriteHeader(status)
	c.Writer.Write(payload)
	c.handled = true
}

// ClientIP resolves the original client address, probing the known
// proxy headers in order before falling back to the connection's
// remote address. The result is cached for the request.
func (c *RequestContext) ClientIP() string {
	if c.clientIP != "" {
		return c.clientIP
	}
	for _, header := range clientIPHeaders {
		value, ok := c.Match.Header(header)
		if !ok || value == "" || value == "unknown" {
			continue
		}
		c.clientIP = strings.TrimSpace(strings.Split(value, ",")[0])
		return c.clientIP
	}
	host := c.Request.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	c.clientIP = host
	return c.clientIP
}
