// Package proxy builds the downstream request from a matched route and
// relays the downstream response to the client.
package proxy

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/canmogol/archura-router/internal/config"
)

// DefaultTimeout bounds a downstream call when neither the settings
// nor a filter provide an override.
const DefaultTimeout = 10 * time.Second

// bodyMethods are the only methods whose request body is relayed
// downstream.
var bodyMethods = map[string]struct{}{
	http.MethodPost:  {},
	http.MethodPut:   {},
	http.MethodPatch: {},
}

// Relay performs downstream calls for matched routes.
type Relay struct {
	client         *http.Client
	defaultTimeout time.Duration
}

// NewRelay creates a relay. A non-positive timeout falls back to the
// default.
func NewRelay(defaultTimeout time.Duration) *Relay {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Relay{
		// Timeouts are applied per request through the context so a
		// filter can override them; the client itself stays unbounded.
		// Redirects are relayed to the client untouched, never followed
		// here: the Location value is only meaningful to the caller.
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		defaultTimeout: defaultTimeout,
	}
}

// BuildRequest turns the route's substituted map configuration into the
// downstream request. The method is remapped only when the method map
// names the original method; headers come from the substituted header
// set minus the restricted ones; the body is streamed through for
// POST, PUT, and PATCH only.
func (rl *Relay) BuildRequest(ctx context.Context, route *config.RouteConfig, orig *http.Request) (*http.Request, error) {
	mc := route.MapConfiguration
	if mc == nil || mc.URL == "" {
		return nil, fmt.Errorf("route %q has no downstream URL", route.Name)
	}

	method := orig.Method
	if mapped, ok := mc.MethodMap[orig.Method]; ok {
		method = mapped
	}

	var body io.Reader
	if _, ok := bodyMethods[orig.Method]; ok {
		body = orig.Body
	}

	req, err := http.NewRequestWithContext(ctx, method, mc.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build downstream request for route %q: %w", route.Name, err)
	}
	for name, value := range mc.Headers {
		if config.IsRestrictedHeader(name) {
			continue
		}
		req.Header.Set(name, value)
	}
	return req, nil
}

// Do builds and executes the downstream call. The timeout override
// applies when positive; otherwise the relay default. The deadline is
// parented on the inbound request context, so a client disconnect
// cancels the in-flight downstream call.
func (rl *Relay) Do(parent context.Context, route *config.RouteConfig, orig *http.Request, override time.Duration) (*http.Response, error) {
	timeout := rl.defaultTimeout
	if override > 0 {
		timeout = override
	}
	ctx, cancel := context.WithTimeout(parent, timeout)

	req, err := rl.BuildRequest(ctx, route, orig)
	if err != nil {
		cancel()
		return nil, err
	}
	res, err := rl.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("downstream call for route %q: %w", route.Name, err)
	}
	res.Body = &cancelBody{ReadCloser: res.Body, cancel: cancel}
	return res, nil
}

// cancelBody releases the call's context when the response body is
// closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// WriteResponse relays the downstream response to the client.
// Restricted headers are never copied; the Content-Type charset is
// normalized to UTF-8 when the downstream omits one; the body is
// streamed, not buffered.
func WriteResponse(w http.ResponseWriter, res *http.Response) error {
	for name, values := range res.Header {
		if config.IsRestrictedHeader(name) || len(values) == 0 {
			continue
		}
		w.Header().Set(name, values[0])
	}
	w.Header().Set("Content-Type", normalizeContentType(res.Header.Get("Content-Type")))

	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		// headers are already out; all that is left is to log upstream
		return fmt.Errorf("relay downstream body: %w", err)
	}
	return nil
}

// normalizeContentType applies the downstream charset when present and
// defaults to UTF-8 otherwise.
func normalizeContentType(contentType string) string {
	if contentType == "" {
		return "text/plain; charset=utf-8"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	if _, ok := params["charset"]; !ok {
		params["charset"] = "utf-8"
	}
	return mime.FormatMediaType(mediaType, params)
}
