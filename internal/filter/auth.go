package filter

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/errors"
	"github.com/canmogol/archura-router/internal/match"
)

// AuthenticationFilter guards routes with either a JWT signature check
// against the domain's certificate material or a header-regex check.
// An empty routes list disables the filter; a populated list limits it
// to the named routes.
type AuthenticationFilter struct {
	matcher *match.RouteMatcher
}

func (f *AuthenticationFilter) Apply(ctx *RequestContext, cfg config.FilterConfig) error {
	if ctx.Domain == nil {
		return errors.New(http.StatusNotFound, "No domain configuration found for request.")
	}
	if ctx.Route == nil {
		return errors.New(http.StatusNotFound, "No route configuration found for request.")
	}

	var authCfg config.AuthenticationFilterConfig
	if err := cfg.Decode(&authCfg); err != nil {
		return errors.Wrap(err, http.StatusInternalServerError, "Invalid authentication filter configuration.")
	}
	if len(authCfg.Routes) == 0 {
		return nil
	}
	if !routeListed(authCfg.Routes, ctx.Route.Name) {
		return nil
	}

	if authCfg.JWT {
		authorization, _ := ctx.Match.Header("Authorization")
		return f.validateJWT(ctx.Domain, authorization)
	}
	if authCfg.HeaderConfiguration != nil {
		return f.validateHeader(ctx, authCfg.HeaderConfiguration)
	}
	return nil
}

func routeListed(routes []string, name string) bool {
	for _, r := range routes {
		if r == name {
			return true
		}
	}
	return false
}

func (f *AuthenticationFilter) validateJWT(domain *config.DomainConfig, authorization string) error {
	if domain.PublicCertificate == "" {
		return errors.New(http.StatusInternalServerError, "No public certificate found for domain.")
	}
	if domain.PublicCertificateType == "" {
		return errors.New(http.StatusInternalServerError, "No public certificate type found for domain.")
	}
	if authorization == "" {
		return errors.New(http.StatusUnauthorized, "No authorization header found.")
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return errors.New(http.StatusUnauthorized, "Invalid authorization header.")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		return []byte(domain.PublicCertificate), nil
	}, jwt.WithValidMethods([]string{domain.PublicCertificateType}))
	if err != nil || !token.Valid {
		return errors.New(http.StatusUnauthorized, "Invalid JWT Signature.")
	}
	return nil
}

func (f *AuthenticationFilter) validateHeader(ctx *RequestContext, hc *config.HeaderConfig) error {
	value, present := ctx.Match.Header(hc.Name)
	if !present || value == "" {
		return errors.Newf(http.StatusUnauthorized, "Header '%s' not found for request.", hc.Name)
	}
	pattern := hc.Pattern()
	if pattern == nil {
		var err error
		pattern, err = f.matcher.Cache().Get(hc.Regex)
		if err != nil {
			return errors.Wrap(err, http.StatusInternalServerError, "Invalid authentication header regex.")
		}
	}
	if _, ok := match.Evaluate(pattern, hc.CaptureGroups, "auth", "auth", value); !ok {
		return errors.Newf(http.StatusUnauthorized, "Header '%s' value does not match the regex.", hc.Name)
	}
	return nil
}
