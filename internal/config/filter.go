package config

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Built-in filter type discriminators. An unrecognized type is not a
// decode error; it resolves to the no-op unknown filter at run time.
const (
	FilterTypeDomain             = "domain"
	FilterTypeTenant             = "tenant"
	FilterTypeRouteMatching      = "routeMatching"
	FilterTypeHeader             = "header"
	FilterTypeBlackList          = "blackList"
	FilterTypeAuthentication     = "authentication"
	FilterTypePredefinedResponse = "predefinedResponse"
)

// NamedFilter pairs a filter's configured name with its configuration.
type NamedFilter struct {
	Name   string
	Config FilterConfig
}

// FilterChain is an ordered list of filters for one scope. It decodes
// from a JSON object whose key declaration order is the execution
// order, which a plain map would lose.
type FilterChain []NamedFilter

// UnmarshalJSON reads the object token by token so the declared key
// order survives decoding.
func (fc *FilterChain) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("filter chain: expected JSON object, got %v", tok)
	}
	var chain FilterChain
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("filter chain: expected string key, got %v", keyTok)
		}
		var cfg FilterConfig
		if err := dec.Decode(&cfg); err != nil {
			return fmt.Errorf("filter chain: filter %q: %w", name, err)
		}
		if cfg.Type == "" {
			cfg.Type = name
		}
		chain = append(chain, NamedFilter{Name: name, Config: cfg})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fc = chain
	return nil
}

// MarshalJSON writes the chain back as an object in execution order.
func (fc FilterChain) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nf := range fc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nf.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(nf.Config)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Find returns the configuration of the first filter with the given
// name, if present.
func (fc FilterChain) Find(name string) (FilterConfig, bool) {
	for _, nf := range fc {
		if nf.Name == name {
			return nf.Config, true
		}
	}
	return FilterConfig{}, false
}

// FilterConfig is the polymorphic filter configuration. Type selects
// the concrete variant; the raw JSON is retained so Decode can
// materialize the typed configuration on demand.
type FilterConfig struct {
	Type       string            `json:"type,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`

	raw json.RawMessage
}

func (c *FilterConfig) UnmarshalJSON(data []byte) error {
	type plain struct {
		Type       string            `json:"type"`
		Parameters map[string]string `json:"parameters"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	c.Type = p.Type
	c.Parameters = p.Parameters
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (c FilterConfig) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	type plain struct {
		Type       string            `json:"type,omitempty"`
		Parameters map[string]string `json:"parameters,omitempty"`
	}
	return json.Marshal(plain{Type: c.Type, Parameters: c.Parameters})
}

// Decode unmarshals the retained raw configuration into a typed
// variant such as *TenantFilterConfig or *HeaderFilterConfig.
func (c FilterConfig) Decode(v any) error {
	if len(c.raw) == 0 {
		return nil
	}
	return json.Unmarshal(c.raw, v)
}

// TenantFilterConfig drives tenant resolution: the extract
// configuration points at where the tenant id lives in the request.
type TenantFilterConfig struct {
	ExtractConfiguration *ExtractConfig `json:"extractConfiguration"`
}

// RouteMatchingFilterConfig carries an inline route table overriding
// the tenant/domain tables for the scope it is configured at.
type RouteMatchingFilterConfig struct {
	MethodRoutes map[string][]*RouteConfig `json:"methodRoutes"`
}

// BlackListFilterConfig lists denied client IPs, globally and per
// domain.
type BlackListFilterConfig struct {
	IPs       []string            `json:"ips"`
	DomainIPs map[string][]string `json:"domainIps"`
}

// HeaderOperation is one entry of a header filter's operation lists.
type HeaderOperation struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Regex string `json:"regex"`
}

// HeaderFilterConfig adds, removes, validates, and requires request
// headers.
type HeaderFilterConfig struct {
	Add       []HeaderOperation `json:"add"`
	Remove    []HeaderOperation `json:"remove"`
	Validate  []HeaderOperation `json:"validate"`
	Mandatory []HeaderOperation `json:"mandatory"`
}

// AuthenticationFilterConfig selects JWT verification (using the
// domain's certificate material) or a header-regex check.
type AuthenticationFilterConfig struct {
	JWT                 bool          `json:"jwt"`
	HeaderConfiguration *HeaderConfig `json:"headerConfiguration"`
	Routes              []string      `json:"routes"`
}
