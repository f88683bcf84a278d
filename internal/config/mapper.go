package config

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ParseGlobal decodes a configuration-server response body into a
// GlobalConfig and compiles its matcher patterns.
func ParseGlobal(data []byte) (*GlobalConfig, error) {
	var cfg GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse global configuration: %w", err)
	}
	if err := cfg.Compile(); err != nil {
		return nil, fmt.Errorf("compile global configuration: %w", err)
	}
	return &cfg, nil
}

// ParseDomain decodes a per-domain response body and compiles its
// matcher patterns.
func ParseDomain(data []byte) (*DomainConfig, error) {
	var cfg DomainConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse domain configuration: %w", err)
	}
	if err := cfg.Compile(); err != nil {
		return nil, fmt.Errorf("compile domain configuration: %w", err)
	}
	return &cfg, nil
}
