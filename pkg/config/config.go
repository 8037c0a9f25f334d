// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration of the socialauth CLI and
// server, and turns it into providers, caches and a pending-login store.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/socialauth/pkg/socialauth/flow"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// State store types
const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

// Default values applied to unset fields.
const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultDiscoveryTTL   = time.Hour
	defaultJWKSTTL        = 10 * time.Minute
	defaultVerifierLength = 43
	defaultStateTTL       = 10 * time.Minute
)

// Config is the root of the configuration file.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Cache      CacheConfig      `yaml:"cache"`
	PKCE       PKCEConfig       `yaml:"pkce"`
	StateStore StateStoreConfig `yaml:"state_store"`
	Providers  []ProviderConfig `yaml:"providers"`
}

// HTTPConfig configures the client used for every provider call.
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	CABundle        string        `yaml:"ca_bundle,omitempty"`
	AllowPrivateIPs bool          `yaml:"allow_private_ips,omitempty"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
}

// CacheConfig configures the discovery and JWKS caches.
type CacheConfig struct {
	DiscoveryTTL           time.Duration `yaml:"discovery_ttl,omitempty"`
	JWKSTTL                time.Duration `yaml:"jwks_ttl,omitempty"`
	JWKSMinRefreshInterval time.Duration `yaml:"jwks_min_refresh_interval,omitempty"`
}

// PKCEConfig configures code verifier generation.
type PKCEConfig struct {
	VerifierLength int `yaml:"verifier_length,omitempty"`
}

// StateStoreConfig selects where pending logins are kept.
type StateStoreConfig struct {
	Type     string `yaml:"type,omitempty"`
	Addr     string `yaml:"addr,omitempty"`
	Username string `yaml:"username,omitempty"`
	// PasswordEnv names the environment variable holding the Redis password.
	PasswordEnv string        `yaml:"password_env,omitempty"`
	DB          int           `yaml:"db,omitempty"`
	KeyPrefix   string        `yaml:"key_prefix,omitempty"`
	TTL         time.Duration `yaml:"ttl,omitempty"`
}

// EndpointsConfig lists explicit OAuth 2.0 endpoints.
type EndpointsConfig struct {
	Authorization string `yaml:"authorization"`
	Token         string `yaml:"token"`
	UserInfo      string `yaml:"userinfo,omitempty"`
}

// ProviderConfig configures one identity provider.
type ProviderConfig struct {
	// Name defaults to Type.
	Name         string `yaml:"name,omitempty"`
	Type         string `yaml:"type"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	// ClientSecretEnv names an environment variable holding the client
	// secret. It takes precedence over ClientSecret.
	ClientSecretEnv string   `yaml:"client_secret_env,omitempty"`
	RedirectURI     string   `yaml:"redirect_uri"`
	Scopes          []string `yaml:"scopes,omitempty"`
	DiscoveryURL    string   `yaml:"discovery_url,omitempty"`
	// UseNonce defaults to true for OIDC providers.
	UseNonce         *bool              `yaml:"use_nonce,omitempty"`
	Tenant           string             `yaml:"tenant,omitempty"`
	Endpoints        *EndpointsConfig   `yaml:"endpoints,omitempty"`
	UserInfoMapping  *flow.ClaimMapping `yaml:"userinfo_mapping,omitempty"`
	AdditionalParams map[string]string  `yaml:"additional_params,omitempty"`
}

// ProviderName returns the registered name of the provider.
func (p *ProviderConfig) ProviderName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Type
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	// #nosec G304: path comes from the operator
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown fields, and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default filled in and no providers.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Timeout: defaultHTTPTimeout},
		Cache: CacheConfig{
			DiscoveryTTL: defaultDiscoveryTTL,
			JWKSTTL:      defaultJWKSTTL,
		},
		PKCE:       PKCEConfig{VerifierLength: defaultVerifierLength},
		StateStore: StateStoreConfig{Type: StateStoreMemory, TTL: defaultStateTTL},
	}
}

// ApplyDefaults fills zero values. User-provided values are preserved.
func (c *Config) ApplyDefaults() {
	_ = mergo.Merge(c, Default())
}
