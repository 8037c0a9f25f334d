// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
	"github.com/stacklok/socialauth/pkg/socialauth/providers"
)

// Validator checks a Config without contacting any provider.
type Validator struct {
	env env.Reader
}

// NewValidator creates a Validator that reads the process environment.
func NewValidator() *Validator {
	return NewValidatorWithEnv(&env.OSReader{})
}

// NewValidatorWithEnv creates a Validator using envReader for secrets.
func NewValidatorWithEnv(envReader env.Reader) *Validator {
	return &Validator{env: envReader}
}

// Validate reports every problem in cfg as one error wrapping ErrInvalidConfig.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidConfig)
	}

	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	add(validateHTTP(&cfg.HTTP))
	add(validateCache(&cfg.Cache))
	add(validatePKCE(&cfg.PKCE))
	add(v.validateStateStore(&cfg.StateStore))

	if len(cfg.Providers) == 0 {
		add(errors.New("at least one provider is required"))
	}
	seen := make(map[string]bool, len(cfg.Providers))
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		name := p.ProviderName()
		if name != "" && seen[name] {
			add(fmt.Errorf("providers[%d]: duplicate provider name %q", i, name))
		}
		seen[name] = true
		if err := v.validateProvider(p); err != nil {
			add(fmt.Errorf("providers[%d] (%s): %w", i, name, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateHTTP(h *HTTPConfig) error {
	if h.Timeout < 0 {
		return errors.New("http.timeout must not be negative")
	}
	if h.CABundle != "" {
		if _, err := os.Stat(h.CABundle); err != nil {
			return fmt.Errorf("http.ca_bundle: %w", err)
		}
	}
	return nil
}

func validateCache(c *CacheConfig) error {
	var errs []error
	if c.DiscoveryTTL < 0 {
		errs = append(errs, errors.New("cache.discovery_ttl must not be negative"))
	}
	if c.JWKSTTL < 0 {
		errs = append(errs, errors.New("cache.jwks_ttl must not be negative"))
	}
	if c.JWKSMinRefreshInterval < 0 {
		errs = append(errs, errors.New("cache.jwks_min_refresh_interval must not be negative"))
	}
	return errors.Join(errs...)
}

func validatePKCE(p *PKCEConfig) error {
	if p.VerifierLength < pkce.MinVerifierLength || p.VerifierLength > pkce.MaxVerifierLength {
		return fmt.Errorf("pkce.verifier_length must be between %d and %d, got %d",
			pkce.MinVerifierLength, pkce.MaxVerifierLength, p.VerifierLength)
	}
	return nil
}

func (v *Validator) validateStateStore(s *StateStoreConfig) error {
	switch s.Type {
	case StateStoreMemory:
		if s.Addr != "" {
			return errors.New("state_store.addr is only valid for the redis store")
		}
	case StateStoreRedis:
		if s.Addr == "" {
			return errors.New("state_store.addr is required for the redis store")
		}
		if s.PasswordEnv != "" && v.env.Getenv(s.PasswordEnv) == "" {
			return fmt.Errorf("state_store.password_env: environment variable %s is not set", s.PasswordEnv)
		}
	default:
		return fmt.Errorf("state_store.type must be %q or %q, got %q", StateStoreMemory, StateStoreRedis, s.Type)
	}
	if s.TTL < 0 {
		return errors.New("state_store.ttl must not be negative")
	}
	return nil
}

func (v *Validator) validateProvider(p *ProviderConfig) error {
	typ := providers.Type(p.Type)
	switch typ {
	case providers.TypeOIDC:
		if p.Name == "" {
			return errors.New("name is required for generic oidc providers")
		}
		if p.Endpoints != nil {
			return errors.New("endpoints are not allowed for oidc providers, use discovery_url")
		}
	case providers.TypeOAuth2:
		if p.Name == "" {
			return errors.New("name is required for generic oauth2 providers")
		}
		if p.DiscoveryURL != "" || p.UseNonce != nil {
			return errors.New("discovery_url and use_nonce are not allowed for oauth2 providers")
		}
	case providers.TypeGoogle, providers.TypeMicrosoft, providers.TypeApple, providers.TypeGitHub:
		if p.Endpoints != nil {
			return fmt.Errorf("endpoints are not configurable for %s", typ)
		}
	default:
		return fmt.Errorf("unknown provider type %q", p.Type)
	}
	if p.Tenant != "" && typ != providers.TypeMicrosoft {
		return errors.New("tenant is only valid for microsoft providers")
	}
	if p.UserInfoMapping != nil && typ != providers.TypeOAuth2 {
		return errors.New("userinfo_mapping is only valid for oauth2 providers")
	}

	spec, err := p.Spec(v.env)
	if err != nil {
		return err
	}
	if typ == providers.TypeGitHub && spec.Config.ClientSecret == "" {
		return errors.New("a client secret is required")
	}
	// Construction validates without network access.
	_, err = providers.New(spec)
	return err
}
