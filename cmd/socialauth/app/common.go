// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/socialauth/pkg/config"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/providers"
	"github.com/stacklok/socialauth/pkg/versions"
)

// loadConfig loads and validates the file named by --config.
func loadConfig() (*config.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil, errors.New("no configuration file specified, use --config flag")
	}

	logger.Debugw("Loading configuration", "path", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// newHTTPClient builds the outbound client, defaulting the User-Agent to
// the binary version.
func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	httpCfg := cfg.HTTP
	if httpCfg.UserAgent == "" {
		httpCfg.UserAgent = versions.UserAgent()
	}
	client, err := httpCfg.NewHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, nil
}

// loadProvider loads the configuration and builds one provider.
func loadProvider(name string) (socialauth.OAuthProvider, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	p, err := cfg.BuildProvider(name, &env.OSReader{}, cfg.ProviderOptions(client)...)
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

// usesNonce mirrors the login manager's decision for a provider.
func usesNonce(p socialauth.OAuthProvider) bool {
	if n, ok := p.(interface{ UsesNonce() bool }); ok {
		return n.UsesNonce()
	}
	return p.IsOIDC()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// registryOf returns every configured provider, optionally transformed.
func registryOf(
	cfg *config.Config,
	client *http.Client,
	wrap func(socialauth.OAuthProvider) (socialauth.OAuthProvider, error),
) (*providers.Registry, error) {
	built, err := cfg.BuildRegistry(&env.OSReader{}, cfg.ProviderOptions(client)...)
	if err != nil {
		return nil, err
	}
	if wrap == nil {
		return built, nil
	}
	registry, err := providers.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, name := range built.Names() {
		p, _ := built.Get(name)
		wrapped, err := wrap(p)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(wrapped); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
