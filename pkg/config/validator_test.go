// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	envmocks "github.com/stacklok/toolhive-core/env/mocks"
)

func mockEnv(t *testing.T, values map[string]string) *envmocks.MockReader {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := envmocks.NewMockReader(ctrl)
	m.EXPECT().Getenv(gomock.Any()).DoAndReturn(func(key string) string {
		return values[key]
	}).AnyTimes()
	return m
}

func validConfig() *Config {
	cfg, _ := Parse([]byte(sampleYAML))
	return cfg
}

func TestValidator_Valid(t *testing.T) {
	t.Parallel()

	v := NewValidatorWithEnv(mockEnv(t, map[string]string{
		"GOOGLE_SECRET":  "g-secret",
		"REDIS_PASSWORD": "r-secret",
	}))
	assert.NoError(t, v.Validate(validConfig()))
}

func TestValidator_Problems(t *testing.T) {
	t.Parallel()

	caFile := filepath.Join(t.TempDir(), "missing-ca.pem")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Providers = nil },
			wantMsg: "at least one provider is required",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.HTTP.Timeout = -time.Second },
			wantMsg: "http.timeout",
		},
		{
			name:    "missing ca bundle",
			mutate:  func(c *Config) { c.HTTP.CABundle = caFile },
			wantMsg: "http.ca_bundle",
		},
		{
			name:    "negative jwks ttl",
			mutate:  func(c *Config) { c.Cache.JWKSTTL = -time.Minute },
			wantMsg: "cache.jwks_ttl",
		},
		{
			name:    "verifier too short",
			mutate:  func(c *Config) { c.PKCE.VerifierLength = 42 },
			wantMsg: "pkce.verifier_length must be between 43 and 128, got 42",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.StateStore.Type = "etcd" },
			wantMsg: "state_store.type",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.StateStore.Addr = "" },
			wantMsg: "state_store.addr is required",
		},
		{
			name: "memory with addr",
			mutate: func(c *Config) {
				c.StateStore.Type = StateStoreMemory
				c.StateStore.PasswordEnv = ""
			},
			wantMsg: "state_store.addr is only valid",
		},
		{
			name:    "redis password env unset",
			mutate:  func(c *Config) { c.StateStore.PasswordEnv = "UNSET_VAR" },
			wantMsg: "UNSET_VAR is not set",
		},
		{
			name:    "duplicate names",
			mutate:  func(c *Config) { c.Providers[1].Name = "google" },
			wantMsg: `duplicate provider name "google"`,
		},
		{
			name:    "unknown type",
			mutate:  func(c *Config) { c.Providers[0].Type = "facebook" },
			wantMsg: `unknown provider type "facebook"`,
		},
		{
			name:    "secret env unset",
			mutate:  func(c *Config) { c.Providers[0].ClientSecretEnv = "NOPE" },
			wantMsg: "NOPE is not set",
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.Providers[0].ClientID = "" },
			wantMsg: "client_id is required",
		},
		{
			name:    "relative redirect",
			mutate:  func(c *Config) { c.Providers[2].RedirectURI = "/callback" },
			wantMsg: "redirect_uri",
		},
		{
			name:    "oidc without discovery",
			mutate:  func(c *Config) { c.Providers[2].DiscoveryURL = "" },
			wantMsg: "discovery_url",
		},
		{
			name:    "oidc without name",
			mutate:  func(c *Config) { c.Providers[2].Name = "" },
			wantMsg: "name is required for generic oidc providers",
		},
		{
			name:    "oauth2 with discovery",
			mutate:  func(c *Config) { c.Providers[1].DiscoveryURL = "https://gitlab.example.com" },
			wantMsg: "not allowed for oauth2 providers",
		},
		{
			name:    "oauth2 without endpoints",
			mutate:  func(c *Config) { c.Providers[1].Endpoints = nil },
			wantMsg: "oauth2",
		},
		{
			name:    "endpoints on builtin",
			mutate:  func(c *Config) { c.Providers[0].Endpoints = &EndpointsConfig{} },
			wantMsg: "endpoints are not configurable for google",
		},
		{
			name:    "tenant outside microsoft",
			mutate:  func(c *Config) { c.Providers[0].Tenant = "contoso" },
			wantMsg: "tenant is only valid for microsoft",
		},
		{
			name:    "mapping outside oauth2",
			mutate:  func(c *Config) { c.Providers[2].UserInfoMapping = c.Providers[1].UserInfoMapping },
			wantMsg: "userinfo_mapping is only valid for oauth2",
		},
		{
			name: "github without secret",
			mutate: func(c *Config) {
				c.Providers = append(c.Providers, ProviderConfig{
					Type: "github", ClientID: "gh", RedirectURI: "https://app.example.com/callback/github",
				})
			},
			wantMsg: "a client secret is required",
		},
		{
			name: "apple without secret",
			mutate: func(c *Config) {
				c.Providers = append(c.Providers, ProviderConfig{
					Type: "apple", ClientID: "com.example.web", RedirectURI: "https://app.example.com/callback/apple",
				})
			},
			wantMsg: "invalid_configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			v := NewValidatorWithEnv(mockEnv(t, map[string]string{
				"GOOGLE_SECRET":  "g-secret",
				"REDIS_PASSWORD": "r-secret",
			}))

			err := v.Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidator_AggregatesProblems(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.HTTP.Timeout = -1
	cfg.PKCE.VerifierLength = 500
	cfg.Providers[0].Type = "myspace"

	err := NewValidatorWithEnv(mockEnv(t, nil)).Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"http.timeout", "pkce.verifier_length", "myspace", "REDIS_PASSWORD"} {
		assert.Contains(t, err.Error(), want)
	}

	assert.ErrorIs(t, NewValidator().Validate(nil), ErrInvalidConfig)
}

func TestValidator_CABundlePresent(t *testing.T) {
	t.Parallel()

	ca := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("pem"), 0600))

	cfg := validConfig()
	cfg.HTTP.CABundle = ca
	v := NewValidatorWithEnv(mockEnv(t, map[string]string{"GOOGLE_SECRET": "g", "REDIS_PASSWORD": "r"}))
	assert.NoError(t, v.Validate(cfg))
}
