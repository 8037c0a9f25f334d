// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/socialauth/pkg/socialauth/flow"
)

const sampleYAML = `
http:
  timeout: 15s
  user_agent: socialauth-test/1.0
cache:
  jwks_ttl: 2m
pkce:
  verifier_length: 64
state_store:
  type: redis
  addr: 127.0.0.1:6379
  password_env: REDIS_PASSWORD
  key_prefix: "app:login:"
providers:
  - type: google
    client_id: google-client
    client_secret_env: GOOGLE_SECRET
    redirect_uri: https://app.example.com/callback/google
    additional_params:
      prompt: select_account
  - name: gitlab
    type: oauth2
    client_id: gitlab-client
    client_secret: shh
    redirect_uri: https://app.example.com/callback/gitlab
    scopes: [read_user]
    endpoints:
      authorization: https://gitlab.example.com/oauth/authorize
      token: https://gitlab.example.com/oauth/token
      userinfo: https://gitlab.example.com/api/v4/user
    userinfo_mapping:
      subject: id
      preferred_username: username
  - name: corp
    type: oidc
    client_id: corp-client
    redirect_uri: https://app.example.com/callback/corp
    discovery_url: https://sso.example.com/.well-known/openid-configuration
    use_nonce: false
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "socialauth-test/1.0", cfg.HTTP.UserAgent)
	assert.Equal(t, 2*time.Minute, cfg.Cache.JWKSTTL)
	// defaults fill what the file leaves out
	assert.Equal(t, time.Hour, cfg.Cache.DiscoveryTTL)
	// kid-miss refetches are unlimited unless configured
	assert.Zero(t, cfg.Cache.JWKSMinRefreshInterval)
	assert.Equal(t, 10*time.Minute, cfg.StateStore.TTL)
	assert.Equal(t, 64, cfg.PKCE.VerifierLength)

	assert.Equal(t, StateStoreRedis, cfg.StateStore.Type)
	assert.Equal(t, "app:login:", cfg.StateStore.KeyPrefix)

	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "google", cfg.Providers[0].ProviderName())
	assert.Equal(t, map[string]string{"prompt": "select_account"}, cfg.Providers[0].AdditionalParams)
	assert.Equal(t, &flow.ClaimMapping{Subject: "id", PreferredUsername: "username"}, cfg.Providers[1].UserInfoMapping)
	require.NotNil(t, cfg.Providers[2].UseNonce)
	assert.False(t, *cfg.Providers[2].UseNonce)
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "providers: []\n"} {
		cfg, err := Parse([]byte(input))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"unknown top-level field", "listen: :8080\n"},
		{"unknown provider field", "providers:\n  - type: google\n    secret: x\n"},
		{"bad duration", "http:\n  timeout: soon\n"},
		{"wrong shape", "providers: google\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "socialauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Providers, 3)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nope: 1\n"), 0600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "bad.yaml")
}
