// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/flow"
	"github.com/stacklok/socialauth/pkg/socialauth/login"
	"github.com/stacklok/socialauth/pkg/socialauth/providers"
)

func TestProviderConfig_Spec(t *testing.T) {
	t.Parallel()

	noNonce := false
	tests := []struct {
		name    string
		in      ProviderConfig
		env     map[string]string
		want    providers.ProviderSpec
		wantErr string
	}{
		{
			name: "builtin keeps defaults to the constructor",
			in: ProviderConfig{
				Type: "google", ClientID: "c", ClientSecretEnv: "G", RedirectURI: "https://app/cb",
				AdditionalParams: map[string]string{"hd": "example.com"},
			},
			env: map[string]string{"G": "from-env"},
			want: providers.ProviderSpec{
				Type:             providers.TypeGoogle,
				Config:           socialauth.ProviderConfig{ClientID: "c", ClientSecret: "from-env", RedirectURI: "https://app/cb"},
				AdditionalParams: map[string]string{"hd": "example.com"},
			},
		},
		{
			name: "microsoft tenant and nonce override",
			in: ProviderConfig{
				Type: "microsoft", ClientID: "c", RedirectURI: "https://app/cb", Tenant: "contoso", UseNonce: &noNonce,
			},
			want: providers.ProviderSpec{
				Type: providers.TypeMicrosoft,
				Config: socialauth.ProviderConfig{
					ClientID: "c", RedirectURI: "https://app/cb",
					OIDC: &socialauth.OIDCConfig{},
				},
				Tenant: "contoso",
			},
		},
		{
			name: "generic oidc uses nonce by default",
			in: ProviderConfig{
				Name: "corp", Type: "oidc", ClientID: "c", ClientSecret: "inline", RedirectURI: "https://app/cb",
				Scopes: []string{"openid"}, DiscoveryURL: "https://sso/.well-known/openid-configuration",
			},
			want: providers.ProviderSpec{
				Name: "corp",
				Type: providers.TypeOIDC,
				Config: socialauth.ProviderConfig{
					ClientID: "c", ClientSecret: "inline", RedirectURI: "https://app/cb", Scopes: []string{"openid"},
					OIDC: &socialauth.OIDCConfig{DiscoveryURL: "https://sso/.well-known/openid-configuration", UseNonce: true},
				},
			},
		},
		{
			name: "generic oauth2 endpoints and mapping",
			in: ProviderConfig{
				Name: "gitlab", Type: "oauth2", ClientID: "c", RedirectURI: "https://app/cb",
				Endpoints:       &EndpointsConfig{Authorization: "https://gl/a", Token: "https://gl/t", UserInfo: "https://gl/u"},
				UserInfoMapping: &flow.ClaimMapping{Subject: "id"},
			},
			want: providers.ProviderSpec{
				Name: "gitlab",
				Type: providers.TypeOAuth2,
				Config: socialauth.ProviderConfig{
					ClientID: "c", RedirectURI: "https://app/cb",
					OAuth2: &socialauth.OAuth2Config{
						AuthorizationEndpoint: "https://gl/a", TokenEndpoint: "https://gl/t", UserInfoEndpoint: "https://gl/u",
					},
				},
				UserInfoMapping: flow.ClaimMapping{Subject: "id"},
			},
		},
		{
			name:    "secret env missing",
			in:      ProviderConfig{Type: "github", ClientSecretEnv: "GH"},
			wantErr: "GH is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.in.Spec(mockEnv(t, tt.env))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Spec() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfig_BuildRegistry(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	envReader := mockEnv(t, map[string]string{"GOOGLE_SECRET": "g"})

	client, err := cfg.HTTP.NewHTTPClient()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.Timeout)

	registry, err := cfg.BuildRegistry(envReader, cfg.ProviderOptions(client)...)
	require.NoError(t, err)
	assert.Equal(t, []string{"corp", "gitlab", "google"}, registry.Names())

	corp, ok := registry.Get("corp")
	require.True(t, ok)
	assert.True(t, corp.IsOIDC())

	_, err = cfg.BuildProvider("nope", envReader)
	assert.ErrorContains(t, err, `provider "nope" is not configured`)

	cfg.Providers[0].ClientSecretEnv = "MISSING"
	_, err = cfg.BuildRegistry(envReader)
	assert.ErrorContains(t, err, "provider google")
}

func TestConfig_PKCEGenerator(t *testing.T) {
	t.Parallel()

	gen, err := validConfig().PKCEGenerator()
	require.NoError(t, err)
	assert.Equal(t, 64, gen.Length())
}

func TestStateStoreConfig_Open(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		s, err := (&StateStoreConfig{Type: StateStoreMemory}).OpenStateStore(ctx, mockEnv(t, nil))
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &login.MemoryStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		mr.RequireAuth("pw")

		cfg := &StateStoreConfig{Type: StateStoreRedis, Addr: mr.Addr(), PasswordEnv: "PW", KeyPrefix: "cfg:"}
		s, err := cfg.OpenStateStore(ctx, mockEnv(t, map[string]string{"PW": "pw"}))
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, s.Save(ctx, &login.PendingLogin{Provider: "google", State: "st"}))
		assert.True(t, mr.Exists("cfg:st"))

		_, err = cfg.OpenStateStore(ctx, mockEnv(t, nil))
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		_, err := (&StateStoreConfig{Type: "etcd"}).OpenStateStore(ctx, mockEnv(t, nil))
		assert.Error(t, err)
	})
}
