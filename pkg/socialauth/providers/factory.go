// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/flow"
)

// Type names a provider implementation.
type Type string

// Provider types
const (
	TypeGoogle    Type = "google"
	TypeGitHub    Type = "github"
	TypeMicrosoft Type = "microsoft"
	TypeApple     Type = "apple"
	TypeOIDC      Type = "oidc"
	TypeOAuth2    Type = "oauth2"
)

// ProviderSpec is the configured form of one provider.
type ProviderSpec struct {
	// Name registers the provider. Built-in types default to their type name.
	Name   string
	Type   Type
	Config socialauth.ProviderConfig
	// Tenant applies to Microsoft only.
	Tenant string
	// UserInfoMapping applies to OAuth 2.0 providers only.
	UserInfoMapping flow.ClaimMapping
	// AdditionalParams are sent with every authorization request.
	AdditionalParams map[string]string
}

// New constructs the provider described by spec.
func New(spec ProviderSpec, opts ...Option) (socialauth.OAuthProvider, error) {
	cfg := &spec.Config
	var (
		p   socialauth.OAuthProvider
		err error
	)
	switch spec.Type {
	case TypeGoogle:
		p, err = NewGoogle(cfg, opts...)
	case TypeGitHub:
		p, err = NewGitHub(cfg, opts...)
	case TypeMicrosoft:
		p, err = NewMicrosoft(cfg, spec.Tenant, opts...)
	case TypeApple:
		p, err = NewApple(cfg, opts...)
	case TypeOIDC:
		p, err = NewOIDC(spec.Name, cfg, opts...)
	case TypeOAuth2:
		p, err = NewOAuth2(spec.Name, cfg, spec.UserInfoMapping, opts...)
	default:
		return nil, autherrors.Newf(autherrors.KindInvalidConfiguration, "unknown provider type %q", spec.Type)
	}
	if err != nil {
		return nil, err
	}
	if spec.Name != "" {
		if n, ok := p.(interface{ rename(string) }); ok {
			n.rename(spec.Name)
		}
	}
	if len(spec.AdditionalParams) > 0 {
		if d, ok := p.(interface{ addDefaultParams(map[string]string) }); ok {
			d.addDefaultParams(spec.AdditionalParams)
		}
	}
	return p, nil
}
