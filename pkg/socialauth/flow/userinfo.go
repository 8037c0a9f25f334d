// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
)

// ClaimMapping holds a gjson path per profile field. Empty paths use the
// OpenID Connect claim name.
type ClaimMapping struct {
	Subject           string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Email             string `json:"email,omitempty" yaml:"email,omitempty"`
	EmailVerified     string `json:"email_verified,omitempty" yaml:"email_verified,omitempty"`
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty" yaml:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty" yaml:"family_name,omitempty"`
	Picture           string `json:"picture,omitempty" yaml:"picture,omitempty"`
	Locale            string `json:"locale,omitempty" yaml:"locale,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty" yaml:"preferred_username,omitempty"`
}

// DefaultClaimMapping returns the OpenID Connect claim names.
func DefaultClaimMapping() ClaimMapping {
	return ClaimMapping{
		Subject:           "sub",
		Email:             "email",
		EmailVerified:     "email_verified",
		Name:              "name",
		GivenName:         "given_name",
		FamilyName:        "family_name",
		Picture:           "picture",
		Locale:            "locale",
		PreferredUsername: "preferred_username",
	}
}

func (m ClaimMapping) withDefaults() ClaimMapping {
	d := DefaultClaimMapping()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Subject, d.Subject)
	fill(&m.Email, d.Email)
	fill(&m.EmailVerified, d.EmailVerified)
	fill(&m.Name, d.Name)
	fill(&m.GivenName, d.GivenName)
	fill(&m.FamilyName, d.FamilyName)
	fill(&m.Picture, d.Picture)
	fill(&m.Locale, d.Locale)
	fill(&m.PreferredUsername, d.PreferredUsername)
	return m
}

func (m ClaimMapping) paths() []string {
	return []string{
		m.Subject, m.Email, m.EmailVerified, m.Name, m.GivenName,
		m.FamilyName, m.Picture, m.Locale, m.PreferredUsername,
	}
}

// FetchUserInfo queries endpoint with accessToken and maps the response
// through mapping. Claims not consumed by the mapping land in Extra.
func FetchUserInfo(
	ctx context.Context,
	client networking.HTTPClient,
	endpoint, accessToken string,
	mapping ClaimMapping,
) (*socialauth.StandardClaims, error) {
	if accessToken == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "access token is required")
	}
	if err := networking.ValidateEndpointURL(endpoint); err != nil {
		return nil, autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid userinfo endpoint", err)
	}

	result, err := networking.FetchJSON[json.RawMessage](ctx, client, endpoint, networking.WithBearerToken(accessToken))
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindUserInfoFailed, fmt.Sprintf("fetching %s", endpoint), err)
	}
	return MapClaims(result.Body, mapping)
}

// MapClaims maps a UserInfo JSON object onto StandardClaims. A numeric
// subject is rendered in its JSON form.
func MapClaims(body []byte, mapping ClaimMapping) (*socialauth.StandardClaims, error) {
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, autherrors.New(autherrors.KindUserInfoFailed, "userinfo response is not a JSON object")
	}
	m := mapping.withDefaults()

	claims := &socialauth.StandardClaims{
		Subject:           scalar(doc.Get(m.Subject)),
		Email:             doc.Get(m.Email).String(),
		EmailVerified:     doc.Get(m.EmailVerified).Bool(),
		Name:              doc.Get(m.Name).String(),
		GivenName:         doc.Get(m.GivenName).String(),
		FamilyName:        doc.Get(m.FamilyName).String(),
		Picture:           doc.Get(m.Picture).String(),
		Locale:            doc.Get(m.Locale).String(),
		PreferredUsername: doc.Get(m.PreferredUsername).String(),
	}
	if claims.Subject == "" {
		return nil, autherrors.Newf(autherrors.KindUserInfoFailed, "userinfo response has no subject at %q", m.Subject)
	}

	used := make(map[string]struct{})
	for _, p := range m.paths() {
		used[p] = struct{}{}
	}
	doc.ForEach(func(key, value gjson.Result) bool {
		if _, ok := used[key.String()]; ok {
			return true
		}
		if claims.Extra == nil {
			claims.Extra = make(map[string]any)
		}
		claims.Extra[key.String()] = value.Value()
		return true
	})

	return claims, nil
}

func scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.Number:
		return r.Raw
	case gjson.String:
		return r.String()
	default:
		return ""
	}
}
