// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry instruments OAuth providers with OpenTelemetry metrics
// and traces.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

const instrumentationName = "github.com/stacklok/socialauth"

// Metric names. The Prometheus exporter adds the _total and _seconds suffixes.
const (
	metricRequests        = "socialauth_provider_requests"
	metricErrors          = "socialauth_provider_errors"
	metricRequestDuration = "socialauth_provider_request_duration"
)

// Attribute keys
const (
	attrProvider  = attribute.Key("provider")
	attrOperation = attribute.Key("operation")
	attrErrorKind = attribute.Key("error.kind")
)

// Operation names
const (
	opAuthorizationURL = "authorization_url"
	opExchangeCode     = "exchange_code"
	opRefreshToken     = "refresh_token"
	opValidateIDToken  = "validate_id_token"
	opGetUserInfo      = "get_userinfo"
)

// Compile-time interface compliance check.
var _ socialauth.OAuthProvider = (*instrumentedProvider)(nil)

type instrumentedProvider struct {
	inner socialauth.OAuthProvider

	tracer          trace.Tracer
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// Instrument wraps p so every operation records a request, a duration and,
// on failure, an error labelled with its kind. Each operation runs in a
// client span named socialauth.<operation>. Errors are returned unchanged.
func Instrument(p socialauth.OAuthProvider, mp metric.MeterProvider, tp trace.TracerProvider) (socialauth.OAuthProvider, error) {
	if p == nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider is nil")
	}
	meter := mp.Meter(instrumentationName)

	requestCounter, err := meter.Int64Counter(
		metricRequests,
		metric.WithDescription("Total number of OAuth provider operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", metricRequests, err)
	}
	errorCounter, err := meter.Int64Counter(
		metricErrors,
		metric.WithDescription("Total number of failed OAuth provider operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", metricErrors, err)
	}
	requestDuration, err := meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of OAuth provider operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", metricRequestDuration, err)
	}

	return &instrumentedProvider{
		inner:           p,
		tracer:          tp.Tracer(instrumentationName),
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		requestDuration: requestDuration,
	}, nil
}

// observe runs fn inside a span and records its outcome.
func observe[T any](ctx context.Context, p *instrumentedProvider, op string, fn func(context.Context) (T, error)) (T, error) {
	attrs := []attribute.KeyValue{attrProvider.String(p.inner.Name()), attrOperation.String(op)}

	ctx, span := p.tracer.Start(ctx, "socialauth."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	set := metric.WithAttributes(attrs...)
	p.requestCounter.Add(ctx, 1, set)
	p.requestDuration.Record(ctx, elapsed, set)

	if err != nil {
		kind, ok := autherrors.KindOf(err)
		if !ok {
			kind = "unknown"
		}
		p.errorCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attrErrorKind.String(string(kind)))...))
		span.SetAttributes(attrErrorKind.String(string(kind)))
		span.SetStatus(codes.Error, string(kind))
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (p *instrumentedProvider) Name() string { return p.inner.Name() }

func (p *instrumentedProvider) IsOIDC() bool { return p.inner.IsOIDC() }

// UsesNonce forwards to the wrapped provider, defaulting to IsOIDC.
func (p *instrumentedProvider) UsesNonce() bool {
	if n, ok := p.inner.(interface{ UsesNonce() bool }); ok {
		return n.UsesNonce()
	}
	return p.inner.IsOIDC()
}

// Warm forwards to the wrapped provider when it can warm its caches.
func (p *instrumentedProvider) Warm(ctx context.Context) error {
	if w, ok := p.inner.(interface{ Warm(context.Context) error }); ok {
		return w.Warm(ctx)
	}
	return nil
}

func (p *instrumentedProvider) AuthorizationURL(
	ctx context.Context,
	state string,
	opts ...socialauth.AuthorizationOption,
) (string, error) {
	return observe(ctx, p, opAuthorizationURL, func(ctx context.Context) (string, error) {
		return p.inner.AuthorizationURL(ctx, state, opts...)
	})
}

func (p *instrumentedProvider) ExchangeCode(
	ctx context.Context,
	code string,
	verifier *pkce.CodeVerifier,
) (*socialauth.TokenResponse, error) {
	return observe(ctx, p, opExchangeCode, func(ctx context.Context) (*socialauth.TokenResponse, error) {
		return p.inner.ExchangeCode(ctx, code, verifier)
	})
}

func (p *instrumentedProvider) RefreshToken(ctx context.Context, refreshToken string) (*socialauth.TokenResponse, error) {
	return observe(ctx, p, opRefreshToken, func(ctx context.Context) (*socialauth.TokenResponse, error) {
		return p.inner.RefreshToken(ctx, refreshToken)
	})
}

func (p *instrumentedProvider) ValidateIDToken(
	ctx context.Context,
	rawIDToken, expectedNonce string,
) (*socialauth.IDToken, error) {
	return observe(ctx, p, opValidateIDToken, func(ctx context.Context) (*socialauth.IDToken, error) {
		return p.inner.ValidateIDToken(ctx, rawIDToken, expectedNonce)
	})
}

func (p *instrumentedProvider) GetUserInfo(ctx context.Context, accessToken string) (*socialauth.StandardClaims, error) {
	return observe(ctx, p, opGetUserInfo, func(ctx context.Context) (*socialauth.StandardClaims, error) {
		return p.inner.GetUserInfo(ctx, accessToken)
	})
}
