// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusProvider is a meter provider whose metrics are served by Handler.
type PrometheusProvider struct {
	*sdkmetric.MeterProvider
	handler http.Handler
}

// NewPrometheusProvider creates a meter provider backed by a private
// Prometheus registry. Go runtime and process collectors are added when
// includeRuntime is set.
func NewPrometheusProvider(includeRuntime bool) (*PrometheusProvider, error) {
	registry := prometheus.NewRegistry()
	if includeRuntime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &PrometheusProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the Prometheus exposition format.
func (p *PrometheusProvider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the meter provider.
func (p *PrometheusProvider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}
