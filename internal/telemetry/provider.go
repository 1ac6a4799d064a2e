// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires an OpenTelemetry meter provider to a Prometheus
// exporter and collects the counters and histograms the merge engine and
// wakeup controller emit during a run.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider owns the OTel meter provider and its Prometheus reader.
type Provider struct {
	mp       *metric.MeterProvider
	exporter *prometheus.Exporter
	Metrics  *Metrics
}

// New creates a Provider whose meter reports through a Prometheus exporter,
// and initializes the engine's counters and histograms against it.
func New(serviceName, serviceVersion string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge otel resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	)

	m, err := newMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}

	return &Provider{mp: mp, exporter: exporter, Metrics: m}, nil
}

// Handler returns an http.Handler serving metrics in Prometheus text
// exposition format. The OTel prometheus exporter registers against the
// default Prometheus registry, so promhttp.Handler is sufficient.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and releases the underlying meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
