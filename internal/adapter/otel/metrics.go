// Package otel provides OpenTelemetry setup, metric instruments, and span
// helpers for GitRelay.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "gitrelay"

// Metrics holds all GitRelay metric instruments.
type Metrics struct {
	Dispatched       metric.Int64Counter
	Unmatched        metric.Int64Counter
	Failed           metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	UpstreamDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Dispatched, err = meter.Int64Counter("gitrelay.requests.dispatched",
		metric.WithDescription("Number of requests matched to a route and dispatched"))
	if err != nil {
		return nil, err
	}

	m.Unmatched, err = meter.Int64Counter("gitrelay.requests.unmatched",
		metric.WithDescription("Number of requests that matched no route"))
	if err != nil {
		return nil, err
	}

	m.Failed, err = meter.Int64Counter("gitrelay.requests.failed",
		metric.WithDescription("Number of requests that failed during decode or handling"))
	if err != nil {
		return nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram("gitrelay.request.duration_seconds",
		metric.WithDescription("End-to-end request handling duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.UpstreamDuration, err = meter.Float64Histogram("gitrelay.upstream.duration_seconds",
		metric.WithDescription("Upstream API call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
