// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records query-engine metrics through the OpenTelemetry
// Prometheus exporter. A zero value is safe: all record methods no-op when
// the exporter failed to initialize.
type Observability struct {
	meterProvider *metric.MeterProvider
	queryCounter  otelmetric.Int64Counter
	matchCounter  otelmetric.Int64Counter
	escalations   otelmetric.Int64Counter
	duration      otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	queryCounter, _ := meter.Int64Counter(
		"queries.processed",
		otelmetric.WithDescription("Number of queries processed"),
	)
	matchCounter, _ := meter.Int64Counter(
		"rules.matched",
		otelmetric.WithDescription("Number of rule matches"),
	)
	escalations, _ := meter.Int64Counter(
		"ai.escalations",
		otelmetric.WithDescription("Number of AI gateway escalations"),
	)
	duration, _ := meter.Float64Histogram(
		"pipeline.duration",
		otelmetric.WithDescription("Query pipeline duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		queryCounter:  queryCounter,
		matchCounter:  matchCounter,
		escalations:   escalations,
		duration:      duration,
	}
}

// RecordQuery counts one processed query by answer source and status.
func (o *Observability) RecordQuery(ctx context.Context, source, status string) {
	if o.queryCounter != nil {
		o.queryCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		))
	}
}

// RecordMatch counts one rule match.
func (o *Observability) RecordMatch(ctx context.Context, ruleID string) {
	if o.matchCounter != nil {
		o.matchCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("rule", ruleID),
		))
	}
}

// RecordEscalation counts one AI escalation by reason.
func (o *Observability) RecordEscalation(ctx context.Context, reason string) {
	if o.escalations != nil {
		o.escalations.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
}

// RecordDuration records one end-to-end pipeline duration in milliseconds.
func (o *Observability) RecordDuration(ctx context.Context, ms float64) {
	if o.duration != nil {
		o.duration.Record(ctx, ms)
	}
}

// Shutdown flushes the meter provider.
func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(context.Background())
	}
}
