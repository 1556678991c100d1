// Package observability exposes OpenTelemetry metrics through a Prometheus
// scrape endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics holds the job pipeline instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	admitted metric.Int64Counter
	rejected metric.Int64Counter
	finished metric.Int64Counter
	render   metric.Float64Histogram
	jobTime  metric.Float64Histogram
}

// NewMetrics registers instruments on the global meter provider. active
// reports (active, cap) for the concurrency gauge and may be nil.
func NewMetrics(active func() (int, int)) (*Metrics, error) {
	meter := otel.Meter("montage")
	m := &Metrics{}
	var err error

	if m.admitted, err = meter.Int64Counter("montage.jobs.admitted",
		metric.WithDescription("Jobs accepted for processing")); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("montage.jobs.rejected",
		metric.WithDescription("Submissions refused at admission")); err != nil {
		return nil, err
	}
	if m.finished, err = meter.Int64Counter("montage.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal state")); err != nil {
		return nil, err
	}
	if m.render, err = meter.Float64Histogram("montage.render.duration",
		metric.WithDescription("Encoder wall time"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.jobTime, err = meter.Float64Histogram("montage.job.duration",
		metric.WithDescription("Job wall time from admission to terminal state"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	if active != nil {
		_, err = meter.Int64ObservableGauge("montage.jobs.active",
			metric.WithDescription("Jobs currently holding a concurrency slot"),
			metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
				n, limit := active()
				obs.Observe(int64(n), metric.WithAttributes(attribute.Int("cap", limit)))
				return nil
			}),
		)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) JobAdmitted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.admitted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) JobRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) JobFinished(ctx context.Context, mode, status string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode), attribute.String("status", status))
	m.finished.Add(ctx, 1, attrs)
	m.jobTime.Record(ctx, took.Seconds(), attrs)
}

func (m *Metrics) RenderDuration(ctx context.Context, mode string, took time.Duration) {
	if m == nil {
		return
	}
	m.render.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}
