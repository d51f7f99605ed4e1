package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metric names exported by the collector.
const (
	MetricCapabilityExecutions = "pumpkit.capability.executions.total"
	MetricCapabilityDuration   = "pumpkit.capability.duration"
	MetricSolverPolls          = "pumpkit.solver.polls.total"
	MetricSolverTasks          = "pumpkit.solver.tasks.total"
	MetricActionRequests       = "pumpkit.action.requests.total"
)

// MetricsCollector records capability and solver activity.
// A zero collector (metrics disabled) drops every record.
type MetricsCollector struct {
	meter metric.Meter

	capabilityExecutions metric.Int64Counter
	capabilityDuration   metric.Float64Histogram

	solverPolls metric.Int64Counter
	solverTasks metric.Int64Counter

	actionRequests metric.Int64Counter

	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a collector backed by a Prometheus exporter.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	collector, err := NewMetricsCollectorWithProvider(provider)
	if err != nil {
		return nil, err
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// NewMetricsCollectorWithProvider builds the instruments on an existing provider.
func NewMetricsCollectorWithProvider(provider metric.MeterProvider) (*MetricsCollector, error) {
	meter := provider.Meter("pumpkit")

	capabilityExecutions, err := meter.Int64Counter(
		MetricCapabilityExecutions,
		metric.WithDescription("Total number of capability executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create capability_executions counter: %w", err)
	}

	capabilityDuration, err := meter.Float64Histogram(
		MetricCapabilityDuration,
		metric.WithDescription("Capability execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create capability_duration histogram: %w", err)
	}

	solverPolls, err := meter.Int64Counter(
		MetricSolverPolls,
		metric.WithDescription("Total number of task result polls sent to the solving service"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create solver_polls counter: %w", err)
	}

	solverTasks, err := meter.Int64Counter(
		MetricSolverTasks,
		metric.WithDescription("Total number of solving tasks by outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create solver_tasks counter: %w", err)
	}

	actionRequests, err := meter.Int64Counter(
		MetricActionRequests,
		metric.WithDescription("Total number of authorised action requests by status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create action_requests counter: %w", err)
	}

	return &MetricsCollector{
		meter:                meter,
		capabilityExecutions: capabilityExecutions,
		capabilityDuration:   capabilityDuration,
		solverPolls:          solverPolls,
		solverTasks:          solverTasks,
		actionRequests:       actionRequests,
	}, nil
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m != nil && m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordCapabilityExecution records one capability invocation and the stage it ended in.
func (m *MetricsCollector) RecordCapabilityExecution(ctx context.Context, name, stage, status string, duration time.Duration) {
	if m == nil || m.capabilityExecutions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("capability", name),
		attribute.String("stage", stage),
		attribute.String("status", status),
	}

	m.capabilityExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.capabilityDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("capability", name)))
}

// RecordSolverPoll records one status query and the status it returned.
func (m *MetricsCollector) RecordSolverPoll(ctx context.Context, status string) {
	if m == nil || m.solverPolls == nil {
		return
	}
	m.solverPolls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSolverTask records the terminal outcome of a solving task.
func (m *MetricsCollector) RecordSolverTask(ctx context.Context, outcome string) {
	if m == nil || m.solverTasks == nil {
		return
	}
	m.solverTasks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordActionRequest records the status code returned by the action service (0 on transport failure).
func (m *MetricsCollector) RecordActionRequest(ctx context.Context, statusCode int) {
	if m == nil || m.actionRequests == nil {
		return
	}
	m.actionRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("code", strconv.Itoa(statusCode))))
}
