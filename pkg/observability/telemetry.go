package observability

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryConfig holds configuration for observability setup
type TelemetryConfig struct {
	ServiceName     string
	ServiceVersion  string
	Environment     string
	OTLPEndpoint    string
	MetricsPort     int
	TraceSampleRate float64
}

// DefaultTelemetryConfig returns sensible defaults for the search service
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:     "lancer",
		ServiceVersion:  "0.1.0",
		Environment:     "development",
		OTLPEndpoint:    "http://localhost:4318",
		MetricsPort:     9090,
		TraceSampleRate: 1.0,
	}
}

// Telemetry provides observability capabilities
type Telemetry struct {
	config         TelemetryConfig
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *StructuredLogger
}

// NewTelemetry initializes OpenTelemetry with the given configuration
func NewTelemetry(ctx context.Context, config TelemetryConfig) (*Telemetry, error) {
	// Suppress otel SDK error logging when no collector is reachable
	stdr.SetVerbosity(0)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		// Intentionally drop exporter connectivity errors
	}))

	t := &Telemetry{
		config: config,
		logger: NewStructuredLogger("telemetry"),
	}

	res, err := t.createResource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := t.initTracing(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := t.initMetrics(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	t.tracer = otel.Tracer(config.ServiceName)
	t.meter = otel.Meter(config.ServiceName)

	return t, nil
}

// createResource creates the OpenTelemetry resource describing this service
func (t *Telemetry) createResource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(t.config.ServiceName),
			semconv.ServiceVersion(t.config.ServiceVersion),
			semconv.DeploymentEnvironment(t.config.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
}

// initTracing sets up the trace provider with OTLP export
func (t *Telemetry) initTracing(ctx context.Context, res *resource.Resource) error {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(t.config.OTLPEndpoint),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 1 * time.Second,
			MaxInterval:     10 * time.Second,
			MaxElapsedTime:  30 * time.Second,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	t.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(t.config.TraceSampleRate)),
	)

	otel.SetTracerProvider(t.tracerProvider)
	return nil
}

// initMetrics sets up the meter provider with Prometheus export
func (t *Telemetry) initMetrics(ctx context.Context, res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(t.meterProvider)
	return nil
}

// Tracer returns the configured tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the configured meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Logger returns a structured logger scoped to the given component
func (t *Telemetry) Logger(component string) *StructuredLogger {
	return t.logger.WithComponent(component)
}

// StartSpan starts a new span with the given name and options
func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown gracefully shuts down all telemetry providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}

	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("telemetry shutdown error: %v", err)
		}
		return errs[0]
	}

	return nil
}
