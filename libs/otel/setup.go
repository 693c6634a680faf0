package otelx

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/agendei/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config selects the OTLP exporter. Enabled without an Endpoint is a Setup error.
type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	Environment string
	Endpoint    string // host:port of an OTLP gRPC collector
	SampleRatio float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SAMPLING_PERCENT,
// SERVICE_VERSION and DEPLOY_ENV.
func ConfigFromEnv(serviceName string) Config {
	endpoint := config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	ratio := 1.0
	if v := config.Int("OTEL_SAMPLING_PERCENT", 100); v >= 0 && v <= 100 {
		ratio = float64(v) / 100
	}
	return Config{
		Enabled:     config.Bool("OTEL_ENABLED", endpoint != ""),
		ServiceName: serviceName,
		Version:     config.String("SERVICE_VERSION", "dev"),
		Environment: config.String("DEPLOY_ENV", "local"),
		Endpoint:    endpoint,
		SampleRatio: ratio,
	}
}

// Setup installs the W3C propagators and, when tracing is on, a batching tracer provider.
// The returned func flushes pending spans.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}
	if cfg.Endpoint == "" {
		return noop, errors.New("otel enabled without OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
