package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrUnsupportedExporter is returned for an exporter name other than
	// stdout or otlp.
	ErrUnsupportedExporter = errors.New("unsupported tracing exporter")
	// ErrInvalidSampleRatio is returned for a sample ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("tracing sample ratio must be within [0, 1]")
)

// Exporter names a span exporter.
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

const (
	defaultServiceName  = "parksim"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig selects the tracer provider installed for the simulator.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    Exporter
	// Endpoint is the OTLP/gRPC collector address.
	Endpoint    string
	SampleRatio float64
	// Output receives stdout-exported spans; defaults to stderr.
	Output io.Writer
	// Synchronous exports each span as it ends instead of batching.
	Synchronous bool
}

// TracingConfigFromEnv reads PARKSIM_TRACING_ENABLED, PARKSIM_TRACING_EXPORTER,
// PARKSIM_TRACING_SERVICE_NAME, PARKSIM_TRACING_SAMPLE_RATIO,
// PARKSIM_TRACING_SYNC and PARKSIM_OTLP_ENDPOINT. Tracing is off unless
// explicitly enabled.
func TracingConfigFromEnv() (TracingConfig, error) {
	return tracingConfig(os.Getenv)
}

func tracingConfig(getenv func(string) string) (TracingConfig, error) {
	cfg := TracingConfig{
		Enabled:     parseBool(getenv("PARKSIM_TRACING_ENABLED")),
		ServiceName: getenv("PARKSIM_TRACING_SERVICE_NAME"),
		Exporter:    Exporter(strings.ToLower(getenv("PARKSIM_TRACING_EXPORTER"))),
		Endpoint:    getenv("PARKSIM_OTLP_ENDPOINT"),
		SampleRatio: 1,
		Synchronous: parseBool(getenv("PARKSIM_TRACING_SYNC")),
	}
	if raw := getenv("PARKSIM_TRACING_SAMPLE_RATIO"); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("PARKSIM_TRACING_SAMPLE_RATIO %q: %w", raw, err)
		}
		cfg.SampleRatio = ratio
	}
	return cfg.withDefaults(), cfg.validate()
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func (c TracingConfig) withDefaults() TracingConfig {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultOTLPEndpoint
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}

func (c TracingConfig) validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidSampleRatio, c.SampleRatio)
	}
	switch c.Exporter {
	case ExporterStdout, ExporterOTLP, "":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedExporter, c.Exporter)
	}
}

func (c TracingConfig) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

// InitTracing installs the global tracer provider described by cfg and
// returns the function that flushes and stops it. A disabled config installs
// a no-op provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "parking"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	export := sdktrace.WithBatcher(exp)
	if cfg.Synchronous {
		export = sdktrace.WithSyncer(exp)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithResource(res),
		export,
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", string(cfg.Exporter)),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
		logging.Bool("synchronous", cfg.Synchronous),
	)
	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == ExporterOTLP {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	}
	return stdouttrace.New(
		stdouttrace.WithWriter(cfg.Output),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
}

// ShutdownWithTimeout flushes the tracer provider, giving up after a few
// seconds. Failures are logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
