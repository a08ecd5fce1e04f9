package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/socleer/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Resource attributes describing the engine configuration of a run.
const (
	AttrCommunity  = attribute.Key("socleer.community")
	AttrCentrality = attribute.Key("socleer.centrality")
	AttrPoolSize   = attribute.Key("socleer.pool_size")
	AttrDrawCount  = attribute.Key("socleer.draw_count")
	AttrSeed       = attribute.Key("socleer.seed")
)

// EngineInfo is the engine configuration every span of a run is recorded
// under. Strategy names are the canonical selector names.
type EngineInfo struct {
	Community  string
	Centrality string
	PoolSize   string // a number or "unbounded"
	DrawCount  int
	Seed       uint64
}

// Attributes returns the non-empty fields of i as resource attributes.
func (i EngineInfo) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if i.Community != "" {
		attrs = append(attrs, AttrCommunity.String(i.Community))
	}
	if i.Centrality != "" {
		attrs = append(attrs, AttrCentrality.String(i.Centrality))
	}
	if i.PoolSize != "" {
		attrs = append(attrs, AttrPoolSize.String(i.PoolSize))
	}
	if i.DrawCount > 0 {
		attrs = append(attrs, AttrDrawCount.Int(i.DrawCount))
	}
	// Seeds use the full uint64 range.
	attrs = append(attrs, AttrSeed.String(strconv.FormatUint(i.Seed, 10)))
	return attrs
}

// TracingConfig governs how tracing is initialised. internal/config builds
// it from the run's settings.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64
	Engine      EngineInfo
	// Writer receives stdout exporter output. Nil means os.Stdout.
	Writer io.Writer
}

// InitTracing installs a global tracer provider whose resource carries the
// run's engine configuration. It returns a shutdown function that flushes
// buffered spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	log = logging.OrNoop(log)

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = "socleer-simulator"
	}
	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", service),
		attribute.String("service.namespace", "socleer"),
	}, cfg.Engine.Attributes()...)

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", service),
		logging.Float("sample_ratio", cfg.SampleRatio),
		logging.String("community", cfg.Engine.Community),
		logging.String("centrality", cfg.Engine.Centrality),
		logging.String("pool_size", cfg.Engine.PoolSize),
		logging.Int("draw_count", cfg.Engine.DrawCount),
	)

	return tp.Shutdown, nil
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	log = logging.OrNoop(log)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
