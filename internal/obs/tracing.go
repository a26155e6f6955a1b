package obs

import (
	"context"
	"time"

	"github.com/banksean/orchestra/orcherr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig controls InitTracing. Endpoint empty disables the
// exporter: spans are still created (so callers can unconditionally
// instrument) but go nowhere.
type TracingConfig struct {
	ServiceName string
	Endpoint    string // e.g. "localhost:4317"; empty disables export
}

// InitTracing configures the global tracer provider, exporting spans
// over OTLP/gRPC when Endpoint is set. Returns a shutdown func the
// caller must invoke before exit. Grounded on the teacher's go.mod
// otel/otlptracegrpc/otel-sdk stack. No command in this module calls it
// and no package here starts a span, so the CLI emits no traces.
func InitTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindContract, err, "build otel resource")
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Endpoint != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		exp, err := otlptracegrpc.New(dialCtx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindIO, err, "dial otlp collector "+cfg.Endpoint)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the global provider, for
// containernet/procio call sites that want to wrap a span around a
// docker invocation or a wait loop.
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }
