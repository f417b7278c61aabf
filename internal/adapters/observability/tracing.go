package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTracing installs the global tracer provider with an OTLP exporter and
// returns its shutdown func. OTEL_SDK_DISABLED=true keeps the noop provider.
func InitTracing(ctx context.Context) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	noop := func(context.Context) error { return nil }

	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		log.Info().Bool("tracing_enabled", false).Msg("tracing configured")
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(envOr("OTEL_SERVICE_NAME", "staybook"))),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	protocol := envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	var exporter *otlptrace.Exporter
	switch protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "http/protobuf":
		exporter, err = otlptracehttp.New(ctx)
	default:
		err = fmt.Errorf("unsupported OTLP protocol: %s", protocol)
	}
	if err != nil {
		// tracing is optional; keep serving without it
		log.Error().Err(err).Msg("tracing init failed")
		return noop, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(os.Getenv("OTEL_TRACES_SAMPLER"), os.Getenv("OTEL_TRACES_SAMPLER_ARG"))),
	)
	otel.SetTracerProvider(tp)

	log.Info().
		Bool("tracing_enabled", true).
		Str("otlp_protocol", protocol).
		Str("sampler", envOr("OTEL_TRACES_SAMPLER", "parentbased_always_on")).
		Msg("tracing configured")
	return tp.Shutdown, nil
}

// Traced wraps h so every request opens a server span.
func Traced(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}

func sampler(name, arg string) sdktrace.Sampler {
	ratio := 1.0
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		ratio = f
	}
	switch name {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(ratio)
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
