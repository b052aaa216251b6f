package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Logger is the logging contract the tracer needs at startup.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Tracer wraps an OpenTelemetry TracerProvider and offers span helpers used by
// the search, clustering, topic and RAG services. It is safe for concurrent use.
type Tracer struct {
	tracer *trace.TracerProvider
	logger Logger
}

// NewClient builds the tracer provider and installs it globally together
// with the W3C trace-context and baggage propagators. With export enabled an
// OTLP HTTP exporter is attached; if it cannot be created spans are still
// recorded locally and the error is logged.
//
// Example:
//
//	tr := tracer.NewClient(tracer.Config{ServiceName: "lexgraph", AppEnv: "dev"}, log)
//	ctx, span := tr.StartSpan(ctx, "clustering.run")
//	defer span.End()
func NewClient(cfg Config, logger Logger) *Tracer {
	options := []trace.TracerProviderOption{
		trace.WithSampler(cfg.sampler()),
		trace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.AppEnv),
		)),
	}

	if cfg.EnableExport {
		exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient())
		switch {
		case err != nil:
			logger.Error("OTLP exporter unavailable, spans stay local", err, nil)
		default:
			options = append(options, trace.WithBatcher(exporter))
			logger.Info("OTLP trace export enabled", nil, map[string]interface{}{
				"service":      cfg.ServiceName,
				"sample_ratio": cfg.SampleRatio,
			})
		}
	}

	tp := trace.NewTracerProvider(options...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Tracer{tracer: tp, logger: logger}
}

// Shutdown flushes pending spans and releases the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.tracer == nil {
		return nil
	}
	return t.tracer.Shutdown(ctx)
}
