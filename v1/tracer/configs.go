package tracer

import "go.opentelemetry.io/otel/sdk/trace"

// Config configures the OpenTelemetry tracer provider.
type Config struct {
	// ServiceName is the service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// AppEnv is the deployment.environment resource attribute.
	AppEnv string `yaml:"app_env"`

	// EnableExport turns on the OTLP HTTP exporter. The endpoint is taken from
	// the standard OTEL_EXPORTER_OTLP_* environment variables.
	EnableExport bool `yaml:"enable_export"`

	// SampleRatio is the fraction of root spans recorded. Values outside
	// (0, 1) record everything.
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c Config) sampler() trace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return trace.ParentBased(trace.AlwaysSample())
	}
	return trace.ParentBased(trace.TraceIDRatioBased(c.SampleRatio))
}
