package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return &Tracer{tracer: tp}, rec
}

func TestStartSpanRecordsErrorAndAttributes(t *testing.T) {
	tr, rec := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), "search.query")
	tr.SetAttributes(span, map[string]interface{}{
		"top_n":   10,
		"encoder": "clean-v2",
		"min_sim": 0.9,
		"vector":  true,
		"tiers":   []string{"a", "b"},
	})
	tr.RecordErrorOnSpan(span, errors.New("encoder down"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "search.query", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Attributes(), 5)
}

func TestCarrierRoundTrip(t *testing.T) {
	tr, _ := newRecordingTracer()
	NewClient(Config{ServiceName: "test"}, nil) // installs the global propagator

	ctx, span := tr.StartSpan(context.Background(), "jobs.publish")
	defer span.End()

	carrier := tr.GetCarrier(ctx)
	require.Contains(t, carrier, "traceparent")

	restored := tr.SetCarrierOnContext(context.Background(), carrier)
	_, child := tr.StartSpan(restored, "jobs.handle")
	defer child.End()
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
}

func TestNoopSpanner(t *testing.T) {
	var s Spanner = Noop{}
	ctx, span := s.StartSpan(context.Background(), "noop")
	s.SetAttributes(span, map[string]interface{}{"k": "v"})
	s.RecordErrorOnSpan(span, errors.New("x"))
	span.End()
	assert.NotNil(t, ctx)
}

func TestSamplerRatio(t *testing.T) {
	assert.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRatio: 1.5}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")
}
