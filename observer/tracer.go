package observer

import (
	"context"
	"fmt"

	"github.com/nevindra/seer"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// otelTracer implements seer.Tracer on OpenTelemetry.
type otelTracer struct {
	inner trace.Tracer
}

// NewTracer returns a seer.Tracer backed by the global TracerProvider. Call
// Init first; otherwise spans go to a no-op backend. Pass it to
// seer.WithWorkflowTracer and seer.WithGatewayTracer.
func NewTracer() seer.Tracer {
	return &otelTracer{inner: otel.Tracer(scopeName)}
}

// NewTracerFrom returns a seer.Tracer backed by tp.
func NewTracerFrom(tp trace.TracerProvider) seer.Tracer {
	return &otelTracer{inner: tp.Tracer(scopeName)}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...seer.SpanAttr) (context.Context, seer.Span) {
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(toOTELAttrs(attrs)...))
	return ctx, &otelSpan{inner: span}
}

// otelSpan implements seer.Span using an OTEL trace.Span.
type otelSpan struct {
	inner trace.Span
}

func (s *otelSpan) SetAttr(attrs ...seer.SpanAttr) {
	s.inner.SetAttributes(toOTELAttrs(attrs)...)
}

func (s *otelSpan) Event(name string, attrs ...seer.SpanAttr) {
	s.inner.AddEvent(name, trace.WithAttributes(toOTELAttrs(attrs)...))
}

func (s *otelSpan) Error(err error) {
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.inner.End()
}

func toOTELAttrs(attrs []seer.SpanAttr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		out[i] = toOTELAttr(a)
	}
	return out
}

func toOTELAttr(a seer.SpanAttr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	default:
		return attribute.String(a.Key, fmt.Sprintf("%v", v))
	}
}

var (
	_ seer.Tracer = (*otelTracer)(nil)
	_ seer.Span   = (*otelSpan)(nil)
)
