package observer

import (
	"context"
	"time"

	"github.com/nevindra/seer"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedProvider wraps a seer.Provider with OTEL instrumentation.
type ObservedProvider struct {
	inner seer.Provider
	inst  *Instruments
	model string
}

// WrapProvider returns an instrumented provider. model is used for cost
// lookup and as a span attribute.
func WrapProvider(inner seer.Provider, model string, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst, model: model}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

// Chat traces one call. The span is "llm.chat", "llm.chat_with_tools", or
// "llm.structured" when a response schema is requested.
func (o *ObservedProvider) Chat(ctx context.Context, req seer.ChatRequest) (seer.ChatResponse, error) {
	attrs := []attribute.KeyValue{
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	}
	method := "chat"
	switch {
	case req.ResponseSchema != nil:
		method = "structured"
		attrs = append(attrs, AttrLLMSchema.String(req.ResponseSchema.Name))
	case len(req.Tools) > 0:
		method = "chat_with_tools"
		names := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			names[i] = t.Name
		}
		attrs = append(attrs, AttrToolCount.Int(len(req.Tools)), AttrToolNames.StringSlice(names))
	}

	ctx, span := o.inst.Tracer.Start(ctx, "llm."+method, trace.WithAttributes(attrs...))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, method, status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, usage seer.Usage) {
	cost := o.inst.Cost.Calculate(o.model, usage.InputTokens, usage.OutputTokens)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
		AttrCostUSD.Float64(cost),
	)

	model := AttrLLMModel.String(o.model)
	provider := AttrLLMProvider.String(o.inner.Name())
	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(model, provider, attribute.String("direction", "input")))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(model, provider, attribute.String("direction", "output")))
	o.inst.CostTotal.Add(ctx, cost, metric.WithAttributes(model, provider, AttrLLMMethod.String(method)))
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(model, provider, AttrLLMMethod.String(method), attribute.String("status", status)))
	o.inst.LLMDuration.Record(ctx, durationMs, metric.WithAttributes(model, provider, AttrLLMMethod.String(method)))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.cost_usd", cost),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ seer.Provider = (*ObservedProvider)(nil)
