// Package observer wires seer into OpenTelemetry.
//
// It wraps a Provider, a Tool and a TurnRunner with instrumented versions that
// emit traces, metrics and logs, and adapts the OTEL tracer to seer.Tracer.
// Export goes to any OTLP backend configured through the standard OTEL_*
// environment variables.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/seer/observer"

// Instruments holds the OTEL handles shared by the wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	TokenUsage     metric.Int64Counter
	CostTotal      metric.Float64Counter
	LLMRequests    metric.Int64Counter
	ToolExecutions metric.Int64Counter
	Turns          metric.Int64Counter

	LLMDuration  metric.Float64Histogram
	ToolDuration metric.Float64Histogram
	TurnDuration metric.Float64Histogram

	Cost *CostCalculator
}

// Init installs global trace, metric and log providers exporting over OTLP
// HTTP and returns the instruments with a shutdown func that flushes all
// three. Endpoints come from OTEL_EXPORTER_OTLP_ENDPOINT and friends.
func Init(ctx context.Context, serviceName string, pricing map[string]ModelPricing) (_ *Instruments, _ func(context.Context) error, err error) {
	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = shutdown(ctx)
		}
	}()

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	shutdowns = append(shutdowns, tp.Shutdown)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	shutdowns = append(shutdowns, mp.Shutdown)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	shutdowns = append(shutdowns, lp.Shutdown)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		return nil, nil, err
	}
	return inst, shutdown, nil
}

// newInstruments builds instruments on the current global providers.
func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	meter := otel.Meter(scopeName)
	inst := &Instruments{
		Tracer: otel.Tracer(scopeName),
		Meter:  meter,
		Logger: global.GetLoggerProvider().Logger(scopeName),
		Cost:   NewCostCalculator(pricing),
	}

	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		errs = append(errs, err)
		return h
	}

	inst.TokenUsage = counter("llm.token.usage", "Tokens consumed", "{token}")
	inst.LLMRequests = counter("llm.requests", "Model calls", "{request}")
	inst.ToolExecutions = counter("tool.executions", "Tool calls", "{execution}")
	inst.Turns = counter("turn.executions", "Turns by outcome", "{turn}")
	inst.LLMDuration = histogram("llm.duration", "Model call duration")
	inst.ToolDuration = histogram("tool.duration", "Tool call duration")
	inst.TurnDuration = histogram("turn.duration", "Whole-turn duration")

	cost, err := meter.Float64Counter("llm.cost.total", metric.WithDescription("Model spend"), metric.WithUnit("USD"))
	inst.CostTotal = cost
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return inst, nil
}
