package observer

import (
	"context"
	"errors"
	"time"

	"github.com/nevindra/seer"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedRunner wraps a seer.TurnRunner with a parent "turn.run" span plus
// turn metrics and a log record. Node, LLM and tool spans started inside the
// turn become its children through the context.
type ObservedRunner struct {
	inner seer.TurnRunner
	inst  *Instruments
}

// WrapRunner returns an instrumented runner.
func WrapRunner(inner seer.TurnRunner, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst}
}

// Run forwards every update to ch unchanged and records the branch the
// router picked.
func (o *ObservedRunner) Run(ctx context.Context, in seer.TurnInput, ch chan<- seer.Update) (seer.TurnState, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "turn.run", trace.WithAttributes(AttrTurnUser.String(in.UserID)))
	defer span.End()
	start := time.Now()

	var route seer.Node
	var fwd chan seer.Update
	done := make(chan struct{})
	if ch != nil {
		fwd = make(chan seer.Update, max(cap(ch), 16))
		go func() {
			defer close(done)
			defer close(ch)
			var prev seer.Node
			dropped := false
			for u := range fwd {
				if u.NextNode != "" {
					if prev == seer.NodeRouter && route == "" {
						route = u.NextNode
					}
					prev = u.NextNode
				}
				if dropped {
					continue
				}
				select {
				case ch <- u:
				case <-ctx.Done():
					dropped = true
				}
			}
		}()
	} else {
		close(done)
	}

	st, err := o.inner.Run(ctx, in, fwd)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := turnStatus(err)
	attrs := []attribute.KeyValue{
		AttrTurnStatus.String(status),
		AttrTurnCommitted.Bool(st.MemoryCommitted),
		AttrTurnCards.Int(len(st.TaroCards)),
	}
	if route != "" {
		attrs = append(attrs, AttrTurnRoute.String(string(route)))
	}
	var te *seer.TurnError
	if errors.As(err, &te) {
		attrs = append(attrs, AttrTurnNode.String(string(te.Node)))
	}
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.Turns.Add(ctx, 1, metric.WithAttributes(
		AttrTurnStatus.String(status),
		AttrTurnRoute.String(string(route)),
	))
	o.inst.TurnDuration.Record(ctx, durationMs, metric.WithAttributes(AttrTurnRoute.String(string(route))))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	if err != nil {
		rec.SetSeverity(otellog.SeverityError)
	}
	rec.SetBody(otellog.StringValue("turn finished"))
	rec.AddAttributes(
		otellog.String("turn.id", st.ID),
		otellog.String("turn.user", in.UserID),
		otellog.String("turn.status", status),
		otellog.String("turn.route", string(route)),
		otellog.Bool("turn.memory_committed", st.MemoryCommitted),
		otellog.Float64("turn.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return st, err
}

func turnStatus(err error) string {
	var te *seer.TurnError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, seer.ErrTurnTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &te):
		return "error"
	default:
		return "invalid"
	}
}

var _ seer.TurnRunner = (*ObservedRunner)(nil)
