// Package engine implements the admission dispatcher: the per-item decision
// the host scheduler asks for on every scheduling pass.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

const instrumentationName = "github.com/dwsmith1983/queuegate/internal/engine"

// ChainSource returns the condition chain attached to a job. ok is false
// when the job has no chain. An error means the job's configuration could
// not be compiled.
type ChainSource interface {
	ConditionChain(jobName string) (chain condition.Chain, ok bool, err error)
}

// Recorder receives every decision for auditing. Record must not block.
type Recorder interface {
	Record(d types.Decision)
}

// Dispatcher decides whether queued work items may proceed.
type Dispatcher struct {
	view     provider.SchedulerView
	chains   ChainSource
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     instruments
}

type instruments struct {
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
}

// New creates a Dispatcher reading live state from view and chains from
// chains. Telemetry goes to the global OpenTelemetry providers.
func New(view provider.SchedulerView, chains ChainSource) *Dispatcher {
	d := &Dispatcher{
		view:   view,
		chains: chains,
		logger: slog.Default(),
	}
	d.SetTracerProvider(otel.GetTracerProvider())
	d.SetMeterProvider(otel.GetMeterProvider())
	return d
}

// SetLogger sets the logger used for decision logging.
func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetRecorder enables decision auditing.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// SetTracerProvider replaces the tracer provider.
func (d *Dispatcher) SetTracerProvider(tp trace.TracerProvider) {
	d.tracer = tp.Tracer(instrumentationName)
}

// SetMeterProvider replaces the meter provider and recreates instruments.
func (d *Dispatcher) SetMeterProvider(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)

	decisions, err := meter.Int64Counter("queuegate.decisions",
		metric.WithDescription("Admission decisions by verdict"))
	if err != nil {
		d.logger.Warn("failed to create decisions counter", "error", err)
	}
	duration, err := meter.Float64Histogram("queuegate.decision.duration",
		metric.WithDescription("Time spent deciding one work item"),
		metric.WithUnit("ms"))
	if err != nil {
		d.logger.Warn("failed to create decision duration histogram", "error", err)
	}
	d.inst = instruments{decisions: decisions, duration: duration}
}

// Decide evaluates item's condition chain against live state and annotates
// the item with the block cause, if any. It never fails: every problem
// degrades to a Block verdict. ctx only carries tracing.
func (d *Dispatcher) Decide(ctx context.Context, item *types.WorkItem) types.Verdict {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "queuegate.decide", trace.WithAttributes(
		attribute.String("queuegate.job", item.JobName),
		attribute.Int64("queuegate.item", item.ID),
	))
	defer span.End()

	out := d.evaluate(item)

	if out.Verdict.Blocked() {
		item.SetCause(out.Verdict.Cause)
	} else {
		item.ClearCause()
	}

	elapsed := time.Since(start)
	attrs := attribute.String("verdict", string(out.Verdict.Kind))
	if d.inst.decisions != nil {
		d.inst.decisions.Add(ctx, 1, metric.WithAttributes(attrs))
	}
	if d.inst.duration != nil {
		d.inst.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attrs))
	}
	span.SetAttributes(attrs)
	if out.Index >= 0 {
		span.SetAttributes(attribute.String("queuegate.condition", string(out.Type)))
	}

	if d.logger.Enabled(ctx, slog.LevelDebug) {
		d.logger.DebugContext(ctx, "admission decided",
			"job", item.JobName,
			"item", item.ID,
			"verdict", out.Verdict.Kind,
			"reason", out.Verdict.Reason(),
			"condition", out.Index,
		)
	}

	if d.recorder != nil {
		dec := types.Decision{
			ID:             ulid.Make().String(),
			ItemID:         item.ID,
			JobName:        item.JobName,
			Verdict:        out.Verdict.Kind,
			ConditionIndex: out.Index,
			ConditionType:  out.Type,
			DecidedAt:      start,
			Duration:       elapsed,
		}
		// Rendered by the recorder's writer.
		if out.Verdict.Blocked() {
			dec.Cause = out.Verdict.Cause
		}
		d.recorder.Record(dec)
	}

	return out.Verdict
}

func (d *Dispatcher) evaluate(item *types.WorkItem) condition.Outcome {
	chain, ok, err := d.chains.ConditionChain(item.JobName)
	if err != nil {
		d.logger.Warn("condition chain unavailable", "job", item.JobName, "error", err)
		return condition.Outcome{
			Verdict: types.Block(types.StaticCause(fmt.Sprintf("bad condition configuration: %v", err))),
			Index:   -1,
		}
	}
	if !ok || chain.Len() == 0 {
		return condition.Outcome{Verdict: types.Proceed(), Index: -1}
	}
	return chain.Evaluate(d.view, item)
}
