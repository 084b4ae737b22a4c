package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the planner's metrics. All recorders are safe for
// concurrent use and cheap when telemetry is disabled (noop meter).
type Instruments struct {
	plansStarted   metric.Int64Counter
	plansCompleted metric.Int64Counter
	planDuration   metric.Float64Histogram
	daysPlanned    metric.Int64Counter
	sitesScheduled metric.Int64Counter
}

// NewInstruments registers the planner instruments on the given meter.
func NewInstruments(m metric.Meter) (*Instruments, error) {
	plansStarted, err := m.Int64Counter("planner.plans.started",
		metric.WithDescription("Plan requests received, by mode"))
	if err != nil {
		return nil, err
	}
	plansCompleted, err := m.Int64Counter("planner.plans.completed",
		metric.WithDescription("Plan requests finished, by mode and outcome"))
	if err != nil {
		return nil, err
	}
	planDuration, err := m.Float64Histogram("planner.plan.duration_seconds",
		metric.WithDescription("Wall-clock time per plan request"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	daysPlanned, err := m.Int64Counter("planner.work_days.planned",
		metric.WithDescription("Work days the single-day solver was invoked for"))
	if err != nil {
		return nil, err
	}
	sitesScheduled, err := m.Int64Counter("planner.sites.scheduled",
		metric.WithDescription("Sites placed on routes"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		plansStarted:   plansStarted,
		plansCompleted: plansCompleted,
		planDuration:   planDuration,
		daysPlanned:    daysPlanned,
		sitesScheduled: sitesScheduled,
	}, nil
}

// PlanStarted records an incoming plan request.
func (i *Instruments) PlanStarted(ctx context.Context, mode string) {
	i.plansStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// PlanCompleted records a finished plan request and its duration.
func (i *Instruments) PlanCompleted(ctx context.Context, mode string, elapsed time.Duration, ok bool) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", ok),
	)
	i.plansCompleted.Add(ctx, 1, attrs)
	i.planDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// DayPlanned records one solver invocation and how many sites it placed.
func (i *Instruments) DayPlanned(ctx context.Context, scheduled int) {
	i.daysPlanned.Add(ctx, 1)
	i.sitesScheduled.Add(ctx, int64(scheduled))
}
