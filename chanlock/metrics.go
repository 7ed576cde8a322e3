package chanlock

import (
	"context"
	"time"

	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/xerrors"
)

const (
	MetricOperationsTotal     = "chanlock_operations_total"
	MetricSweepDuration       = "chanlock_sweep_duration_seconds"
	MetricSweepLocksTotal     = "chanlock_sweep_locks_total"
	MetricNotifyFailuresTotal = "chanlock_notify_failures_total"
)

type serviceMetrics struct {
	operations     metrics.Counter
	sweepDuration  metrics.Histogram
	sweepLocks     metrics.Counter
	notifyFailures metrics.Counter
}

func newServiceMetrics(m metrics.Meter) (*serviceMetrics, error) {
	operations, err := m.Counter(MetricOperationsTotal, "Lock operations by operation and outcome.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create operations counter")
	}
	sweepDuration, err := m.Histogram(MetricSweepDuration, "Duration of one sweep pass.", metrics.WithUnit("s"))
	if err != nil {
		return nil, xerrors.Wrap(err, "create sweep duration histogram")
	}
	sweepLocks, err := m.Counter(MetricSweepLocksTotal, "Locks visited by the sweeper by action.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create sweep locks counter")
	}
	notifyFailures, err := m.Counter(MetricNotifyFailuresTotal, "Failed notifier calls by call kind.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create notify failures counter")
	}
	return &serviceMetrics{
		operations:     operations,
		sweepDuration:  sweepDuration,
		sweepLocks:     sweepLocks,
		notifyFailures: notifyFailures,
	}, nil
}

func (m *serviceMetrics) observeOperation(ctx context.Context, op string, outcome Outcome) {
	m.operations.Inc(ctx, metrics.L("operation", op), metrics.L(metrics.LabelOutcome, outcome.String()))
}

func (m *serviceMetrics) observeSweep(ctx context.Context, d time.Duration) {
	m.sweepDuration.Record(ctx, d.Seconds())
}

func (m *serviceMetrics) observeSweepAction(ctx context.Context, action SweepAction) {
	m.sweepLocks.Inc(ctx, metrics.L("action", action.String()))
}

func (m *serviceMetrics) observeNotifyFailure(ctx context.Context, call string) {
	m.notifyFailures.Inc(ctx, metrics.L("call", call))
}
