package dlock

import (
	"context"

	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/xerrors"
)

const (
	// MetricLockOperations 加锁/释放次数 (Counter)，按 operation 与 result 区分
	MetricLockOperations = "dlock_operations_total"

	// MetricLockHoldDuration 持锁时长 (Histogram)
	MetricLockHoldDuration = "dlock_hold_duration_seconds"
)

type lockMetrics struct {
	ops  metrics.Counter
	hold metrics.Histogram
}

func newLockMetrics(m metrics.Meter) (*lockMetrics, error) {
	ops, err := m.Counter(MetricLockOperations, "Distributed lock operations by operation and result.")
	if err != nil {
		return nil, xerrors.Wrap(err, "dlock: create operations counter")
	}
	hold, err := m.Histogram(MetricLockHoldDuration, "Time a distributed lock was held.", metrics.WithUnit("s"))
	if err != nil {
		return nil, xerrors.Wrap(err, "dlock: create hold histogram")
	}
	return &lockMetrics{ops: ops, hold: hold}, nil
}

func (m *lockMetrics) observe(ctx context.Context, op, result string) {
	m.ops.Inc(ctx, metrics.L("operation", op), metrics.L("result", result))
}
