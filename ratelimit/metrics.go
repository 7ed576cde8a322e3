package ratelimit

import (
	"context"

	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/xerrors"
)

// Metrics 指标常量定义
const (
	// MetricAllowed 允许通过的请求数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 被拒绝的请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricErrors 限流器错误数 (Counter)
	MetricErrors = "ratelimit_errors_total"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"
)

type limiterMetrics struct {
	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
}

func newLimiterMetrics(m metrics.Meter) (*limiterMetrics, error) {
	allowed, err := m.Counter(MetricAllowed, "Number of allowed requests")
	if err != nil {
		return nil, xerrors.Wrap(err, "ratelimit: create allowed counter")
	}
	denied, err := m.Counter(MetricDenied, "Number of denied requests")
	if err != nil {
		return nil, xerrors.Wrap(err, "ratelimit: create denied counter")
	}
	errs, err := m.Counter(MetricErrors, "Number of limiter errors")
	if err != nil {
		return nil, xerrors.Wrap(err, "ratelimit: create errors counter")
	}
	return &limiterMetrics{allowed: allowed, denied: denied, errors: errs}, nil
}

func (m *limiterMetrics) observe(ctx context.Context, mode Mode, allowed bool, err error) {
	label := metrics.L(LabelMode, string(mode))
	switch {
	case err != nil:
		m.errors.Inc(ctx, label)
	case allowed:
		m.allowed.Inc(ctx, label)
	default:
		m.denied.Inc(ctx, label)
	}
}
