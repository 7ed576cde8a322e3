package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/xerrors"

	"github.com/sony/gobreaker/v2"
)

// circuitBreaker 熔断器实现（非导出）
type circuitBreaker struct {
	cfg    *Config
	logger clog.Logger

	requests     metrics.Counter
	duration     metrics.Histogram
	stateChanges metrics.Counter

	breakers sync.Map // map[string]*gobreaker.CircuitBreaker[any]
}

func newBreaker(cfg *Config, o *options) (Breaker, error) {
	requests, err := o.meter.Counter(MetricRequestsTotal, "Requests through the circuit breaker by key and result.")
	if err != nil {
		return nil, xerrors.Wrap(err, "breaker: create requests counter")
	}
	duration, err := o.meter.Histogram(MetricRequestDuration, "Duration of protected calls.", metrics.WithUnit("s"))
	if err != nil {
		return nil, xerrors.Wrap(err, "breaker: create duration histogram")
	}
	stateChanges, err := o.meter.Counter(MetricStateChanges, "Circuit breaker state changes.")
	if err != nil {
		return nil, xerrors.Wrap(err, "breaker: create state changes counter")
	}

	return &circuitBreaker{
		cfg:          cfg,
		logger:       o.logger,
		requests:     requests,
		duration:     duration,
		stateChanges: stateChanges,
	}, nil
}

// Execute 执行受熔断保护的函数
func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	breaker := cb.getOrCreateBreaker(key)

	start := time.Now()
	result, err := breaker.Execute(fn)
	cb.recordMetrics(ctx, key, err, time.Since(start))

	if xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests) {
		cb.logger.Debug("call rejected by circuit breaker", clog.String("key", key), clog.Error(err))
		return nil, ErrOpenState
	}
	return result, err
}

// State 获取指定键的熔断器状态
func (cb *circuitBreaker) State(key string) (State, error) {
	if key == "" {
		return StateClosed, ErrKeyEmpty
	}

	val, ok := cb.breakers.Load(key)
	if !ok {
		return StateClosed, ErrBreakerNotFound
	}

	switch val.(*gobreaker.CircuitBreaker[any]).State() {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen, nil
	case gobreaker.StateOpen:
		return StateOpen, nil
	default:
		return StateClosed, nil
	}
}

func (cb *circuitBreaker) getOrCreateBreaker(key string) *gobreaker.CircuitBreaker[any] {
	if val, ok := cb.breakers.Load(key); ok {
		return val.(*gobreaker.CircuitBreaker[any])
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:          key,
		MaxRequests:   cb.cfg.MaxRequests,
		Interval:      cb.cfg.Interval,
		Timeout:       cb.cfg.Timeout,
		ReadyToTrip:   cb.readyToTrip,
		OnStateChange: cb.onStateChange,
		IsSuccessful:  isSuccessful,
	})

	// 可能有并发创建，以先存入的为准
	actual, _ := cb.breakers.LoadOrStore(key, breaker)
	return actual.(*gobreaker.CircuitBreaker[any])
}

// readyToTrip 请求数达到下限且失败率超过阈值时熔断
func (cb *circuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < cb.cfg.MinimumRequests {
		return false
	}
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return failureRatio >= cb.cfg.FailureRatio
}

// isSuccessful 调用方主动取消不计为下游故障
func isSuccessful(err error) bool {
	return err == nil || xerrors.Is(err, context.Canceled)
}

func (cb *circuitBreaker) onStateChange(name string, from gobreaker.State, to gobreaker.State) {
	cb.logger.Warn("circuit breaker state changed",
		clog.String("key", name),
		clog.String("from", stateToString(from)),
		clog.String("to", stateToString(to)))

	cb.stateChanges.Inc(context.Background(),
		metrics.L(LabelKey, name),
		metrics.L(LabelFromState, stateToString(from)),
		metrics.L(LabelToState, stateToString(to)))
}

func (cb *circuitBreaker) recordMetrics(ctx context.Context, key string, err error, d time.Duration) {
	result := resultSuccess
	switch {
	case xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests):
		result = resultRejected
	case !isSuccessful(err):
		result = resultFailure
	}
	cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(LabelResult, result))
	if result != resultRejected {
		cb.duration.Record(ctx, d.Seconds(), metrics.L(LabelKey, key))
	}
}

// stateToString 将 gobreaker.State 转换为字符串
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
