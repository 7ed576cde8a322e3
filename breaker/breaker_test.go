package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

func newTestBreaker(t *testing.T, cfg *Config) Breaker {
	t.Helper()
	brk, err := New(cfg, WithLogger(clog.Discard()))
	if err != nil {
		t.Fatalf("New should not return error, got: %v", err)
	}
	return brk
}

// TestNewBreakerNilConfig 测试 nil 配置
func TestNewBreakerNilConfig(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("期望 ErrConfigNil，得到 %v", err)
	}
}

// TestNewBreakerInvalidConfig 测试非法失败率
func TestNewBreakerInvalidConfig(t *testing.T) {
	_, err := New(&Config{FailureRatio: 1.5})
	if !xerrors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("期望 ErrInvalidInput，得到 %v", err)
	}
}

// TestExecuteSuccess 测试成功执行
func TestExecuteSuccess(t *testing.T) {
	brk := newTestBreaker(t, &Config{MinimumRequests: 3})

	result, err := brk.Execute(context.Background(), "post", func() (any, error) {
		return "ts-1", nil
	})
	if err != nil {
		t.Fatalf("Execute should not return error, got: %v", err)
	}
	if result != "ts-1" {
		t.Errorf("result = %v", result)
	}

	state, err := brk.State("post")
	if err != nil || state != StateClosed {
		t.Errorf("State = %v, %v，期望 closed", state, err)
	}
}

// TestExecuteEmptyKey 测试空键
func TestExecuteEmptyKey(t *testing.T) {
	brk := newTestBreaker(t, &Config{})
	if _, err := brk.Execute(context.Background(), "", func() (any, error) { return nil, nil }); !errors.Is(err, ErrKeyEmpty) {
		t.Fatalf("期望 ErrKeyEmpty，得到 %v", err)
	}
	if _, err := brk.State("never-used"); !errors.Is(err, ErrBreakerNotFound) {
		t.Fatalf("期望 ErrBreakerNotFound，得到 %v", err)
	}
}

// TestBreakerOpensAndRecovers 测试熔断与半开恢复
func TestBreakerOpensAndRecovers(t *testing.T) {
	brk := newTestBreaker(t, &Config{
		MaxRequests:     1,
		Timeout:         50 * time.Millisecond,
		FailureRatio:    0.5,
		MinimumRequests: 3,
	})
	ctx := context.Background()
	boom := errors.New("slack down")

	calls := 0
	failing := func() (any, error) {
		calls++
		return nil, boom
	}

	for i := 0; i < 3; i++ {
		if _, err := brk.Execute(ctx, "direct", failing); !errors.Is(err, boom) {
			t.Fatalf("第 %d 次调用应返回原始错误，得到 %v", i+1, err)
		}
	}

	state, _ := brk.State("direct")
	if state != StateOpen {
		t.Fatalf("State = %v，期望 open", state)
	}

	_, err := brk.Execute(ctx, "direct", failing)
	if !errors.Is(err, ErrOpenState) {
		t.Fatalf("打开状态应快速失败，得到 %v", err)
	}
	if !xerrors.Is(err, xerrors.ErrUnavailable) {
		t.Error("ErrOpenState 应匹配 ErrUnavailable")
	}
	if calls != 3 {
		t.Errorf("打开状态不应调用下游，calls = %d", calls)
	}

	// 其他键不受影响
	if _, err := brk.Execute(ctx, "post", func() (any, error) { return nil, nil }); err != nil {
		t.Errorf("其他键应正常放行，得到 %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := brk.Execute(ctx, "direct", func() (any, error) { return nil, nil }); err != nil {
		t.Fatalf("半开探测应放行，得到 %v", err)
	}
	state, _ = brk.State("direct")
	if state != StateClosed {
		t.Errorf("探测成功后 State = %v，期望 closed", state)
	}
}

// TestCanceledIsNotFailure 测试调用方取消不计入失败率
func TestCanceledIsNotFailure(t *testing.T) {
	brk := newTestBreaker(t, &Config{FailureRatio: 0.5, MinimumRequests: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = brk.Execute(ctx, "update", func() (any, error) { return nil, context.Canceled })
	}
	state, _ := brk.State("update")
	if state != StateClosed {
		t.Errorf("State = %v，期望 closed", state)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{StateClosed: "closed", StateHalfOpen: "half_open", StateOpen: "open", State(9): "unknown"}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q，期望 %q", s, s.String(), want)
		}
	}
}
