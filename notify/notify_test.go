package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/breaker"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/testkit"
	"github.com/ceyewan/chanlock/xerrors"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newCountingNotifier() *countingNotifier {
	return &countingNotifier{calls: map[string]int{}}
}

func (n *countingNotifier) hit(kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[kind]++
	return n.err
}

func (n *countingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[kind]
}

func (n *countingNotifier) PostInit(_ context.Context, name, _ string) (string, error) {
	if err := n.hit(CallPostInit); err != nil {
		return "", err
	}
	return name + ":1", nil
}

func (n *countingNotifier) Update(context.Context, string, string, bool) error {
	return n.hit(CallUpdate)
}

func (n *countingNotifier) Direct(context.Context, string, string, string) error {
	return n.hit(CallDirect)
}

func (n *countingNotifier) React(context.Context, string, string) error {
	return n.hit(CallReact)
}

func (n *countingNotifier) Post(context.Context, string, string) error {
	return n.hit(CallPost)
}

// ============================================================================
// Breaker
// ============================================================================

func newTestBreaker(t *testing.T) breaker.Breaker {
	t.Helper()
	brk, err := breaker.New(&breaker.Config{
		Timeout:         time.Minute,
		FailureRatio:    0.5,
		MinimumRequests: 2,
	}, breaker.WithLogger(testkit.NewLogger()), breaker.WithMeter(testkit.NewMeter()))
	require.NoError(t, err)
	return brk
}

func TestNewBreaker_NilArgs(t *testing.T) {
	_, err := NewBreaker(nil, newTestBreaker(t))
	assert.ErrorIs(t, err, ErrNotifierNil)

	_, err = NewBreaker(newCountingNotifier(), nil)
	assert.ErrorIs(t, err, ErrBreakerNil)
}

func TestBreaker_PassesThrough(t *testing.T) {
	ctx := context.Background()
	inner := newCountingNotifier()
	n, err := NewBreaker(inner, newTestBreaker(t))
	require.NoError(t, err)

	ref, err := n.PostInit(ctx, "C1", "🔐 _LOCK_")
	require.NoError(t, err)
	assert.Equal(t, "C1:1", ref)

	require.NoError(t, n.Update(ctx, ref, "🔓", true))
	require.NoError(t, n.React(ctx, ref, "unlock"))
	require.NoError(t, n.Direct(ctx, "C1", "expiring", "U1"))
	require.NoError(t, n.Post(ctx, "C1", "🔓 _unlock_"))

	for _, kind := range []string{CallPostInit, CallUpdate, CallReact, CallDirect, CallPost} {
		assert.Equal(t, 1, inner.count(kind), kind)
	}
}

func TestBreaker_OpensPerCallKind(t *testing.T) {
	ctx := context.Background()
	inner := newCountingNotifier()
	brk := newTestBreaker(t)
	n, err := NewBreaker(inner, brk)
	require.NoError(t, err)

	boom := errors.New("rate_limited")
	inner.err = boom

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, n.Direct(ctx, "C1", "x", "U1"), boom)
	}

	err = n.Direct(ctx, "C1", "x", "U1")
	assert.ErrorIs(t, err, breaker.ErrOpenState)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))
	assert.Equal(t, 2, inner.count(CallDirect), "打开状态不应调用下游")

	state, err := brk.State(CallDirect)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateOpen, state)

	// post 的熔断器独立
	inner.err = nil
	require.NoError(t, n.Post(ctx, "C1", "x"))
	assert.Equal(t, 1, inner.count(CallPost))
}

func TestBreaker_PostInitOpenReturnsEmptyRef(t *testing.T) {
	ctx := context.Background()
	inner := newCountingNotifier()
	inner.err = errors.New("down")
	n, err := NewBreaker(inner, newTestBreaker(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ref, err := n.PostInit(ctx, "C1", "x")
		assert.Error(t, err)
		assert.Empty(t, ref)
	}
	assert.Equal(t, 2, inner.count(CallPostInit))
}

// ============================================================================
// Log
// ============================================================================

func TestLog_RefsAndOutput(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	logger, err := clog.New(&clog.Config{Level: "info", Format: "json"}, clog.WithWriter(buf))
	require.NoError(t, err)

	n := NewLog(logger)

	ref1, err := n.PostInit(ctx, "C1", "🔐 _LOCK_ deploy")
	require.NoError(t, err)
	ref2, err := n.PostInit(ctx, "C1", "🔐 _LOCK_ again")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref1, "C1:"))
	assert.NotEqual(t, ref1, ref2)

	require.NoError(t, n.Update(ctx, ref1, "🔓 ~_LOCK_~", true))
	require.NoError(t, n.React(ctx, ref1, "unlock"))
	require.NoError(t, n.Direct(ctx, "C1", "expiring", "U1"))
	require.NoError(t, n.Post(ctx, "C1", "🔓 _unlock_"))

	out := buf.String()
	assert.Contains(t, out, "deploy")
	assert.Contains(t, out, `"user":"U1"`)
	assert.Equal(t, 6, strings.Count(out, "\n"))
}

func TestLog_UnknownRef(t *testing.T) {
	n := NewLog(nil)
	assert.ErrorIs(t, n.Update(context.Background(), "garbage", "x", false), ErrUnknownRef)
	assert.ErrorIs(t, n.React(context.Background(), "garbage", "unlock"), ErrUnknownRef)
}
