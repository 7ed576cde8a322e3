package dlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/testkit"
	"github.com/ceyewan/chanlock/xerrors"
)

func TestNew_Validation(t *testing.T) {
	conn, _ := testkit.NewRedisConnector(t)

	_, err := New(nil, &Config{})
	assert.ErrorIs(t, err, ErrConnectorNil)

	_, err = New(conn, nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(conn, &Config{DefaultTTL: 500 * time.Millisecond})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
}

func TestTryLock_Exclusive(t *testing.T) {
	conn, mr := testkit.NewRedisConnector(t)
	ctx := context.Background()

	a, err := New(conn, &Config{}, WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter()))
	require.NoError(t, err)
	b, err := New(conn, &Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ok, err := a.TryLock(ctx, "sweep")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("chanlock:dlock:sweep"))
	assert.Equal(t, 30*time.Second, mr.TTL("chanlock:dlock:sweep"))

	// 同一实例重复加锁
	_, err = a.TryLock(ctx, "sweep")
	assert.ErrorIs(t, err, ErrLockAlreadyHeld)

	ok, err = b.TryLock(ctx, "sweep")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock(ctx, "sweep"))
	assert.False(t, mr.Exists("chanlock:dlock:sweep"))

	ok, err = b.TryLock(ctx, "sweep")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx, "sweep"))
}

func TestTryLock_WithTTL(t *testing.T) {
	conn, mr := testkit.NewRedisConnector(t)
	l, err := New(conn, &Config{Prefix: "p:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	ok, err := l.TryLock(context.Background(), "k", WithTTL(5*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, mr.TTL("p:k"))
}

func TestUnlock_Errors(t *testing.T) {
	conn, mr := testkit.NewRedisConnector(t)
	ctx := context.Background()
	l, err := New(conn, &Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	assert.ErrorIs(t, l.Unlock(ctx, "missing"), ErrLockNotHeld)

	ok, err := l.TryLock(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	// 锁被他人覆盖后释放失败，且不删除他人的锁
	mr.Set("chanlock:dlock:k", "someone-else")
	assert.ErrorIs(t, l.Unlock(ctx, "k"), ErrOwnershipLost)
	v, err := mr.Get("chanlock:dlock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestLock_WaitsForRelease(t *testing.T) {
	conn, _ := testkit.NewRedisConnector(t)
	ctx := context.Background()

	a, err := New(conn, &Config{})
	require.NoError(t, err)
	b, err := New(conn, &Config{RetryInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ok, err := a.TryLock(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- b.Lock(ctx, "k") }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.Unlock(ctx, "k"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Lock did not acquire after release")
	}
	require.NoError(t, b.Unlock(ctx, "k"))
}

func TestLock_ContextCanceled(t *testing.T) {
	conn, _ := testkit.NewRedisConnector(t)
	a, err := New(conn, &Config{})
	require.NoError(t, err)
	b, err := New(conn, &Config{RetryInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	ok, err := a.TryLock(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Lock(ctx, "k"), context.DeadlineExceeded)
}
