package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/testkit"
	"github.com/ceyewan/chanlock/xerrors"
)

func newTestStore(t *testing.T) (*Redis, context.Context) {
	t.Helper()
	kit := testkit.NewKit(t)
	conn, _ := testkit.NewRedisConnector(t)
	s, err := NewRedis(conn, WithLogger(kit.Logger), WithScanCount(2))
	require.NoError(t, err)
	return s, kit.Ctx
}

// ============================================================================
// 哈希
// ============================================================================

func TestRedis_HashRoundTrip(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "channel_lock_" + testkit.NewID()

	got, err := s.HashRead(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got, "不存在的键应返回空 map")

	require.NoError(t, s.HashWriteAll(ctx, key, map[string]string{
		"owner_id":    "U1",
		"expiry_time": "100",
	}))
	require.NoError(t, s.HashWriteField(ctx, key, "message_ref", "C1:1.2"))

	got, err = s.HashRead(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner_id": "U1", "expiry_time": "100", "message_ref": "C1:1.2"}, got)

	got, err = s.HashRead(ctx, key, "owner_id", "annotation")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner_id": "U1"}, got, "只返回存在的字段")

	require.NoError(t, s.HashDelete(ctx, key, "message_ref"))
	got, _ = s.HashRead(ctx, key)
	assert.NotContains(t, got, "message_ref")

	require.NoError(t, s.HashDelete(ctx, key))
	got, _ = s.HashRead(ctx, key)
	assert.Empty(t, got)
}

func TestRedis_HashWriteAllEmpty(t *testing.T) {
	s, ctx := newTestStore(t)
	require.NoError(t, s.HashWriteAll(ctx, "k", nil))
	got, err := s.HashRead(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedis_HashCompareAndSwap(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "channel_lock_" + testkit.NewID()
	expect := map[string]string{"owner_id": "U1", "expiry_time": "100"}

	ok, err := s.HashCompareAndSwap(ctx, key, expect, "expiry_announced", "1")
	require.NoError(t, err)
	assert.False(t, ok, "键不存在时不写入")
	got, _ := s.HashRead(ctx, key)
	assert.Empty(t, got)

	require.NoError(t, s.HashWriteAll(ctx, key, map[string]string{"owner_id": "U1", "expiry_time": "100"}))

	ok, err = s.HashCompareAndSwap(ctx, key, map[string]string{"owner_id": "U2"}, "expiry_announced", "1")
	require.NoError(t, err)
	assert.False(t, ok, "期望字段不匹配")

	ok, err = s.HashCompareAndSwap(ctx, key, expect, "expiry_announced", "1")
	require.NoError(t, err)
	assert.True(t, ok, "缺失字段按空串比较")

	ok, err = s.HashCompareAndSwap(ctx, key, expect, "expiry_announced", "1")
	require.NoError(t, err)
	assert.False(t, ok, "当前值已等于目标值")

	ok, err = s.HashCompareAndSwap(ctx, key, map[string]string{"annotation": ""}, "annotation", "x")
	require.NoError(t, err)
	assert.True(t, ok, "期望空串可匹配缺失字段")

	got, _ = s.HashRead(ctx, key)
	assert.Equal(t, "1", got["expiry_announced"])
	assert.Equal(t, "x", got["annotation"])
}

func TestRedis_HashCompareAndSwapConcurrent(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "channel_lock_" + testkit.NewID()
	require.NoError(t, s.HashWriteAll(ctx, key, map[string]string{"owner_id": "U1", "expiry_announced": "0"}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.HashCompareAndSwap(ctx, key, map[string]string{"owner_id": "U1"}, "expiry_announced", "1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "只有一个调用者能完成切换")
}

func TestRedis_HashDeleteIf(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "channel_lock_" + testkit.NewID()

	ok, err := s.HashDeleteIf(ctx, key, map[string]string{"owner_id": ""})
	require.NoError(t, err)
	assert.False(t, ok, "键不存在")

	require.NoError(t, s.HashWriteAll(ctx, key, map[string]string{"owner_id": "U2", "expiry_time": "200"}))

	ok, err = s.HashDeleteIf(ctx, key, map[string]string{"owner_id": "U1", "expiry_time": "200"})
	require.NoError(t, err)
	assert.False(t, ok)
	got, _ := s.HashRead(ctx, key)
	assert.NotEmpty(t, got, "不匹配时保留记录")

	ok, err = s.HashDeleteIf(ctx, key, map[string]string{"owner_id": "U2", "expiry_time": "200"})
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ = s.HashRead(ctx, key)
	assert.Empty(t, got)
}

func TestRedis_HashIncrByConcurrent(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "channel_stats_" + testkit.NewID()

	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.HashIncrBy(ctx, key, "locks_count", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.HashIncrBy(ctx, key, "locks_count", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

// ============================================================================
// 集合
// ============================================================================

func TestRedis_SetAddPop(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "ping_" + testkit.NewID()

	added, err := s.SetAdd(ctx, key, "U2")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.SetAdd(ctx, key, "U2")
	require.NoError(t, err)
	assert.False(t, added, "重复添加应返回 false")

	_, _ = s.SetAdd(ctx, key, "U1")

	members, err := s.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, members)

	popped, err := s.SetPopAll(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, popped)

	popped, err = s.SetPopAll(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, popped, "取空后再次取出应为空")

	added, _ = s.SetAdd(ctx, key, "U2")
	assert.True(t, added, "取空后可以再次加入")
}

func TestRedis_SetPopAllConcurrent(t *testing.T) {
	s, ctx := newTestStore(t)
	key := "ping_concurrent"

	for i := range 50 {
		_, err := s.SetAdd(ctx, key, fmt.Sprintf("U%02d", i))
		require.NoError(t, err)
	}

	var (
		mu    sync.Mutex
		total []string
		wg    sync.WaitGroup
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			popped, err := s.SetPopAll(ctx, key)
			assert.NoError(t, err)
			mu.Lock()
			total = append(total, popped...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, total, 50, "每个成员只能被取出一次")
	assert.ElementsMatch(t, total, uniq(total))
}

func uniq(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// ============================================================================
// 键枚举
// ============================================================================

func TestRedis_KeysByPrefix(t *testing.T) {
	s, ctx := newTestStore(t)

	for _, name := range []string{"C1", "C2", "C3", "C4", "C5"} {
		require.NoError(t, s.HashWriteField(ctx, "channel_lock_"+name, "owner_id", "U"))
	}
	_, _ = s.SetAdd(ctx, "ping_C1", "U2")
	require.NoError(t, s.HashWriteField(ctx, "channel_stats_C1", "locks_count", "1"))

	keys, err := s.KeysByPrefix(ctx, "channel_lock_")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"channel_lock_C1", "channel_lock_C2", "channel_lock_C3", "channel_lock_C4", "channel_lock_C5",
	}, keys)

	keys, err = s.KeysByPrefix(ctx, "nothing_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "channel_lock_", escapeGlob("channel_lock_"))
	assert.Equal(t, `a\*b\?\[c\]\\`, escapeGlob(`a*b?[c]\`))
}

// ============================================================================
// 故障
// ============================================================================

func TestRedis_Unavailable(t *testing.T) {
	kit := testkit.NewKit(t)
	conn, mr := testkit.NewRedisConnector(t)
	s, err := NewRedis(conn)
	require.NoError(t, err)

	mr.Close()

	_, err = s.HashRead(kit.Ctx, "k")
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable), "存储故障应标记为 ErrUnavailable: %v", err)

	_, err = s.SetAdd(kit.Ctx, "k", "m")
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))

	_, err = s.SetPopAll(kit.Ctx, "k")
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))

	_, err = s.KeysByPrefix(kit.Ctx, "k")
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))

	err = s.HashWriteAll(kit.Ctx, "k", map[string]string{"a": "b"})
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))

	_, err = s.HashCompareAndSwap(kit.Ctx, "k", nil, "a", "b")
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))

	_, err = s.HashDeleteIf(kit.Ctx, "k", nil)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))

	_, err = s.HashIncrBy(kit.Ctx, "k", "a", 1)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))
}

func TestNewRedis_NilClient(t *testing.T) {
	_, err := NewRedis(nil)
	assert.ErrorIs(t, err, ErrClientNil)

	_, err = NewRedisFromClient(nil)
	assert.ErrorIs(t, err, ErrClientNil)
}
