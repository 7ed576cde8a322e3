package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/notify"
	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/testkit"
	"github.com/ceyewan/chanlock/xerrors"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	kit   *testkit.Kit
	mr    *miniredis.Miniredis
	store *store.Redis
	clock *clock
	rec   *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kit := testkit.NewKit(t)
	conn, mr := testkit.NewRedisConnector(t)
	st, err := store.NewRedis(conn)
	require.NoError(t, err)

	c := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	rec, err := New(st, WithLogger(kit.Logger), WithClock(c.Now), WithLocation(time.UTC))
	require.NoError(t, err)
	return &fixture{kit: kit, mr: mr, store: st, clock: c, rec: rec}
}

func TestNew_NilStore(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrStoreNil)
}

func TestGet_Empty(t *testing.T) {
	f := newFixture(t)

	s, err := f.rec.Get(f.kit.Ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "C1", s.Name)
	assert.Zero(t, s.LocksCount)
	assert.Equal(t, f.clock.Now(), s.CreatedTime.UTC())

	_, err = f.rec.Get(f.kit.Ctx, " ")
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
}

func TestMarkLockAndExtend(t *testing.T) {
	f := newFixture(t)
	ctx := f.kit.Ctx

	require.NoError(t, f.rec.MarkLock(ctx, "C1", 30))
	require.NoError(t, f.rec.MarkLock(ctx, "C1", 50))
	require.NoError(t, f.rec.MarkExtend(ctx, "C1", 20))
	require.NoError(t, f.rec.MarkLock(ctx, "C2", 10))

	s, err := f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.LocksCount)
	assert.Equal(t, 1, s.ExtendsCount)
	assert.Equal(t, 100, s.LockMinutes)
	assert.Equal(t, 50, s.LongestLock)

	assert.Equal(t, "2", f.mr.HGet("channel_stats_C1", "locks_count"))
	assert.Equal(t, "1", f.mr.HGet("channel_stats_C2", "locks_count"))
}

func TestMarkLock_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := f.kit.Ctx

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.rec.MarkLock(ctx, "C1", i+1))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.rec.MarkExtend(ctx, "C1", 1))
		}()
	}
	wg.Wait()

	s, err := f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 20, s.LocksCount, "并发记录不丢失")
	assert.Equal(t, 20, s.ExtendsCount)
	assert.Equal(t, 210+20, s.LockMinutes)
	assert.Equal(t, 20, s.LongestLock)
}

func TestRollOver_KeepsTodayRecord(t *testing.T) {
	f := newFixture(t)
	ctx := f.kit.Ctx
	require.NoError(t, f.rec.MarkLock(ctx, "C1", 30))

	f.clock.Set(time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))
	require.NoError(t, f.rec.MarkLock(ctx, "C1", 10))
	require.NoError(t, f.rec.MarkLock(ctx, "C1", 5))

	s, err := f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.LocksCount)
	assert.Equal(t, 10, s.LongestLock)
	assert.Equal(t, f.clock.Now(), s.CreatedTime.UTC())
	assert.Equal(t, "C1", f.mr.HGet("channel_stats_C1", "channel_id"))
}

func TestRollOverNextDay(t *testing.T) {
	f := newFixture(t)
	ctx := f.kit.Ctx

	require.NoError(t, f.rec.MarkLock(ctx, "C1", 30))

	// 同一天内不滚动
	f.clock.Set(time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC))
	s, err := f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.LocksCount)

	f.clock.Set(time.Date(2026, 3, 3, 0, 1, 0, 0, time.UTC))
	s, err = f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Zero(t, s.LocksCount)
	assert.False(t, f.mr.Exists("channel_stats_C1"), "过期的统计应被删除")

	require.NoError(t, f.rec.MarkExtend(ctx, "C1", 15))
	s, err = f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.LocksCount)
	assert.Equal(t, 1, s.ExtendsCount)
}

func TestCorruptRecordResets(t *testing.T) {
	f := newFixture(t)
	f.mr.HSet("channel_stats_C1", "locks_count", "7")

	s, err := f.rec.Get(f.kit.Ctx, "C1")
	require.NoError(t, err)
	assert.Zero(t, s.LocksCount)
	assert.False(t, f.mr.Exists("channel_stats_C1"))
}

func TestUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	err := f.rec.MarkLock(f.kit.Ctx, "C1", 10)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))
}

func TestFormat(t *testing.T) {
	got := Format(Stats{LocksCount: 3, ExtendsCount: 1})
	assert.Equal(t, "Hello yes, see today stats:\nnumber of locks: 3\nnumber of lock extends: 1", got)
}

// 锁服务通过 StatsRecorder 接口写入统计
func TestRecorder_WiredIntoService(t *testing.T) {
	f := newFixture(t)
	ctx := f.kit.Ctx

	svc, err := chanlock.New(chanlock.DefaultConfig(), f.store, notify.NewLog(nil),
		chanlock.WithStats(f.rec), chanlock.WithClock(f.clock.Now))
	require.NoError(t, err)

	res := svc.Acquire(ctx, chanlock.Request{Name: "C1", UserID: "U1", Minutes: 40})
	require.Equal(t, chanlock.OutcomeAcquired, res.Outcome)
	res = svc.Acquire(ctx, chanlock.Request{Name: "C1", UserID: "U1", Minutes: 10})
	require.Equal(t, chanlock.OutcomeExtended, res.Outcome)

	s, err := f.rec.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.LocksCount)
	assert.Equal(t, 1, s.ExtendsCount)
	assert.Equal(t, 50, s.LockMinutes)
}
