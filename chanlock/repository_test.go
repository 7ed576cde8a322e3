package chanlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/xerrors"
)

func TestRepository_WriteRead(t *testing.T) {
	f := newFixture(t, nil)
	repo := f.svc.Repository()
	now := f.clock.Now()

	lock := &Lock{
		Name:       "C1",
		OwnerID:    "U1",
		OwnerName:  "alice",
		InitTime:   now,
		ExpiryTime: now.Add(30 * time.Minute),
		MessageRef: "C1:1.000",
		Annotation: "db migration",
	}
	require.NoError(t, repo.Write(f.ctx, lock))

	got, err := repo.Read(f.ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lock.OwnerID, got.OwnerID)
	assert.Equal(t, lock.ExpiryTime.Unix(), got.ExpiryTime.Unix())
	assert.Equal(t, lock.Annotation, got.Annotation)

	// 原始存储布局
	assert.Equal(t, "U1", f.mr.HGet("channel_lock_C1", "owner_id"))
	assert.Equal(t, "C1", f.mr.HGet("channel_lock_C1", "channel_id"))
	assert.Equal(t, "0", f.mr.HGet("channel_lock_C1", "owner_warned"))

	byKey, err := repo.ReadKey(f.ctx, "channel_lock_C1")
	require.NoError(t, err)
	assert.Equal(t, got, byKey)
}

func TestRepository_ReadMissing(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.svc.Repository().Read(f.ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_StaleRecordIsAbsent(t *testing.T) {
	f := newFixture(t, nil)
	repo := f.svc.Repository()
	now := f.clock.Now()

	require.NoError(t, repo.Write(f.ctx, &Lock{
		Name:            "C1",
		OwnerID:         "U1",
		InitTime:        now.Add(-time.Hour),
		ExpiryTime:      now.Add(-time.Minute),
		ExpiryAnnounced: true,
	}))

	got, err := repo.Read(f.ctx, "C1")
	require.NoError(t, err)
	assert.Nil(t, got, "已到期且已公告的记录视为不存在")
	assert.False(t, f.mr.Exists("channel_lock_C1"), "读取时顺带删除过期记录")

	got, err = repo.Read(f.ctx, "C1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_AnnouncedButNotExpiredIsPresent(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()
	require.NoError(t, f.svc.Repository().Write(f.ctx, &Lock{
		Name: "C1", OwnerID: "U1", InitTime: now, ExpiryTime: now.Add(time.Minute), ExpiryAnnounced: true,
	}))

	got := f.read(t, "C1")
	require.NotNil(t, got)
	assert.True(t, got.ExpiryAnnounced)
}

func TestRepository_CorruptRecordDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.mr.HSet("channel_lock_C1", "message_ref", "C1:9.000")

	got, err := f.svc.Repository().Read(f.ctx, "C1")
	require.NoError(t, err)
	assert.Nil(t, got, "缺少持有者的残留记录不能被当作锁")
	assert.False(t, f.mr.Exists("channel_lock_C1"))
}

func TestRepository_WriteOverwritesAllFields(t *testing.T) {
	f := newFixture(t, nil)
	repo := f.svc.Repository()
	now := f.clock.Now()

	require.NoError(t, repo.Write(f.ctx, &Lock{
		Name: "C1", OwnerID: "U1", InitTime: now, ExpiryTime: now.Add(time.Minute),
		OwnerWarned: true, MessageRef: "C1:1.000", Annotation: "old",
	}))
	require.NoError(t, repo.Write(f.ctx, &Lock{
		Name: "C1", OwnerID: "U2", InitTime: now, ExpiryTime: now.Add(time.Minute),
	}))

	got := f.read(t, "C1")
	assert.Equal(t, "U2", got.OwnerID)
	assert.False(t, got.OwnerWarned)
	assert.Empty(t, got.MessageRef)
	assert.Empty(t, got.Annotation)
}

func TestRepository_FieldUpdates(t *testing.T) {
	f := newFixture(t, nil)
	repo := f.svc.Repository()
	now := f.clock.Now()
	require.NoError(t, repo.Write(f.ctx, &Lock{Name: "C1", OwnerID: "U1", InitTime: now, ExpiryTime: now.Add(time.Hour)}))

	require.NoError(t, repo.SetMessageRef(f.ctx, "C1", "C1:5.000"))
	require.NoError(t, repo.MarkOwnerWarned(f.ctx, "C1"))
	require.NoError(t, repo.MarkExpiryAnnounced(f.ctx, "C1"))

	got := f.read(t, "C1")
	assert.Equal(t, "C1:5.000", got.MessageRef)
	assert.True(t, got.OwnerWarned)
	assert.True(t, got.ExpiryAnnounced)

	require.NoError(t, repo.Delete(f.ctx, "C1"))
	assert.Nil(t, f.read(t, "C1"))
}

func TestRepository_WriteInvalid(t *testing.T) {
	f := newFixture(t, nil)
	repo := f.svc.Repository()
	now := f.clock.Now()

	err := repo.Write(f.ctx, &Lock{Name: "C1"})
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))

	err = repo.Write(f.ctx, &Lock{Name: "C1", OwnerID: "U1", InitTime: now, ExpiryTime: now.Add(-time.Second)})
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput), "到期时间不能早于获取时间")

	_, err = repo.ReadKey(f.ctx, "ping_C1")
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
}

func TestRepository_ReadUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.store.failOn("HashRead", "")

	got, err := f.svc.Repository().Read(f.ctx, "C1")
	assert.Nil(t, got)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable), "存储故障不能表现为锁不存在")
}

func TestLock_TimeHelpers(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	l := &Lock{ExpiryTime: now.Add(5 * time.Second)}

	assert.False(t, l.Expired(now))
	assert.True(t, l.Expired(now.Add(5*time.Second)), "到达到期时间即视为到期")
	assert.True(t, l.Expiring(now, 10*time.Minute))
	assert.False(t, l.Expiring(now.Add(-time.Hour), 10*time.Minute))
	assert.Equal(t, 1, l.RemainingMinutes(now))
	assert.Equal(t, 0, l.RemainingMinutes(now.Add(time.Minute)))

	l.ExpiryTime = now.Add(20 * time.Minute)
	assert.Equal(t, 20, l.RemainingMinutes(now))
}

// ============================================================================
// 等待队列
// ============================================================================

func TestWaiters_ExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	w := f.svc.Waiters()

	added, err := w.Add(f.ctx, "C1", "U2")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = w.Add(f.ctx, "C1", "U2")
	require.NoError(t, err)
	assert.False(t, added, "drain 之前重复加入返回 false")

	assert.True(t, f.mr.Exists("ping_C1"))

	users, err := w.Drain(f.ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U2"}, users)

	users, err = w.Drain(f.ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, users, "每个等待者只被通知一次")

	added, err = w.Add(f.ctx, "C1", "U2")
	require.NoError(t, err)
	assert.True(t, added, "drain 之后可以重新加入")
}

func TestWaiters_NilStore(t *testing.T) {
	_, err := NewWaiters(nil, "ping_")
	assert.ErrorIs(t, err, ErrStoreNil)

	_, err = NewRepository(nil, "channel_lock_")
	assert.ErrorIs(t, err, ErrStoreNil)
}

func TestRepository_List(t *testing.T) {
	f := newFixture(t, nil)
	repo := f.svc.Repository()
	now := f.clock.Now()

	for _, name := range []string{"C2", "C1"} {
		require.NoError(t, repo.Write(f.ctx, &Lock{Name: name, OwnerID: "U1", InitTime: now, ExpiryTime: now.Add(time.Hour)}))
	}
	// 已公告的过期记录与损坏记录不出现在列表中
	require.NoError(t, repo.Write(f.ctx, &Lock{Name: "C3", OwnerID: "U2", InitTime: now.Add(-time.Hour), ExpiryTime: now.Add(-time.Minute), ExpiryAnnounced: true}))
	f.mr.HSet("channel_lock_C4", "annotation", "no owner")

	locks, err := f.svc.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, "C1", locks[0].Name)
	assert.Equal(t, "C2", locks[1].Name)
}
