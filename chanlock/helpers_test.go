package chanlock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/chanlock/store"
	"github.com/ceyewan/chanlock/testkit"
	"github.com/ceyewan/chanlock/xerrors"
)

// ============================================================================
// 时钟
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ============================================================================
// Notifier
// ============================================================================

type notifyCall struct {
	Kind     string // post_init, update, direct, react, post
	Name     string
	Ref      string
	Text     string
	User     string
	Unlocked bool
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	fail  map[string]error
	seq   int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{fail: map[string]error{}}
}

func (n *fakeNotifier) failOn(kind string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.fail, kind)
		return
	}
	n.fail[kind] = err
}

func (n *fakeNotifier) record(c notifyCall) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, c)
	return n.fail[c.Kind]
}

func (n *fakeNotifier) PostInit(_ context.Context, name, text string) (string, error) {
	n.mu.Lock()
	n.seq++
	ref := fmt.Sprintf("%s:%d.000", name, n.seq)
	n.mu.Unlock()
	if err := n.record(notifyCall{Kind: "post_init", Name: name, Text: text, Ref: ref}); err != nil {
		return "", err
	}
	return ref, nil
}

func (n *fakeNotifier) Update(_ context.Context, ref, text string, unlocked bool) error {
	return n.record(notifyCall{Kind: "update", Ref: ref, Text: text, Unlocked: unlocked})
}

func (n *fakeNotifier) Direct(_ context.Context, name, text, user string) error {
	return n.record(notifyCall{Kind: "direct", Name: name, Text: text, User: user})
}

func (n *fakeNotifier) React(_ context.Context, ref, reaction string) error {
	return n.record(notifyCall{Kind: "react", Ref: ref, Text: reaction})
}

func (n *fakeNotifier) Post(_ context.Context, name, text string) error {
	return n.record(notifyCall{Kind: "post", Name: name, Text: text})
}

func (n *fakeNotifier) callsOf(kind string) []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifyCall
	for _, c := range n.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// ============================================================================
// 统计与事件
// ============================================================================

type fakeStats struct {
	mu      sync.Mutex
	locks   map[string]int
	extends map[string]int
}

func newFakeStats() *fakeStats {
	return &fakeStats{locks: map[string]int{}, extends: map[string]int{}}
}

func (s *fakeStats) MarkLock(_ context.Context, name string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[name]++
	return nil
}

func (s *fakeStats) MarkExtend(_ context.Context, name string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extends[name]++
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (e *fakeEvents) Publish(_ context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.err
}

func (e *fakeEvents) kinds() []EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EventKind, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Kind
	}
	return out
}

// ============================================================================
// 存储故障注入
// ============================================================================

// faultyStore 在指定方法（可限定键）上返回 ErrUnavailable
type faultyStore struct {
	store.Store
	mu    sync.Mutex
	fails map[string]string // 方法名 -> 键（空串表示所有键）
}

func newFaultyStore(inner store.Store) *faultyStore {
	return &faultyStore{Store: inner, fails: map[string]string{}}
}

func (f *faultyStore) failOn(method, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[method] = key
}

func (f *faultyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = map[string]string{}
}

func (f *faultyStore) check(method, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.fails[method]
	if ok && (k == "" || k == key) {
		return xerrors.Mark(fmt.Errorf("%s %s: connection refused", method, key), xerrors.ErrUnavailable)
	}
	return nil
}

func (f *faultyStore) HashRead(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if err := f.check("HashRead", key); err != nil {
		return nil, err
	}
	return f.Store.HashRead(ctx, key, fields...)
}

func (f *faultyStore) HashWriteAll(ctx context.Context, key string, values map[string]string) error {
	if err := f.check("HashWriteAll", key); err != nil {
		return err
	}
	return f.Store.HashWriteAll(ctx, key, values)
}

func (f *faultyStore) HashWriteField(ctx context.Context, key, field, value string) error {
	if err := f.check("HashWriteField", key); err != nil {
		return err
	}
	return f.Store.HashWriteField(ctx, key, field, value)
}

func (f *faultyStore) HashDelete(ctx context.Context, key string, fields ...string) error {
	if err := f.check("HashDelete", key); err != nil {
		return err
	}
	return f.Store.HashDelete(ctx, key, fields...)
}

func (f *faultyStore) HashCompareAndSwap(ctx context.Context, key string, expect map[string]string, field, value string) (bool, error) {
	if err := f.check("HashCompareAndSwap", key); err != nil {
		return false, err
	}
	return f.Store.HashCompareAndSwap(ctx, key, expect, field, value)
}

func (f *faultyStore) HashDeleteIf(ctx context.Context, key string, expect map[string]string) (bool, error) {
	if err := f.check("HashDeleteIf", key); err != nil {
		return false, err
	}
	return f.Store.HashDeleteIf(ctx, key, expect)
}

func (f *faultyStore) SetPopAll(ctx context.Context, key string) ([]string, error) {
	if err := f.check("SetPopAll", key); err != nil {
		return nil, err
	}
	return f.Store.SetPopAll(ctx, key)
}

// ============================================================================
// 测试夹具
// ============================================================================

type fixture struct {
	ctx      context.Context
	svc      *Service
	sweeper  *Sweeper
	notifier *fakeNotifier
	clock    *fakeClock
	store    *faultyStore
	mr       *miniredis.Miniredis
	stats    *fakeStats
	events   *fakeEvents
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	kit := testkit.NewKit(t)
	conn, mr := testkit.NewRedisConnector(t)

	inner, err := store.NewRedis(conn)
	require.NoError(t, err)

	if cfg == nil {
		cfg = DefaultConfig()
	}
	f := &fixture{
		ctx:      kit.Ctx,
		notifier: newFakeNotifier(),
		clock:    newFakeClock(),
		store:    newFaultyStore(inner),
		mr:       mr,
		stats:    newFakeStats(),
		events:   &fakeEvents{},
	}
	f.svc, err = New(cfg, f.store, f.notifier,
		WithLogger(kit.Logger),
		WithMeter(kit.Meter),
		WithClock(f.clock.Now),
		WithStats(f.stats),
		WithEvents(f.events),
	)
	require.NoError(t, err)
	f.sweeper = NewSweeper(f.svc)
	return f
}

func (f *fixture) read(t *testing.T, name string) *Lock {
	t.Helper()
	lock, err := f.svc.Repository().Read(f.ctx, name)
	require.NoError(t, err)
	return lock
}

func req(name, user string, minutes int) Request {
	return Request{Name: name, UserID: user, UserName: "name-" + user, Minutes: minutes}
}
