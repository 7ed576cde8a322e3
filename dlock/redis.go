package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

// token 匹配时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// token 匹配时才续期
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisLocker struct {
	client  redis.Cmdable
	cfg     *Config
	logger  clog.Logger
	metrics *lockMetrics

	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	key      string
	token    string
	ttl      time.Duration
	acquired time.Time
	stop     chan struct{}
	done     chan struct{}
}

func newRedis(client redis.Cmdable, cfg *Config, logger clog.Logger, m *lockMetrics) *redisLocker {
	return &redisLocker{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		locks:   make(map[string]*lockEntry),
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	for {
		ok, err := l.TryLock(ctx, key, opts...)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	o := &lockOptions{ttl: l.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(o)
	}
	if o.ttl <= 0 {
		o.ttl = l.cfg.DefaultTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false, xerrors.Wrapf(ErrLockAlreadyHeld, "key: %s", key)
	}

	token, err := newToken()
	if err != nil {
		return false, err
	}
	ok, err := l.client.SetNX(ctx, l.redisKey(key), token, o.ttl).Result()
	if err != nil {
		l.metrics.observe(ctx, "lock", "error")
		return false, xerrors.Wrap(err, "dlock: acquire")
	}
	if !ok {
		l.metrics.observe(ctx, "lock", "contended")
		return false, nil
	}

	entry := &lockEntry{
		key:      key,
		token:    token,
		ttl:      o.ttl,
		acquired: time.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	l.locks[key] = entry
	go l.watchdog(entry)

	l.metrics.observe(ctx, "lock", "acquired")
	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.Duration("ttl", o.ttl))
	return true, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, held := l.locks[key]
	if held {
		delete(l.locks, key)
	}
	l.mu.Unlock()
	if !held {
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}

	close(entry.stop)
	<-entry.done
	l.metrics.hold.Record(ctx, time.Since(entry.acquired).Seconds())

	n, err := releaseScript.Run(ctx, l.client, []string{l.redisKey(key)}, entry.token).Int64()
	if err != nil {
		l.metrics.observe(ctx, "unlock", "error")
		return xerrors.Wrap(err, "dlock: release")
	}
	if n == 0 {
		l.metrics.observe(ctx, "unlock", "lost")
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	l.metrics.observe(ctx, "unlock", "released")
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

func (l *redisLocker) Close() error {
	l.mu.Lock()
	entries := l.locks
	l.locks = make(map[string]*lockEntry)
	l.mu.Unlock()

	for _, e := range entries {
		close(e.stop)
		<-e.done
	}
	return nil
}

// watchdog 每 ttl/3 续期一次，续期失败或所有权丢失时退出
func (l *redisLocker) watchdog(e *lockEntry) {
	defer close(e.done)

	interval := e.ttl / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(ctx, l.client, []string{l.redisKey(e.key)}, e.token, e.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Warn("lock renew failed", clog.String("key", e.key), clog.Error(err))
			return
		}
		if n == 0 {
			l.logger.Warn("lock ownership lost", clog.String("key", e.key))
			return
		}
	}
}

func (l *redisLocker) redisKey(key string) string {
	return l.cfg.Prefix + key
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "dlock: generate token")
	}
	return hex.EncodeToString(b), nil
}
