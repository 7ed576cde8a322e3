package store

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/connector"
	"github.com/ceyewan/chanlock/xerrors"
)

// ARGV: field, value, 然后是期望的 field/value 对
var compareAndSwapScript = redis.NewScript(`
for i = 3, #ARGV, 2 do
	if (redis.call("HGET", KEYS[1], ARGV[i]) or "") ~= ARGV[i + 1] then
		return 0
	end
end
if (redis.call("HGET", KEYS[1], ARGV[1]) or "") == ARGV[2] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// ARGV: 期望的 field/value 对
var deleteIfScript = redis.NewScript(`
for i = 1, #ARGV, 2 do
	if (redis.call("HGET", KEYS[1], ARGV[i]) or "") ~= ARGV[i + 1] then
		return 0
	end
end
return redis.call("DEL", KEYS[1])
`)

// Redis 基于 Redis 哈希与集合的 Store 实现
type Redis struct {
	client    redis.Cmdable
	logger    clog.Logger
	scanCount int64
}

var _ Store = (*Redis)(nil)

// NewRedis 基于 Redis 连接器创建存储，连接器的生命周期由调用方管理
func NewRedis(conn connector.RedisConnector, opts ...Option) (*Redis, error) {
	if conn == nil || conn.GetClient() == nil {
		return nil, ErrClientNil
	}
	return NewRedisFromClient(conn.GetClient(), opts...)
}

// NewRedisFromClient 基于已有的 Redis 客户端创建存储
func NewRedisFromClient(client redis.Cmdable, opts ...Option) (*Redis, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	o := applyOptions(opts...)
	return &Redis{
		client:    client,
		logger:    o.logger,
		scanCount: o.scanCount,
	}, nil
}

func (s *Redis) HashRead(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if len(fields) == 0 {
		values, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, s.fail(err, "hgetall", key)
		}
		return values, nil
	}

	raw, err := s.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, s.fail(err, "hmget", key)
	}
	values := make(map[string]string, len(fields))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			values[fields[i]] = str
		}
	}
	return values, nil
}

func (s *Redis) HashWriteAll(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return s.fail(err, "hset", key)
	}
	return nil
}

func (s *Redis) HashWriteField(ctx context.Context, key, field, value string) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return s.fail(err, "hset", key)
	}
	return nil
}

func (s *Redis) HashDelete(ctx context.Context, key string, fields ...string) error {
	var err error
	if len(fields) == 0 {
		err = s.client.Del(ctx, key).Err()
	} else {
		err = s.client.HDel(ctx, key, fields...).Err()
	}
	if err != nil {
		return s.fail(err, "delete", key)
	}
	return nil
}

func (s *Redis) HashCompareAndSwap(ctx context.Context, key string, expect map[string]string, field, value string) (bool, error) {
	args := append([]any{field, value}, expectArgs(expect)...)
	n, err := compareAndSwapScript.Run(ctx, s.client, []string{key}, args...).Int64()
	if err != nil {
		return false, s.fail(err, "hcas", key)
	}
	return n == 1, nil
}

func (s *Redis) HashDeleteIf(ctx context.Context, key string, expect map[string]string) (bool, error) {
	n, err := deleteIfScript.Run(ctx, s.client, []string{key}, expectArgs(expect)...).Int64()
	if err != nil {
		return false, s.fail(err, "hdelif", key)
	}
	return n == 1, nil
}

func (s *Redis) HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, s.fail(err, "hincrby", key)
	}
	return n, nil
}

func (s *Redis) SetAdd(ctx context.Context, key, member string) (bool, error) {
	added, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, s.fail(err, "sadd", key)
	}
	return added == 1, nil
}

// SetPopAll 在 MULTI/EXEC 中读取并删除集合，并发的两次调用不会拿到同一个成员
func (s *Redis) SetPopAll(ctx context.Context, key string) ([]string, error) {
	var members *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.SMembers(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "spop", key)
	}
	out := members.Val()
	slices.Sort(out)
	return out, nil
}

func (s *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, s.fail(err, "smembers", key)
	}
	slices.Sort(members)
	return members, nil
}

func (s *Redis) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, s.scanCount).Result()
		if err != nil {
			return nil, s.fail(err, "scan", prefix)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out, nil
}

func (s *Redis) fail(err error, op, key string) error {
	s.logger.Debug("redis command failed", clog.String("op", op), clog.String("key", key), clog.Error(err))
	return xerrors.Wrapf(xerrors.Mark(err, xerrors.ErrUnavailable), "store: %s %s", op, key)
}

// expectArgs 按字段名排序展开为 field, value, ...
func expectArgs(expect map[string]string) []any {
	args := make([]any, 0, 2*len(expect))
	for _, k := range slices.Sorted(maps.Keys(expect)) {
		args = append(args, k, expect[k])
	}
	return args
}

// escapeGlob 转义 Redis MATCH 模式中的特殊字符
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '^', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
