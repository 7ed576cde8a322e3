// Package events 把锁生命周期事件（获取、延长、排队、释放、到期、提醒）发布到消息通道，
// 供审计、看板等下游订阅。
//
// 支持的驱动：
//   - redis_stream：XADD 到一个 Stream，按 MAXLEN 裁剪
//   - nats_core：发布到 <subject>.<kind>
//   - none：丢弃
//
// 事件体使用 msgpack 编码，消费方通过 Decode 还原；追踪上下文（traceparent）
// 随消息一起发送：Stream 中作为额外字段，NATS 中作为消息头。发布是尽力而为的旁路，
// 调用方（chanlock.Service）只记录失败，不影响锁操作。
//
//	pub, err := events.New(&events.Config{Driver: events.DriverRedisStream},
//		events.WithRedisConnector(redisConn), events.WithLogger(logger))
//	svc, err := chanlock.New(cfg, st, notifier, chanlock.WithEvents(pub))
package events

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/metrics"
	"github.com/ceyewan/chanlock/trace"
	"github.com/ceyewan/chanlock/xerrors"
)

// Stream 字段名
const (
	FieldKind    = "kind"
	FieldName    = "name"
	FieldPayload = "payload"
)

// MetricPublishedTotal 已发布事件数 (Counter)，按 kind 与 result 区分
const MetricPublishedTotal = "chanlock_events_published_total"

// Publisher 事件发布器
type Publisher interface {
	chanlock.EventPublisher

	// Close 释放发布器内部资源，连接由 Connector 管理，不在此关闭
	Close() error
}

// natsPublisher *nats.Conn 满足此接口
type natsPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// New 按 Config.Driver 创建事件发布器
func New(cfg *Config, opts ...Option) (Publisher, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)
	published, err := o.meter.Counter(MetricPublishedTotal, "Lock events published by kind and result.")
	if err != nil {
		return nil, xerrors.Wrap(err, "events: create published counter")
	}

	var tr transport
	switch c.Driver {
	case DriverNone:
		return noop{}, nil
	case DriverRedisStream:
		if o.redis == nil || o.redis.GetClient() == nil {
			return nil, xerrors.WithCode(ErrConnectorRequired, string(c.Driver))
		}
		tr = &redisStream{client: o.redis.GetClient(), stream: c.Stream, maxLen: c.MaxLen, approx: *c.Approximate}
	case DriverNATSCore:
		if o.nats == nil && o.natsC != nil {
			if nc := o.natsC.GetClient(); nc != nil {
				o.nats = nc
			}
		}
		if o.nats == nil {
			return nil, xerrors.WithCode(ErrConnectorRequired, string(c.Driver))
		}
		tr = &natsCore{conn: o.nats, subject: c.Subject}
	}

	o.logger.Info("event publisher created", clog.String("driver", string(c.Driver)))
	return &publisher{tr: tr, logger: o.logger, published: published}, nil
}

// Encode 将事件编码为 msgpack
func Encode(ev chanlock.Event) ([]byte, error) {
	data, err := msgpack.Marshal(&ev)
	if err != nil {
		return nil, xerrors.Wrap(err, "events: encode")
	}
	return data, nil
}

// Decode 从 msgpack 还原事件，时间统一为 UTC
func Decode(data []byte) (chanlock.Event, error) {
	var ev chanlock.Event
	if err := msgpack.Unmarshal(data, &ev); err != nil {
		return chanlock.Event{}, xerrors.Wrap(err, "events: decode")
	}
	ev.ExpiryTime = ev.ExpiryTime.UTC()
	ev.At = ev.At.UTC()
	return ev, nil
}

// ============================================================================
// 发布器
// ============================================================================

type transport interface {
	system() string
	destination(ev chanlock.Event) string
	send(ctx context.Context, ev chanlock.Event, data []byte, headers map[string]string) error
}

type publisher struct {
	tr        transport
	logger    clog.Logger
	published metrics.Counter
}

func (p *publisher) Publish(ctx context.Context, ev chanlock.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	ctx, span, headers := trace.StartProducerSpan(ctx, trace.MessagingMeta{
		System:      p.tr.system(),
		Destination: p.tr.destination(ev),
	})
	defer span.End()

	err = p.tr.send(ctx, ev, data, headers)
	result := "success"
	if err != nil {
		result = "failure"
		trace.MarkSpanError(span, err)
		err = xerrors.Mark(err, xerrors.ErrUnavailable)
	}
	p.published.Inc(ctx, metrics.L("kind", string(ev.Kind)), metrics.L(metrics.LabelOutcome, result))
	return err
}

func (p *publisher) Close() error {
	return nil
}

// redisStream XADD 到单个 Stream
type redisStream struct {
	client redis.Cmdable
	stream string
	maxLen int64
	approx bool
}

func (t *redisStream) system() string                     { return trace.MessagingSystemRedis }
func (t *redisStream) destination(chanlock.Event) string { return t.stream }

func (t *redisStream) send(ctx context.Context, ev chanlock.Event, data []byte, headers map[string]string) error {
	values := map[string]any{
		FieldKind:    string(ev.Kind),
		FieldName:    ev.Name,
		FieldPayload: data,
	}
	for k, v := range headers {
		values[k] = v
	}
	return t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		MaxLen: t.maxLen,
		Approx: t.approx && t.maxLen > 0,
		Values: values,
	}).Err()
}

// natsCore 按事件类型分主题发布
type natsCore struct {
	conn    natsPublisher
	subject string
}

func (t *natsCore) system() string { return trace.MessagingSystemNATS }

func (t *natsCore) destination(ev chanlock.Event) string {
	return t.subject + "." + string(ev.Kind)
}

func (t *natsCore) send(ctx context.Context, ev chanlock.Event, data []byte, headers map[string]string) error {
	// NATS Core 发布不接受 context，这里只做取消检查
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(t.destination(ev))
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	return t.conn.PublishMsg(msg)
}

type noop struct{}

func (noop) Publish(context.Context, chanlock.Event) error { return nil }
func (noop) Close() error                                  { return nil }
