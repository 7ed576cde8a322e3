package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// 消息语义属性
const (
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
	AttrMessagingOperation   = "messaging.operation"

	MessagingSystemNATS  = "nats"
	MessagingSystemRedis = "redis"

	MessagingOperationPublish = "publish"
)

const tracerName = "github.com/ceyewan/chanlock/trace"

// MessagingMeta 生产端 Span 的消息属性
type MessagingMeta struct {
	System      string
	Destination string
}

// SpanNamePublish 发布 Span 名
func SpanNamePublish(destination string) string {
	if destination == "" {
		return "publish"
	}
	return "publish " + destination
}

// Inject 把 ctx 中的追踪上下文写入 headers
func Inject(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract 从 headers 还原追踪上下文
func Extract(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartProducerSpan 启动生产者 Span，并返回注入了追踪上下文的消息头
func StartProducerSpan(ctx context.Context, meta MessagingMeta, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span, map[string]string) {
	if ctx == nil {
		ctx = context.Background()
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, SpanNamePublish(meta.Destination),
		oteltrace.WithSpanKind(oteltrace.SpanKindProducer))

	kv := make([]attribute.KeyValue, 0, len(attrs)+3)
	if meta.System != "" {
		kv = append(kv, attribute.String(AttrMessagingSystem, meta.System))
	}
	if meta.Destination != "" {
		kv = append(kv, attribute.String(AttrMessagingDestination, meta.Destination))
	}
	kv = append(kv, attribute.String(AttrMessagingOperation, MessagingOperationPublish))
	span.SetAttributes(append(kv, attrs...)...)

	headers := map[string]string{}
	Inject(spanCtx, headers)
	return spanCtx, span, headers
}

// MarkSpanError err 非空时记录错误并标记 Span 状态
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
