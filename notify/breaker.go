// Package notify 提供 chanlock.Notifier 的通用实现与装饰器。
//
//   - Breaker：为任意 Notifier 的每类调用加熔断，聊天 API 持续故障时快速失败
//   - Log：只记录日志不投递，用于未配置聊天凭据的环境
//
// 具体聊天平台的实现位于子包，例如 notify/slack。
package notify

import (
	"context"

	"github.com/ceyewan/chanlock/breaker"
	"github.com/ceyewan/chanlock/chanlock"
)

// 熔断键，每类调用独立熔断
const (
	CallPostInit = "post_init"
	CallUpdate   = "update"
	CallDirect   = "direct"
	CallReact    = "react"
	CallPost     = "post"
)

// Breaker 熔断装饰器
type Breaker struct {
	inner chanlock.Notifier
	brk   breaker.Breaker
}

var _ chanlock.Notifier = (*Breaker)(nil)

// NewBreaker 用 brk 包装 inner，熔断打开时返回 breaker.ErrOpenState
func NewBreaker(inner chanlock.Notifier, brk breaker.Breaker) (*Breaker, error) {
	if inner == nil {
		return nil, ErrNotifierNil
	}
	if brk == nil {
		return nil, ErrBreakerNil
	}
	return &Breaker{inner: inner, brk: brk}, nil
}

func (b *Breaker) PostInit(ctx context.Context, name, text string) (string, error) {
	v, err := b.brk.Execute(ctx, CallPostInit, func() (any, error) {
		return b.inner.PostInit(ctx, name, text)
	})
	if err != nil {
		return "", err
	}
	ref, _ := v.(string)
	return ref, nil
}

func (b *Breaker) Update(ctx context.Context, ref, text string, unlocked bool) error {
	return b.run(ctx, CallUpdate, func() error {
		return b.inner.Update(ctx, ref, text, unlocked)
	})
}

func (b *Breaker) Direct(ctx context.Context, name, text, user string) error {
	return b.run(ctx, CallDirect, func() error {
		return b.inner.Direct(ctx, name, text, user)
	})
}

func (b *Breaker) React(ctx context.Context, ref, reaction string) error {
	return b.run(ctx, CallReact, func() error {
		return b.inner.React(ctx, ref, reaction)
	})
}

func (b *Breaker) Post(ctx context.Context, name, text string) error {
	return b.run(ctx, CallPost, func() error {
		return b.inner.Post(ctx, name, text)
	})
}

func (b *Breaker) run(ctx context.Context, key string, fn func() error) error {
	_, err := b.brk.Execute(ctx, key, func() (any, error) {
		return nil, fn()
	})
	return err
}
