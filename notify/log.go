package notify

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
)

// Log 把通知写入日志，不投递到任何聊天系统
//
// 返回的消息引用形如 <channel>:<seq>，与 slack 实现的 <channel>:<ts> 形状一致。
type Log struct {
	logger clog.Logger
	seq    atomic.Int64
}

var _ chanlock.Notifier = (*Log)(nil)

// NewLog 创建日志通知器，logger 为 nil 时丢弃所有输出
func NewLog(logger clog.Logger) *Log {
	if logger == nil {
		logger = clog.Discard()
	}
	return &Log{logger: logger.WithNamespace("notify")}
}

func (l *Log) PostInit(ctx context.Context, name, text string) (string, error) {
	ref := name + ":" + strconv.FormatInt(l.seq.Add(1), 10)
	l.logger.InfoContext(ctx, "post status message", clog.String("channel", name), clog.String("ref", ref), clog.String("text", text))
	return ref, nil
}

func (l *Log) Update(ctx context.Context, ref, text string, unlocked bool) error {
	if _, _, ok := strings.Cut(ref, ":"); !ok {
		return ErrUnknownRef
	}
	l.logger.InfoContext(ctx, "update status message", clog.String("ref", ref), clog.String("text", text), clog.Bool("unlocked", unlocked))
	return nil
}

func (l *Log) Direct(ctx context.Context, name, text, user string) error {
	l.logger.InfoContext(ctx, "direct message", clog.String("channel", name), clog.String("user", user), clog.String("text", text))
	return nil
}

func (l *Log) React(ctx context.Context, ref, reaction string) error {
	if _, _, ok := strings.Cut(ref, ":"); !ok {
		return ErrUnknownRef
	}
	l.logger.InfoContext(ctx, "add reaction", clog.String("ref", ref), clog.String("reaction", reaction))
	return nil
}

func (l *Log) Post(ctx context.Context, name, text string) error {
	l.logger.InfoContext(ctx, "post message", clog.String("channel", name), clog.String("text", text))
	return nil
}
