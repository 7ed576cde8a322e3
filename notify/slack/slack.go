// Package slack 通过 Slack Web API 投递锁通知。
//
// 状态消息引用的格式为 <channel>:<ts>，ts 为 Slack 返回的消息时间戳。
// 到期提醒以私信发送，附带三个按钮（释放 / 再锁 30 分钟 / 忽略），
// 按钮回调由 server 包的 /dialock 处理。
package slack

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/xerrors"
)

// 到期提醒按钮
const (
	CallbackLockExpiry = "lock_expiry"

	ActionUnlock  = "unlock"
	ActionLock    = "lock"
	ActionNothing = "nothing"

	// LockMoreMinutes "再锁"按钮对应的时长
	LockMoreMinutes = 30
)

var (
	ErrConfigNil  = xerrors.New("slack: config is nil")
	ErrTokenEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "slack: token is empty")
	ErrBadRef     = xerrors.Wrap(xerrors.ErrInvalidInput, "slack: malformed message ref")
)

// Config Slack 客户端配置
type Config struct {
	Token         string        `mapstructure:"token"`
	SigningSecret string        `mapstructure:"signing_secret"`
	TeamID        string        `mapstructure:"team_id"`
	APIURL        string        `mapstructure:"api_url"` // 为空时使用官方地址
	Timeout       time.Duration `mapstructure:"timeout"`
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrTokenEmpty
	}
	return nil
}

// Notifier 基于 slack-go 的 chanlock.Notifier 实现
type Notifier struct {
	client *slack.Client
	logger clog.Logger
}

var _ chanlock.Notifier = (*Notifier)(nil)

// Option Notifier 选项
type Option func(*Notifier)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger.WithNamespace("slack")
		}
	}
}

// New 创建 Slack 通知器
func New(cfg *Config, opts ...Option) (*Notifier, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	clientOpts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: c.Timeout})}
	if c.APIURL != "" {
		url := c.APIURL
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		clientOpts = append(clientOpts, slack.OptionAPIURL(url))
	}

	n := &Notifier{
		client: slack.New(c.Token, clientOpts...),
		logger: clog.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// PostInit 发布状态消息，返回 <channel>:<ts>
func (n *Notifier) PostInit(ctx context.Context, name, text string) (string, error) {
	channel, ts, err := n.client.PostMessageContext(ctx, name, slack.MsgOptionText(text, false))
	if err != nil {
		return "", xerrors.Wrapf(err, "slack: post status to %s", name)
	}
	return channel + ":" + ts, nil
}

// Update 改写状态消息文本；表情由调用方通过 React 添加
func (n *Notifier) Update(ctx context.Context, ref, text string, unlocked bool) error {
	channel, ts, err := parseRef(ref)
	if err != nil {
		return err
	}
	if _, _, _, err := n.client.UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false)); err != nil {
		return xerrors.Wrapf(err, "slack: update %s", ref)
	}
	n.logger.Debug("status message updated", clog.String("ref", ref), clog.Bool("unlocked", unlocked))
	return nil
}

// Direct 私信 user，附带到期操作按钮；按钮回调通过 fallback 字段带回频道 ID
func (n *Notifier) Direct(ctx context.Context, name, text, user string) error {
	im, _, _, err := n.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{user}})
	if err != nil {
		return xerrors.Wrapf(err, "slack: open im with %s", user)
	}
	_, _, err = n.client.PostMessageContext(ctx, im.ID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(expiryActions(name)),
	)
	if err != nil {
		return xerrors.Wrapf(err, "slack: direct message to %s", user)
	}
	return nil
}

// React 给状态消息添加表情，已添加过的表情视为成功
func (n *Notifier) React(ctx context.Context, ref, reaction string) error {
	channel, ts, err := parseRef(ref)
	if err != nil {
		return err
	}
	err = n.client.AddReactionContext(ctx, reaction, slack.NewRefToMessage(channel, ts))
	if err != nil && err.Error() != "already_reacted" {
		return xerrors.Wrapf(err, "slack: react %s", ref)
	}
	return nil
}

// Post 在频道中发布普通消息
func (n *Notifier) Post(ctx context.Context, name, text string) error {
	if _, _, err := n.client.PostMessageContext(ctx, name, slack.MsgOptionText(text, false)); err != nil {
		return xerrors.Wrapf(err, "slack: post to %s", name)
	}
	return nil
}

func expiryActions(channel string) slack.Attachment {
	return slack.Attachment{
		Fallback:   channel,
		CallbackID: CallbackLockExpiry,
		Color:      "#3AA3E3",
		Text:       "You can do one of the following actions.",
		Actions: []slack.AttachmentAction{
			{Name: "action", Text: "Remove lock now", Type: slack.ActionType("button"), Value: ActionUnlock},
			{Name: "action", Text: "Lock for 30 more minutes", Type: slack.ActionType("button"), Value: ActionLock},
			{Name: "action", Text: "Do nothing", Type: slack.ActionType("button"), Value: ActionNothing},
		},
	}
}

func parseRef(ref string) (channel, ts string, err error) {
	channel, ts, ok := strings.Cut(ref, ":")
	if !ok || channel == "" || ts == "" {
		return "", "", ErrBadRef
	}
	return channel, ts, nil
}
