// Package notify 负责向会员发送推送与邮件通知，并按批次限速分发。
package notify

import (
	"context"
	"errors"
)

// ErrNoChannel 表示接收人没有可用的通知渠道（无推送 token 或邮箱）。
var ErrNoChannel = errors.New("recipient has no usable channel")

// Recipient 为一个通知接收人
type Recipient struct {
	MemberID  uint
	Name      string
	Email     string
	PushToken string
}

// Message 为通知内容；Data 仅用于推送的附加字段。
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier 发送单条通知
type Notifier interface {
	Notify(ctx context.Context, to Recipient, msg Message) error
}

// NotifierFunc 允许普通函数作为 Notifier 使用
type NotifierFunc func(ctx context.Context, to Recipient, msg Message) error

// Notify 实现 Notifier
func (f NotifierFunc) Notify(ctx context.Context, to Recipient, msg Message) error {
	return f(ctx, to, msg)
}

// Fanout 优先使用推送，接收人没有推送 token 或推送未启用时回退到邮件。
type Fanout struct {
	Push  Notifier
	Email Notifier
}

// Notify 实现 Notifier
func (f Fanout) Notify(ctx context.Context, to Recipient, msg Message) error {
	if f.Push != nil && to.PushToken != "" {
		err := f.Push.Notify(ctx, to, msg)
		if err == nil || !errors.Is(err, ErrNoChannel) {
			return err
		}
	}
	if f.Email != nil && to.Email != "" {
		return f.Email.Notify(ctx, to, msg)
	}
	return ErrNoChannel
}
