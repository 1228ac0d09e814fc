package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/shepherd/internal/logging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// messageSender 是 messaging.Client 中用到的部分，便于测试替换。
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushNotifier 通过 Firebase Cloud Messaging 发送推送。
// client 为 nil 时表示未配置，所有发送返回 ErrNoChannel。
type PushNotifier struct {
	client messageSender
}

// NewPushNotifier 根据服务账号文件初始化 FCM；路径为空时返回禁用状态的 notifier。
func NewPushNotifier(ctx context.Context, serviceAccountPath string) (*PushNotifier, error) {
	if serviceAccountPath == "" {
		logging.Logger.Info("fcm service account not configured, push disabled")
		return &PushNotifier{}, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &PushNotifier{client: client}, nil
}

// Enabled 返回推送是否可用
func (p *PushNotifier) Enabled() bool {
	return p != nil && p.client != nil
}

// Notify 实现 Notifier
func (p *PushNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	if !p.Enabled() || to.PushToken == "" {
		return ErrNoChannel
	}

	message := &messaging.Message{
		Token: to.PushToken,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}
	if len(msg.Data) > 0 {
		message.Data = msg.Data
	}

	id, err := p.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("send push to member %d: %w", to.MemberID, err)
	}
	logging.Logger.Debug("push sent", zap.Uint("member_id", to.MemberID), zap.String("message_id", id))
	return nil
}
