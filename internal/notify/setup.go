package notify

import (
	"context"
	"fmt"

	"github.com/shepherd/internal/config"
	"github.com/shepherd/internal/logging"
	"go.uber.org/zap"
)

// NewDispatcherFromConfig 按配置组装推送与邮件通道。两个通道都未配置时返回 nil。
func NewDispatcherFromConfig(ctx context.Context, cfg config.AppConfig) (*Dispatcher, error) {
	push, err := NewPushNotifier(ctx, cfg.FCMServiceAccount)
	if err != nil {
		return nil, fmt.Errorf("init push notifier: %w", err)
	}
	email := NewEmailNotifier(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	logging.Logger.Info("notification channels",
		zap.Bool("push", push.Enabled()),
		zap.Bool("email", email.Enabled()))
	if !push.Enabled() && !email.Enabled() {
		return nil, nil
	}

	return &Dispatcher{
		Notifier:    Fanout{Push: push, Email: email},
		BatchSize:   cfg.NotifyBatchSize,
		Concurrency: cfg.NotifyConcurrent,
		Delay:       cfg.NotifyBatchDelay,
	}, nil
}
