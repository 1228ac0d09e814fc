package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPConfig 为邮件发送配置
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier 通过 SMTP 发送纯文本邮件；smtp.SendMail 在服务器支持时会自动 STARTTLS。
type EmailNotifier struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

// NewEmailNotifier 构造 EmailNotifier
func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

// Enabled 返回邮件是否已配置
func (e *EmailNotifier) Enabled() bool {
	return e != nil && e.cfg.Host != "" && e.cfg.From != ""
}

// Notify 实现 Notifier
func (e *EmailNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	if !e.Enabled() || to.Email == "" {
		return ErrNoChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	if err := e.sendMail(addr, auth, e.cfg.From, []string{to.Email}, e.compose(to, msg)); err != nil {
		return fmt.Errorf("send email to member %d: %w", to.MemberID, err)
	}
	return nil
}

func (e *EmailNotifier) compose(to Recipient, msg Message) []byte {
	fromName := e.cfg.FromName
	if fromName == "" {
		fromName = "Shepherd"
	}

	headers := [][2]string{
		{"From", fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), e.cfg.From)},
		{"To", to.Email},
		{"Subject", mime.BEncoding.Encode("UTF-8", msg.Title)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}

	var builder strings.Builder
	for _, h := range headers {
		builder.WriteString(h[0])
		builder.WriteString(": ")
		builder.WriteString(h[1])
		builder.WriteString("\r\n")
	}
	builder.WriteString("\r\n")
	builder.WriteString(msg.Body)
	return []byte(builder.String())
}
