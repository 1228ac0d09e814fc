package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/logging"
	"github.com/shepherd/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoDevotionalToday 在当天没有发布灵修内容时返回
	ErrNoDevotionalToday = errors.New("no devotional published for today")
	// ErrDevotionalInvalid 在灵修内容缺少日期或标题时返回
	ErrDevotionalInvalid = errors.New("devotional requires a publish date and title")
)

// Dispatcher 为批量发送通知的能力
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []notify.Recipient, build func(notify.Recipient) notify.Message) (notify.Report, error)
}

// NotificationJobService 计算定时任务的接收人并交给分发器发送。
// 任务由外部调度（cron）触发，本身不做调度。
type NotificationJobService struct {
	db         *gorm.DB
	dispatcher Dispatcher
	loc        *time.Location
	now        func() time.Time
}

// DevotionalInput 为发布灵修内容的字段
type DevotionalInput struct {
	PublishDate string
	Title       string
	Scripture   string
	Body        string
}

// NewNotificationJobService 构造 NotificationJobService
func NewNotificationJobService(gdb *gorm.DB, dispatcher Dispatcher) *NotificationJobService {
	return &NotificationJobService{db: gdb, dispatcher: dispatcher, loc: time.Local, now: time.Now}
}

// SetLocation 指定计算"今天"所用的时区。
func (s *NotificationJobService) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.loc = loc
}

// SetClock 覆盖当前时间来源，主要用于测试。
func (s *NotificationJobService) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *NotificationJobService) today() string {
	return s.now().In(s.loc).Format(dateFormat)
}

// StreakWarningRecipients 返回昨天有活动、今天尚未活动且 streak 大于 0 的会员。
func (s *NotificationJobService) StreakWarningRecipients(ctx context.Context) ([]StreakRecipient, error) {
	yesterday := previousDay(s.today())

	var rows []StreakRecipient
	if err := s.db.WithContext(ctx).
		Table("members").
		Select("members.id AS member_id, members.first_name, members.email, members.push_token, engagement_streaks.current_streak").
		Joins("JOIN engagement_streaks ON engagement_streaks.member_id = members.id").
		Where("members.deleted_at IS NULL").
		Where("engagement_streaks.current_streak > 0 AND engagement_streaks.last_activity_date = ?", yesterday).
		Order("members.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list streak warning recipients: %w", err)
	}
	return rows, nil
}

// StreakRecipient 为 streak 提醒的接收人
type StreakRecipient struct {
	MemberID      uint
	FirstName     string
	Email         string
	PushToken     string
	CurrentStreak int
}

// SendStreakWarnings 提醒即将中断 streak 的会员
func (s *NotificationJobService) SendStreakWarnings(ctx context.Context) (notify.Report, error) {
	rows, err := s.StreakWarningRecipients(ctx)
	if err != nil {
		return notify.Report{}, err
	}

	streaks := make(map[uint]int, len(rows))
	recipients := make([]notify.Recipient, 0, len(rows))
	for _, row := range rows {
		member := db.Member{FirstName: row.FirstName}
		recipients = append(recipients, notify.Recipient{
			MemberID:  row.MemberID,
			Name:      member.DisplayName(),
			Email:     row.Email,
			PushToken: row.PushToken,
		})
		streaks[row.MemberID] = row.CurrentStreak
	}

	report, err := s.dispatcher.Dispatch(ctx, recipients, func(to notify.Recipient) notify.Message {
		days := streaks[to.MemberID]
		return notify.Message{
			Title: "Keep your streak going",
			Body:  fmt.Sprintf("Hi %s, you are on a %d-day streak. Check in today to keep it alive.", to.Name, days),
			Data:  map[string]string{"kind": "streak_warning", "current_streak": fmt.Sprint(days)},
		}
	})
	logging.Logger.Info("streak warnings dispatched", zap.Int("total", report.Total), zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped), zap.Int("failed", report.Failed))
	return report, err
}

// SendDailyDevotional 向订阅的会员发送当天灵修
func (s *NotificationJobService) SendDailyDevotional(ctx context.Context) (notify.Report, error) {
	var devotional db.Devotional
	if err := s.db.WithContext(ctx).Where("publish_date = ?", s.today()).First(&devotional).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notify.Report{}, ErrNoDevotionalToday
		}
		return notify.Report{}, fmt.Errorf("load devotional: %w", err)
	}

	var members []db.Member
	if err := s.db.WithContext(ctx).
		Where("devotional_opt_in = ?", true).
		Order("id ASC").
		Find(&members).Error; err != nil {
		return notify.Report{}, fmt.Errorf("list devotional subscribers: %w", err)
	}

	recipients := make([]notify.Recipient, 0, len(members))
	for _, member := range members {
		recipients = append(recipients, notify.Recipient{
			MemberID:  member.ID,
			Name:      member.DisplayName(),
			Email:     member.Email,
			PushToken: member.PushToken,
		})
	}

	body := devotional.Scripture
	if body == "" {
		body = truncateRunes(devotional.Body, 140)
	}
	report, err := s.dispatcher.Dispatch(ctx, recipients, func(notify.Recipient) notify.Message {
		return notify.Message{
			Title: devotional.Title,
			Body:  body,
			Data:  map[string]string{"kind": "devotional", "publish_date": devotional.PublishDate},
		}
	})
	logging.Logger.Info("daily devotional dispatched", zap.String("date", devotional.PublishDate),
		zap.Int("total", report.Total), zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	return report, err
}

// PublishDevotional 新建或覆盖某天的灵修内容
func (s *NotificationJobService) PublishDevotional(ctx context.Context, input DevotionalInput) (*db.Devotional, error) {
	date := strings.TrimSpace(input.PublishDate)
	if date == "" {
		date = s.today()
	}
	if _, err := time.Parse(dateFormat, date); err != nil {
		return nil, ErrDevotionalInvalid
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrDevotionalInvalid
	}

	devotional := db.Devotional{
		PublishDate: date,
		Title:       title,
		Scripture:   strings.TrimSpace(input.Scripture),
		Body:        strings.TrimSpace(input.Body),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "publish_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "scripture", "body", "updated_at"}),
	}).Create(&devotional).Error; err != nil {
		return nil, fmt.Errorf("publish devotional: %w", err)
	}

	if err := s.db.WithContext(ctx).Where("publish_date = ?", date).First(&devotional).Error; err != nil {
		return nil, fmt.Errorf("reload devotional: %w", err)
	}
	return &devotional, nil
}
