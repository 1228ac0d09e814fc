package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shepherd/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAchievementNotFound 在成就不存在或不属于当前会员时返回
	ErrAchievementNotFound = errors.New("achievement not found")
	// ErrAchievementInvalid 在成就定义不合法时返回
	ErrAchievementInvalid = errors.New("invalid achievement definition")
	// ErrAchievementDuplicate 在成就 key 已存在时返回
	ErrAchievementDuplicate = errors.New("achievement key already exists")
)

// achievementMetrics 列出可作为成就条件的 streak 计数列。
var achievementMetrics = []string{
	"current_streak",
	"longest_streak",
	"engagement_score",
	"total_days_active",
	"devotionals_read",
	"prayers_submitted",
	"prayers_prayed_for",
	"content_viewed",
	"events_attended",
	"donations_made",
}

// AchievementService 管理成就定义，并提供"未庆祝成就"的逐个读取
type AchievementService struct {
	db  *gorm.DB
	now func() time.Time
}

// AchievementInput 定义创建成就时的字段
type AchievementInput struct {
	Key         string
	Name        string
	Description string
	Icon        string
	Metric      string
	Threshold   int
}

// NewAchievementService 构造 AchievementService
func NewAchievementService(gdb *gorm.DB) *AchievementService {
	return &AchievementService{db: gdb, now: time.Now}
}

// Create 新建成就定义
func (s *AchievementService) Create(ctx context.Context, input AchievementInput) (*db.Achievement, error) {
	metric := strings.ToLower(strings.TrimSpace(input.Metric))
	if !isAchievementMetric(metric) {
		return nil, fmt.Errorf("%w: unsupported metric %q", ErrAchievementInvalid, input.Metric)
	}
	if input.Threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", ErrAchievementInvalid)
	}
	key := strings.TrimSpace(input.Key)
	name := strings.TrimSpace(input.Name)
	if key == "" || name == "" {
		return nil, fmt.Errorf("%w: key and name are required", ErrAchievementInvalid)
	}

	achievement := db.Achievement{
		Key:         key,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Icon:        strings.TrimSpace(input.Icon),
		Metric:      metric,
		Threshold:   input.Threshold,
	}
	if err := s.db.WithContext(ctx).Create(&achievement).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAchievementDuplicate
		}
		return nil, fmt.Errorf("create achievement: %w", err)
	}
	return &achievement, nil
}

// List 返回全部成就定义
func (s *AchievementService) List(ctx context.Context) ([]db.Achievement, error) {
	var achievements []db.Achievement
	if err := s.db.WithContext(ctx).Order("metric ASC, threshold ASC").Find(&achievements).Error; err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return achievements, nil
}

// Unlocked 返回会员已解锁的成就，最新在前
func (s *AchievementService) Unlocked(ctx context.Context, memberID uint) ([]db.MemberAchievement, error) {
	var rows []db.MemberAchievement
	if err := s.db.WithContext(ctx).
		Preload("Achievement").
		Where("member_id = ?", memberID).
		Order("unlocked_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}
	return rows, nil
}

// NextUncelebrated 返回最早解锁且尚未庆祝的成就，没有时返回 nil
func (s *AchievementService) NextUncelebrated(ctx context.Context, memberID uint) (*db.MemberAchievement, error) {
	var row db.MemberAchievement
	err := s.db.WithContext(ctx).
		Preload("Achievement").
		Where("member_id = ? AND celebrated = ?", memberID, false).
		Order("unlocked_at ASC").
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("next uncelebrated achievement: %w", err)
	}
	return &row, nil
}

// Celebrate 标记会员的某个已解锁成就为已庆祝，重复调用无副作用
func (s *AchievementService) Celebrate(ctx context.Context, memberID, memberAchievementID uint) error {
	var row db.MemberAchievement
	if err := s.db.WithContext(ctx).
		Where("id = ? AND member_id = ?", memberAchievementID, memberID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAchievementNotFound
		}
		return fmt.Errorf("find member achievement: %w", err)
	}
	if row.Celebrated {
		return nil
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&db.MemberAchievement{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{"celebrated": true, "celebrated_at": now}).Error; err != nil {
		return fmt.Errorf("celebrate achievement: %w", err)
	}
	return nil
}

// unlockAchievements 在 LogActivity 事务内比对尚未解锁的成就，满足条件的写入 member_achievements。
func unlockAchievements(tx *gorm.DB, streak *db.EngagementStreak, now time.Time) ([]db.Achievement, error) {
	unlockedIDs := tx.Model(&db.MemberAchievement{}).Select("achievement_id").Where("member_id = ?", streak.MemberID)

	var candidates []db.Achievement
	if err := tx.Where("id NOT IN (?)", unlockedIDs).Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("list candidate achievements: %w", err)
	}

	var unlocked []db.Achievement
	for _, achievement := range candidates {
		value, ok := streakMetric(streak, achievement.Metric)
		if !ok || value < achievement.Threshold {
			continue
		}

		row := db.MemberAchievement{
			MemberID:      streak.MemberID,
			AchievementID: achievement.ID,
			UnlockedAt:    now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("Achievement").Create(&row)
		if res.Error != nil {
			return nil, fmt.Errorf("unlock achievement %s: %w", achievement.Key, res.Error)
		}
		if res.RowsAffected > 0 {
			unlocked = append(unlocked, achievement)
		}
	}
	return unlocked, nil
}

func streakMetric(streak *db.EngagementStreak, metric string) (int, bool) {
	switch metric {
	case "current_streak":
		return streak.CurrentStreak, true
	case "longest_streak":
		return streak.LongestStreak, true
	case "engagement_score":
		return streak.EngagementScore, true
	case "total_days_active":
		return streak.TotalDaysActive, true
	case "devotionals_read":
		return streak.DevotionalsRead, true
	case "prayers_submitted":
		return streak.PrayersSubmitted, true
	case "prayers_prayed_for":
		return streak.PrayersPrayedFor, true
	case "content_viewed":
		return streak.ContentViewed, true
	case "events_attended":
		return streak.EventsAttended, true
	case "donations_made":
		return streak.DonationsMade, true
	default:
		return 0, false
	}
}

func isAchievementMetric(metric string) bool {
	for _, candidate := range achievementMetrics {
		if candidate == metric {
			return true
		}
	}
	return false
}
