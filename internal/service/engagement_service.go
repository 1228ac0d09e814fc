package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shepherd/internal/cache"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dateFormat          = "2006-01-02"
	recentActivityLimit = 30
	statsCacheTTL       = time.Minute
	statsVersionTTL     = 24 * time.Hour
)

// ErrInvalidActivityType 在活动类型不在固定集合内时返回
var ErrInvalidActivityType = errors.New("invalid activity type")

// EngagementService 负责活动积分记录、连续天数统计以及成就解锁。
// 每次记录在单个事务内完成：日志行使用 upsert 原子自增，streak 行加行锁后更新。
type EngagementService struct {
	db    *gorm.DB
	cache cache.Store
	loc   *time.Location
	now   func() time.Time
}

// ActivityResult 描述单次记录的结果。PointsEarned 仅为本次调用获得的积分。
type ActivityResult struct {
	ActivityType  ActivityType
	ActivityDate  string
	PointsEarned  int
	ActivityCount int
	Unlocked      []db.Achievement
}

// EngagementStats 为会员参与度快照与最近的每日活动。
type EngagementStats struct {
	Streak         db.EngagementStreak
	RecentActivity []db.DailyActivityLog
}

// cachedStats 记录快照读取时的会员版本号，版本变化后快照作废。
type cachedStats struct {
	Version string          `json:"version"`
	Stats   EngagementStats `json:"stats"`
}

// NewEngagementService 构造 EngagementService
func NewEngagementService(gdb *gorm.DB) *EngagementService {
	return &EngagementService{db: gdb, loc: time.Local, now: time.Now}
}

// SetCache 启用统计结果缓存，传 nil 关闭。
func (s *EngagementService) SetCache(store cache.Store) {
	s.cache = store
}

// SetLocation 指定计算"今天"所用的时区。
func (s *EngagementService) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.loc = loc
}

// SetClock 覆盖当前时间来源，主要用于测试。
func (s *EngagementService) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Today 返回业务时区下的日期键。
func (s *EngagementService) Today() string {
	return s.now().In(s.loc).Format(dateFormat)
}

// LogActivity 记录一次活动：日志计数 +1、积分按次数重算、对应分类计数 +1，首次活动时自动创建 streak 行。
// 调用不幂等，重复调用会重复计数。
func (s *EngagementService) LogActivity(ctx context.Context, memberID uint, activityType string) (*ActivityResult, error) {
	kind, ok := ParseActivityType(activityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidActivityType, activityType)
	}

	today := s.Today()
	points := kind.Points()
	result := &ActivityResult{ActivityType: kind, ActivityDate: today, PointsEarned: points}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member db.Member
		if err := tx.Select("id").First(&member, memberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("load member: %w", err)
		}

		count, err := upsertDailyLog(tx, memberID, today, kind, s.now())
		if err != nil {
			return err
		}
		result.ActivityCount = count

		streak, err := applyStreak(tx, memberID, today, kind)
		if err != nil {
			return err
		}

		unlocked, err := unlockAchievements(tx, streak, s.now())
		if err != nil {
			return err
		}
		result.Unlocked = unlocked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, memberID)
	return result, nil
}

func upsertDailyLog(tx *gorm.DB, memberID uint, today string, kind ActivityType, now time.Time) (int, error) {
	record := db.DailyActivityLog{
		MemberID:      memberID,
		ActivityDate:  today,
		ActivityType:  string(kind),
		ActivityCount: 1,
		PointsEarned:  kind.Points(),
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "member_id"}, {Name: "activity_date"}, {Name: "activity_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"activity_count": gorm.Expr("daily_activity_logs.activity_count + 1"),
			"updated_at":     now,
		}),
	}).Create(&record).Error; err != nil {
		return 0, fmt.Errorf("upsert daily activity: %w", err)
	}

	key := tx.Model(&db.DailyActivityLog{}).
		Where("member_id = ? AND activity_date = ? AND activity_type = ?", memberID, today, string(kind))
	if err := key.Update("points_earned", gorm.Expr("activity_count * ?", kind.Points())).Error; err != nil {
		return 0, fmt.Errorf("recompute activity points: %w", err)
	}

	var stored db.DailyActivityLog
	if err := tx.Where("member_id = ? AND activity_date = ? AND activity_type = ?", memberID, today, string(kind)).
		First(&stored).Error; err != nil {
		return 0, fmt.Errorf("reload daily activity: %w", err)
	}
	return stored.ActivityCount, nil
}

func applyStreak(tx *gorm.DB, memberID uint, today string, kind ActivityType) (*db.EngagementStreak, error) {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoNothing: true,
	}).Create(&db.EngagementStreak{MemberID: memberID}).Error; err != nil {
		return nil, fmt.Errorf("ensure engagement streak: %w", err)
	}

	var streak db.EngagementStreak
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("member_id = ?", memberID).
		First(&streak).Error; err != nil {
		return nil, fmt.Errorf("lock engagement streak: %w", err)
	}

	updates := map[string]interface{}{
		"engagement_score": gorm.Expr("engagement_score + ?", kind.Points()),
	}
	if column, ok := kind.StreakColumn(); ok {
		updates[column] = gorm.Expr(column + " + 1")
	}

	if streak.LastActivityDate < today {
		current := 1
		if streak.LastActivityDate == previousDay(today) {
			current = streak.CurrentStreak + 1
		}
		updates["current_streak"] = current
		updates["longest_streak"] = max(streak.LongestStreak, current)
		updates["total_days_active"] = gorm.Expr("total_days_active + 1")
		updates["last_activity_date"] = today
	}

	if err := tx.Model(&db.EngagementStreak{}).Where("id = ?", streak.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update engagement streak: %w", err)
	}

	if err := tx.First(&streak, streak.ID).Error; err != nil {
		return nil, fmt.Errorf("reload engagement streak: %w", err)
	}
	return &streak, nil
}

// GetStats 返回 streak 快照（不存在时全部为 0）和最近 30 条每日活动，按日期倒序。
// 缓存的快照带有读取前的版本号；LogActivity 提交后更换版本，读到旧版本的快照视为未命中。
func (s *EngagementService) GetStats(ctx context.Context, memberID uint) (*EngagementStats, error) {
	key := statsCacheKey(memberID)
	var version string
	if s.cache != nil {
		version = s.statsVersion(ctx, memberID)
		var cached cachedStats
		if err := cache.GetJSON(ctx, s.cache, key, &cached); err == nil && cached.Version == version {
			return &cached.Stats, nil
		}
	}

	stats := &EngagementStats{Streak: db.EngagementStreak{MemberID: memberID}}

	gdb := s.db.WithContext(ctx)
	if err := gdb.Where("member_id = ?", memberID).First(&stats.Streak).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load engagement streak: %w", err)
		}
		stats.Streak = db.EngagementStreak{MemberID: memberID}
	}

	if err := gdb.Where("member_id = ?", memberID).
		Order("activity_date DESC").
		Order("updated_at DESC").
		Limit(recentActivityLimit).
		Find(&stats.RecentActivity).Error; err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}

	if s.cache != nil {
		entry := cachedStats{Version: version, Stats: *stats}
		if err := cache.SetJSON(ctx, s.cache, key, entry, statsCacheTTL); err != nil {
			logging.Logger.Warn("cache engagement stats failed", zap.Uint("member_id", memberID), zap.Error(err))
		}
	}
	return stats, nil
}

func (s *EngagementService) statsVersion(ctx context.Context, memberID uint) string {
	raw, err := s.cache.Get(ctx, statsVersionKey(memberID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logging.Logger.Warn("read engagement stats version failed", zap.Uint("member_id", memberID), zap.Error(err))
		}
		return ""
	}
	return string(raw)
}

// invalidateStats 先更换版本号再删除快照，并发 GetStats 写回的旧快照因版本不符不会被命中。
func (s *EngagementService) invalidateStats(ctx context.Context, memberID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, statsVersionKey(memberID), []byte(uuid.NewString()), statsVersionTTL); err != nil {
		logging.Logger.Warn("bump engagement stats version failed", zap.Uint("member_id", memberID), zap.Error(err))
	}
	if err := s.cache.Delete(ctx, statsCacheKey(memberID)); err != nil {
		logging.Logger.Warn("invalidate engagement stats failed", zap.Uint("member_id", memberID), zap.Error(err))
	}
}

func statsCacheKey(memberID uint) string {
	return fmt.Sprintf("engagement:stats:%d", memberID)
}

func statsVersionKey(memberID uint) string {
	return fmt.Sprintf("engagement:stats-version:%d", memberID)
}

func previousDay(date string) string {
	parsed, err := time.Parse(dateFormat, date)
	if err != nil {
		return ""
	}
	return parsed.AddDate(0, 0, -1).Format(dateFormat)
}
