package db

import "time"

// DailyActivityLog 记录会员每天每种活动的次数与积分。
// (member_id, activity_date, activity_type) 唯一，upsert 依赖该索引。
// ActivityDate 使用业务时区的 2006-01-02 字符串，跨驱动比较稳定。
type DailyActivityLog struct {
	ID            uint   `gorm:"primaryKey"`
	MemberID      uint   `gorm:"not null;uniqueIndex:idx_daily_activity_unique,priority:1"`
	ActivityDate  string `gorm:"size:10;not null;index;uniqueIndex:idx_daily_activity_unique,priority:2"`
	ActivityType  string `gorm:"size:32;not null;uniqueIndex:idx_daily_activity_unique,priority:3"`
	ActivityCount int    `gorm:"not null;default:0"`
	PointsEarned  int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName 固定表名，upsert 表达式中引用了它。
func (DailyActivityLog) TableName() string {
	return "daily_activity_logs"
}

// EngagementStreak 是会员的累计参与度计数，每个会员一行。
type EngagementStreak struct {
	ID               uint   `gorm:"primaryKey"`
	MemberID         uint   `gorm:"not null;uniqueIndex"`
	CurrentStreak    int    `gorm:"not null;default:0"`
	LongestStreak    int    `gorm:"not null;default:0"`
	EngagementScore  int    `gorm:"not null;default:0"`
	TotalDaysActive  int    `gorm:"not null;default:0"`
	DevotionalsRead  int    `gorm:"not null;default:0"`
	PrayersSubmitted int    `gorm:"not null;default:0"`
	PrayersPrayedFor int    `gorm:"not null;default:0"`
	ContentViewed    int    `gorm:"not null;default:0"`
	EventsAttended   int    `gorm:"not null;default:0"`
	DonationsMade    int    `gorm:"not null;default:0"`
	LastActivityDate string `gorm:"size:10;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (EngagementStreak) TableName() string {
	return "engagement_streaks"
}

// Achievement 定义一个可解锁成就：Metric 指向 EngagementStreak 的计数列，达到 Threshold 即解锁。
type Achievement struct {
	ID          uint   `gorm:"primaryKey"`
	Key         string `gorm:"size:64;uniqueIndex;not null"`
	Name        string `gorm:"size:120;not null"`
	Description string `gorm:"size:500"`
	Icon        string `gorm:"size:64"`
	Metric      string `gorm:"size:32;not null"`
	Threshold   int    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemberAchievement 记录会员已解锁的成就；Celebrated 为 false 时前端需要弹出庆祝。
type MemberAchievement struct {
	ID            uint        `gorm:"primaryKey"`
	MemberID      uint        `gorm:"not null;uniqueIndex:idx_member_achievement_unique,priority:1;index:idx_member_achievement_pending,priority:1"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_member_achievement_unique,priority:2"`
	Achievement   Achievement `gorm:"constraint:OnDelete:CASCADE"`
	UnlockedAt    time.Time   `gorm:"not null"`
	Celebrated    bool        `gorm:"not null;default:false;index:idx_member_achievement_pending,priority:2"`
	CelebratedAt  *time.Time
}

// Devotional 是每日灵修内容，按发布日期唯一。
type Devotional struct {
	ID          uint   `gorm:"primaryKey"`
	PublishDate string `gorm:"size:10;uniqueIndex;not null"`
	Title       string `gorm:"size:200;not null"`
	Scripture   string `gorm:"size:200"`
	Body        string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
