package db

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Lead 是后台 CRM 中的潜在会员线索。
// Interests 以逗号分隔存储；Score 由 AI 或启发式规则给出，ScoredBy 记录来源。
type Lead struct {
	gorm.Model
	FirstName     string `gorm:"size:100"`
	LastName      string `gorm:"size:100"`
	Email         string `gorm:"size:255;index"`
	Phone         string `gorm:"size:32"`
	Source        string `gorm:"size:64"`
	Interests     string `gorm:"size:500"`
	Notes         string `gorm:"type:text"`
	Status        string `gorm:"size:32;not null;default:new"`
	ActivityCount int    `gorm:"not null;default:0"`
	LastContactAt *time.Time
	Score         int
	ScoreReason   string `gorm:"size:1000"`
	ScoredBy      string `gorm:"size:16"`
	ScoredAt      *time.Time
}

// InterestTags 返回去空白后的兴趣标签。
func (l Lead) InterestTags() []string {
	parts := strings.Split(l.Interests, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
