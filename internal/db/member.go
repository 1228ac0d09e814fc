package db

import "gorm.io/gorm"

// 会员等级，控制内容访问范围。
const (
	TierFree     = "free"
	TierPartner  = "partner"
	TierCovenant = "covenant"
)

// Member 是认证用户在本系统中的档案，通过 AuthUserID 关联托管认证服务的用户。
type Member struct {
	gorm.Model
	AuthUserID      string `gorm:"size:36;uniqueIndex;not null"`
	Email           string `gorm:"size:255;index"`
	FirstName       string `gorm:"size:100"`
	LastName        string `gorm:"size:100"`
	Phone           string `gorm:"size:32"`
	Tier            string `gorm:"size:16;not null;default:free"`
	PushToken       string `gorm:"size:255"`
	DevotionalOptIn bool
}

// DisplayName 返回用于通知称呼的名字。
func (m Member) DisplayName() string {
	if m.FirstName != "" {
		return m.FirstName
	}
	return "friend"
}
