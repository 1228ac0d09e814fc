package db

import (
	"time"

	"gorm.io/gorm"
)

// 志愿报名状态
const (
	SignupStatusConfirmed = "confirmed"
	SignupStatusCancelled = "cancelled"
)

// VolunteerShift 是一个可预约的志愿时段，SlotsAvailable 为容量，SlotsFilled 为已占用数。
// 约束 0 <= SlotsFilled <= SlotsAvailable 由条件更新语句维护。
type VolunteerShift struct {
	gorm.Model
	Title          string    `gorm:"size:200;not null"`
	Ministry       string    `gorm:"size:100;index"`
	Location       string    `gorm:"size:200"`
	Description    string    `gorm:"type:text"`
	StartsAt       time.Time `gorm:"not null;index"`
	EndsAt         time.Time `gorm:"not null"`
	SlotsAvailable int       `gorm:"not null"`
	SlotsFilled    int       `gorm:"not null;default:0"`
}

// Hours 返回时段时长（小时）。
func (s VolunteerShift) Hours() float64 {
	if !s.EndsAt.After(s.StartsAt) {
		return 0
	}
	return s.EndsAt.Sub(s.StartsAt).Hours()
}

// RemainingSlots 返回剩余名额，不小于 0。
func (s VolunteerShift) RemainingSlots() int {
	remaining := s.SlotsAvailable - s.SlotsFilled
	if remaining < 0 {
		return 0
	}
	return remaining
}

// VolunteerSignup 每个 (member, shift) 一行，取消时只改状态不删除。
type VolunteerSignup struct {
	ID          uint           `gorm:"primaryKey"`
	MemberID    uint           `gorm:"not null;uniqueIndex:idx_volunteer_signup_unique,priority:1"`
	ShiftID     uint           `gorm:"not null;index;uniqueIndex:idx_volunteer_signup_unique,priority:2"`
	Shift       VolunteerShift `gorm:"constraint:OnDelete:CASCADE"`
	Status      string         `gorm:"size:16;not null;index"`
	Notes       string         `gorm:"size:1000"`
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
