package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shepherd/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrShiftRequired 在未提供 shift_id 时返回
	ErrShiftRequired = errors.New("shift_id is required")
	// ErrShiftNotFound 在志愿时段不存在时返回
	ErrShiftNotFound = errors.New("shift not found")
	// ErrShiftStarted 在时段已开始后报名时返回
	ErrShiftStarted = errors.New("shift has already started")
	// ErrNoAvailableSlots 在名额已满时返回
	ErrNoAvailableSlots = errors.New("no available slots")
	// ErrAlreadySignedUp 在重复报名时返回
	ErrAlreadySignedUp = errors.New("already signed up for this shift")
	// ErrSignupNotFound 在报名记录不存在或不属于当前会员时返回
	ErrSignupNotFound = errors.New("signup not found")
	// ErrShiftInvalid 在后台创建时段参数不合法时返回
	ErrShiftInvalid = errors.New("invalid shift")
)

const maxSignupNotesRunes = 1000

// VolunteerService 负责志愿时段容量与报名。
// 名额占用使用单条条件更新（slots_filled < slots_available）并与报名写入同事务，避免超卖。
type VolunteerService struct {
	db     *gorm.DB
	now    func() time.Time
	policy *bluemonday.Policy
}

// SignupInput 会员报名参数
type SignupInput struct {
	ShiftID uint
	Notes   string
}

// SignupFilter 报名列表过滤条件
type SignupFilter struct {
	Status   string
	Upcoming bool
}

// SignupList 为报名列表与合计小时数
type SignupList struct {
	Signups    []db.VolunteerSignup
	TotalHours float64
}

// ShiftInput 后台创建时段参数
type ShiftInput struct {
	Title          string
	Ministry       string
	Location       string
	Description    string
	StartsAt       time.Time
	EndsAt         time.Time
	SlotsAvailable int
}

// NewVolunteerService 构造 VolunteerService
func NewVolunteerService(gdb *gorm.DB) *VolunteerService {
	return &VolunteerService{db: gdb, now: time.Now, policy: bluemonday.StrictPolicy()}
}

// SetClock 覆盖当前时间来源，主要用于测试。
func (s *VolunteerService) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Signup 为会员报名时段。已取消的报名会被重新激活；已确认的报名视为重复。
func (s *VolunteerService) Signup(ctx context.Context, memberID uint, input SignupInput) (*db.VolunteerSignup, error) {
	if input.ShiftID == 0 {
		return nil, ErrShiftRequired
	}
	notes := s.sanitizeNotes(input.Notes)

	var signup db.VolunteerSignup
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shift db.VolunteerShift
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&shift, input.ShiftID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShiftNotFound
			}
			return fmt.Errorf("find shift: %w", err)
		}
		if !shift.StartsAt.After(s.now()) {
			return ErrShiftStarted
		}

		var existing db.VolunteerSignup
		found := true
		if err := tx.Where("member_id = ? AND shift_id = ?", memberID, shift.ID).First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find signup: %w", err)
			}
			found = false
		}
		if found && existing.Status == db.SignupStatusConfirmed {
			return ErrAlreadySignedUp
		}

		if err := claimSlot(tx, shift.ID); err != nil {
			return err
		}

		if found {
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"status":       db.SignupStatusConfirmed,
				"notes":        notes,
				"cancelled_at": nil,
			}).Error; err != nil {
				return fmt.Errorf("reactivate signup: %w", err)
			}
			signup = existing
		} else {
			signup = db.VolunteerSignup{
				MemberID: memberID,
				ShiftID:  shift.ID,
				Status:   db.SignupStatusConfirmed,
				Notes:    notes,
			}
			if err := tx.Omit("Shift").Create(&signup).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrAlreadySignedUp
				}
				return fmt.Errorf("create signup: %w", err)
			}
		}

		return tx.Preload("Shift").First(&signup, signup.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &signup, nil
}

// claimSlot 以单条语句占用一个名额，容量不足时不修改任何行。
func claimSlot(tx *gorm.DB, shiftID uint) error {
	res := tx.Model(&db.VolunteerShift{}).
		Where("id = ? AND slots_filled < slots_available", shiftID).
		UpdateColumn("slots_filled", gorm.Expr("slots_filled + 1"))
	if res.Error != nil {
		return fmt.Errorf("claim slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoAvailableSlots
	}
	return nil
}

// Cancel 取消会员的报名并释放名额，slots_filled 不会小于 0；已取消的报名直接返回。
func (s *VolunteerService) Cancel(ctx context.Context, memberID, signupID uint) (*db.VolunteerSignup, error) {
	var signup db.VolunteerSignup
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND member_id = ?", signupID, memberID).First(&signup).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSignupNotFound
			}
			return fmt.Errorf("find signup: %w", err)
		}

		now := s.now()
		res := tx.Model(&db.VolunteerSignup{}).
			Where("id = ? AND status = ?", signup.ID, db.SignupStatusConfirmed).
			Updates(map[string]interface{}{"status": db.SignupStatusCancelled, "cancelled_at": now})
		if res.Error != nil {
			return fmt.Errorf("cancel signup: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&db.VolunteerShift{}).
			Where("id = ? AND slots_filled > 0", signup.ShiftID).
			UpdateColumn("slots_filled", gorm.Expr("slots_filled - 1")).Error; err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		return tx.First(&signup, signup.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &signup, nil
}

// List 返回会员的报名与合计小时数（已取消的报名不计入小时数）。
func (s *VolunteerService) List(ctx context.Context, memberID uint, filter SignupFilter) (*SignupList, error) {
	query := s.db.WithContext(ctx).
		Model(&db.VolunteerSignup{}).
		Joins("JOIN volunteer_shifts ON volunteer_shifts.id = volunteer_signups.shift_id AND volunteer_shifts.deleted_at IS NULL").
		Where("volunteer_signups.member_id = ?", memberID).
		Preload("Shift")

	if status := strings.ToLower(strings.TrimSpace(filter.Status)); status != "" {
		query = query.Where("volunteer_signups.status = ?", status)
	}
	if filter.Upcoming {
		query = query.Where("volunteer_shifts.starts_at > ?", s.now())
	}

	var signups []db.VolunteerSignup
	if err := query.Order("volunteer_shifts.starts_at ASC").Find(&signups).Error; err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}

	list := &SignupList{Signups: signups}
	for _, signup := range signups {
		if signup.Status == db.SignupStatusCancelled {
			continue
		}
		list.TotalHours += signup.Shift.Hours()
	}
	return list, nil
}

// CreateShift 后台新建志愿时段
func (s *VolunteerService) CreateShift(ctx context.Context, input ShiftInput) (*db.VolunteerShift, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrShiftInvalid)
	}
	if input.SlotsAvailable <= 0 {
		return nil, fmt.Errorf("%w: slots_available must be positive", ErrShiftInvalid)
	}
	if input.StartsAt.IsZero() || !input.EndsAt.After(input.StartsAt) {
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", ErrShiftInvalid)
	}

	shift := db.VolunteerShift{
		Title:          title,
		Ministry:       strings.TrimSpace(input.Ministry),
		Location:       strings.TrimSpace(input.Location),
		Description:    strings.TrimSpace(input.Description),
		StartsAt:       input.StartsAt,
		EndsAt:         input.EndsAt,
		SlotsAvailable: input.SlotsAvailable,
	}
	if err := s.db.WithContext(ctx).Create(&shift).Error; err != nil {
		return nil, fmt.Errorf("create shift: %w", err)
	}
	return &shift, nil
}

// ListShifts 返回时段列表；upcoming 为 true 时只返回未开始的时段
func (s *VolunteerService) ListShifts(ctx context.Context, upcoming bool) ([]db.VolunteerShift, error) {
	query := s.db.WithContext(ctx).Model(&db.VolunteerShift{})
	if upcoming {
		query = query.Where("starts_at > ?", s.now())
	}

	var shifts []db.VolunteerShift
	if err := query.Order("starts_at ASC").Find(&shifts).Error; err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	return shifts, nil
}

func (s *VolunteerService) sanitizeNotes(raw string) string {
	cleaned := strings.TrimSpace(s.policy.Sanitize(raw))
	return truncateRunes(cleaned, maxSignupNotesRunes)
}
