package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shepherd/internal/db"
	"gorm.io/gorm"
)

// ErrMemberNotFound 在认证用户没有对应会员档案时返回
var ErrMemberNotFound = errors.New("member not found")

// MemberService 负责把认证身份解析为会员档案
type MemberService struct {
	db *gorm.DB
}

// NewMemberService 构造 MemberService
func NewMemberService(gdb *gorm.DB) *MemberService {
	return &MemberService{db: gdb}
}

// ResolveByAuthUser 根据托管认证服务的用户 ID 查找会员
func (s *MemberService) ResolveByAuthUser(ctx context.Context, authUserID string) (*db.Member, error) {
	id := strings.TrimSpace(authUserID)
	if id == "" {
		return nil, ErrMemberNotFound
	}

	var member db.Member
	if err := s.db.WithContext(ctx).Where("auth_user_id = ?", id).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("resolve member: %w", err)
	}
	return &member, nil
}

// Get 根据会员 ID 获取档案
func (s *MemberService) Get(ctx context.Context, id uint) (*db.Member, error) {
	var member db.Member
	if err := s.db.WithContext(ctx).First(&member, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &member, nil
}
