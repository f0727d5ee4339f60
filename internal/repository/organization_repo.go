package repository

import (
	"context"

	"gorm.io/gorm"

	"tempora/backend/internal/model"
)

// OrganizationRepository 组织与成员关系数据访问接口
type OrganizationRepository interface {
	GetMembership(ctx context.Context, organizationID, userID string) (*model.OrganizationMember, error)
	ListMemberships(ctx context.Context, userID string) ([]model.OrganizationMember, error)
}

type organizationRepo struct {
	db *gorm.DB
}

// NewOrganizationRepo 创建 OrganizationRepository 实例
func NewOrganizationRepo(db *gorm.DB) OrganizationRepository {
	return &organizationRepo{db: db}
}

func (r *organizationRepo) GetMembership(ctx context.Context, organizationID, userID string) (*model.OrganizationMember, error) {
	var member model.OrganizationMember
	err := r.db.WithContext(ctx).
		Preload("Organization").
		Where("organization_id = ? AND user_id = ?", organizationID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMemberships 按加入时间升序，首个即默认组织
func (r *organizationRepo) ListMemberships(ctx context.Context, userID string) ([]model.OrganizationMember, error) {
	var members []model.OrganizationMember
	err := r.db.WithContext(ctx).
		Preload("Organization").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}
