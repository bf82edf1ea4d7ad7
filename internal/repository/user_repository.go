package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/stream/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户查询
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindUser 按 ID 查询用户
func (r *UserRepository) FindUser(ctx context.Context, userId string) (*model.UserModel, error) {
	var user model.UserModel
	err := r.db.WithContext(ctx).Where("id = ?", userId).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userId, err)
	}
	return &user, nil
}

// PlatformRepository 平台绑定查询
type PlatformRepository struct {
	db *gorm.DB
}

func NewPlatformRepository(db *gorm.DB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

// FindPlatformsByUserId 查询用户绑定的全部平台身份
func (r *PlatformRepository) FindPlatformsByUserId(ctx context.Context, userId string) ([]model.PlatformModel, error) {
	var platforms []model.PlatformModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userId).Order("id ASC").Find(&platforms).Error; err != nil {
		return nil, fmt.Errorf("find platforms for user %s: %w", userId, err)
	}
	return platforms, nil
}

// PromoRepository 推广奖励黑名单
type PromoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

// FindUserPromo 用户是否已领取推广奖励
func (r *PromoRepository) FindUserPromo(ctx context.Context, userId string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.PromoBlacklistModel{}).Where("user_id = ?", userId).Count(&count).Error; err != nil {
		return false, fmt.Errorf("find promo for user %s: %w", userId, err)
	}
	return count > 0, nil
}

// AddUserPromoBlacklist 加入黑名单, 已存在时返回 false
func (r *PromoRepository) AddUserPromoBlacklist(ctx context.Context, userId string) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.PromoBlacklistModel{UserId: userId})
	if result.Error != nil {
		return false, fmt.Errorf("add promo blacklist %s: %w", userId, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RemoveUserPromoBlacklist 发放失败时移出黑名单
func (r *PromoRepository) RemoveUserPromoBlacklist(ctx context.Context, userId string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userId).Delete(&model.PromoBlacklistModel{}).Error; err != nil {
		return fmt.Errorf("remove promo blacklist %s: %w", userId, err)
	}
	return nil
}
