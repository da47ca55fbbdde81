// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"yuanfen-go/internal/model"
)

// UserRepository 接口定义了用户与资料数据的持久化操作。
type UserRepository interface {
	Create(user *model.User) error
	FindByUsername(username string) (*model.User, error)
	FindByID(userID uint) (*model.User, error)
	FindByIDs(userIDs []uint) ([]model.User, error)

	UpsertProfile(profile *model.Profile) error
	FindProfileByUserID(userID uint) (*model.Profile, error)
	FindProfilesByUserIDs(userIDs []uint) ([]model.Profile, error)
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByUsername 根据用户名从数据库中查找一个用户。
func (r *userRepository) FindByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID 根据用户 ID 从数据库中查找一个用户。
func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	err := r.db.First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs 批量查找用户。
func (r *userRepository) FindByIDs(userIDs []uint) ([]model.User, error) {
	var users []model.User
	err := r.db.Where("id IN ?", userIDs).Find(&users).Error
	return users, err
}

// UpsertProfile 创建或更新一条资料记录（按 user_id 定位）。
func (r *userRepository) UpsertProfile(profile *model.Profile) error {
	var existing model.Profile
	err := r.db.Where("user_id = ?", profile.UserID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.Create(profile).Error
	}
	if err != nil {
		return err
	}
	profile.ID = existing.ID
	profile.CreatedAt = existing.CreatedAt
	return r.db.Save(profile).Error
}

// FindProfileByUserID 查找用户的资料记录。
func (r *userRepository) FindProfileByUserID(userID uint) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindProfilesByUserIDs 批量查找资料记录。
func (r *userRepository) FindProfilesByUserIDs(userIDs []uint) ([]model.Profile, error) {
	var profiles []model.Profile
	err := r.db.Where("user_id IN ?", userIDs).Find(&profiles).Error
	return profiles, err
}
