package repository

import (
	"context"
	"fmt"

	"spiritualconnect/internal/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// UserRepositoryImpl reads the user directory.
type UserRepositoryImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

// FindOnlineUsers loads display fields for the given ids. Ids without a user row
// are skipped.
func (r *UserRepositoryImpl) FindOnlineUsers(ctx context.Context, ids []int) ([]models.OnlineUser, error) {
	if len(ids) == 0 {
		return []models.OnlineUser{}, nil
	}

	var users []*models.User
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load online users: %w", err)
	}

	return lo.Map(users, func(u *models.User, _ int) models.OnlineUser {
		return u.ToOnlineUser()
	}), nil
}
