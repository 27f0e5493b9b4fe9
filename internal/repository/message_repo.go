package repository

import (
	"context"
	"fmt"

	"spiritualconnect/internal/models"

	"gorm.io/gorm"
)

// MessageRepositoryImpl stores chat messages with GORM.
type MessageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{db: db}
}

// Create inserts a message. The database assigns ID and CreatedAt.
func (r *MessageRepositoryImpl) Create(ctx context.Context, in *models.MessageCreate) (*models.Message, error) {
	msg := &models.Message{
		Room:       in.Room,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Content:    in.Content,
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

// ListByRoom returns every message of a room, oldest first.
func (r *MessageRepositoryImpl) ListByRoom(ctx context.Context, room string) ([]*models.Message, error) {
	messages := make([]*models.Message, 0)

	err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("created_at ASC").
		Order("id ASC"). // same-timestamp inserts keep insertion order
		Find(&messages).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}
