package models

import (
	"time"
)

// Message is a persisted direct message. It is created exactly once and never mutated.
// JSON field names follow the channel wire protocol.
type Message struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Room       string    `json:"room" gorm:"type:varchar(64);not null;index:idx_messages_room_time,priority:1"`
	SenderID   int       `json:"senderId" gorm:"not null"`
	SenderName string    `json:"senderName" gorm:"type:text;not null;default:''"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"column:created_at;autoCreateTime;index:idx_messages_room_time,priority:2"`
}

// TableName override
func (Message) TableName() string {
	return "messages"
}

// MessageCreate is the input accepted by both the REST and the channel send paths.
type MessageCreate struct {
	Room       string `json:"room" validate:"required"`
	SenderID   int    `json:"senderId" validate:"required,gt=0"`
	SenderName string `json:"senderName"`
	Content    string `json:"content" validate:"required"`
}
