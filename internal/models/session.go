package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Connection describes one live channel connection.
// UserID is the identity verified at upgrade time, zero for anonymous connections.
type Connection struct {
	ID           string    `json:"id"`
	UserID       int       `json:"user_id,omitempty"`
	UserName     string    `json:"user_name,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func NewConnection(userID int, userName string) *Connection {
	now := time.Now()
	return &Connection{
		ID:           ksuid.New().String(),
		UserID:       userID,
		UserName:     userName,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// Authenticated reports whether the connection carries a verified identity.
func (c *Connection) Authenticated() bool {
	return c.UserID != 0
}
