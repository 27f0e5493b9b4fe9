package api

import (
	"context"

	"spiritualconnect/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES

The handlers declare exactly what they call. The chat gateway, the realtime
hub, the assistant and the database each satisfy one of these without
knowing this package exists, and tests substitute small fakes.
*/

// MessageService is the shared read/write path for chat messages.
type MessageService interface {
	ListMessages(ctx context.Context, room string) ([]*models.Message, error)
	CreateMessage(ctx context.Context, in *models.MessageCreate) (*models.Message, error)
	PendingWrites() int
}

// PresenceService exposes the live presence snapshot.
type PresenceService interface {
	OnlineUsers(ctx context.Context) []models.OnlineUser
	ConnectionCount() int
	OnlineCount() int
}

// Assistant answers free-form questions.
type Assistant interface {
	Ask(ctx context.Context, question string) (string, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
