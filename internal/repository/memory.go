package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spiritualconnect/internal/models"
)

// MemoryMessageRepository keeps messages in process memory. It backs the
// "memory" store driver used for local development and tests.
type MemoryMessageRepository struct {
	mu       sync.Mutex
	nextID   int64
	messages []models.Message
	now      func() time.Time
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{now: time.Now}
}

func (r *MemoryMessageRepository) Create(ctx context.Context, in *models.MessageCreate) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := r.now().UTC()
	if n := len(r.messages); n > 0 && !createdAt.After(r.messages[n-1].CreatedAt) {
		// keep creation times strictly increasing like a sequence
		createdAt = r.messages[n-1].CreatedAt.Add(time.Microsecond)
	}

	r.nextID++
	msg := models.Message{
		ID:         r.nextID,
		Room:       in.Room,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Content:    in.Content,
		CreatedAt:  createdAt,
	}
	r.messages = append(r.messages, msg)

	return &msg, nil
}

func (r *MemoryMessageRepository) ListByRoom(ctx context.Context, room string) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Message, 0)
	for i := range r.messages {
		if r.messages[i].Room == room {
			msg := r.messages[i]
			out = append(out, &msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryUserRepository is a fixed user directory. Ids it does not know are
// reported with no display fields, since nothing can register users in memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int]models.User
}

func NewMemoryUserRepository(users ...models.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[int]models.User, len(users))}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *MemoryUserRepository) FindOnlineUsers(ctx context.Context, ids []int) ([]models.OnlineUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.OnlineUser, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u.ToOnlineUser())
			continue
		}
		out = append(out, models.OnlineUser{ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
