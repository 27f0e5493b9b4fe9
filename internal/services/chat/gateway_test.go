package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spiritualconnect/internal/models"
	"spiritualconnect/internal/repository"
	"spiritualconnect/internal/services/chat"
	"spiritualconnect/internal/services/chat/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []*models.Message
}

func (p *recordingPublisher) PublishMessage(msg *models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
}

func (p *recordingPublisher) contents(room string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.published {
		if m.Room == room {
			out = append(out, m.Content)
		}
	}
	return out
}

func newGateway(t *testing.T, repo chat.MessageRepository, shards int) *chat.Gateway {
	t.Helper()
	seq := chat.NewSequencer(shards, 16, zap.NewNop())
	seq.Start()
	t.Cleanup(seq.Shutdown)
	return chat.NewGateway(repo, seq, zap.NewNop())
}

func TestCreateMessageExample(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newGateway(t, repository.NewMemoryMessageRepository(), 4)
	pub := &recordingPublisher{}
	gw.SetPublisher(pub)

	msg, err := gw.CreateMessage(ctx, &models.MessageCreate{Room: "7-42", SenderID: 7, SenderName: "Arjuna", Content: "Namaste"})
	req.NoError(err)
	req.Equal(int64(1), msg.ID)
	req.Equal("7-42", msg.Room)
	req.Equal("Arjuna", msg.SenderName)
	req.False(msg.CreatedAt.IsZero())

	history, err := gw.ListMessages(ctx, "7-42")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(msg.ID, history[0].ID)
	req.Equal([]string{"Namaste"}, pub.contents("7-42"))
}

func TestCreateMessageValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock.NewMockMessageRepository(ctrl)
	// The store must never be reached for invalid input.
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
	gw := newGateway(t, repo, 1)

	tests := []struct {
		name  string
		in    *models.MessageCreate
		field string
	}{
		{"nil payload", nil, "payload"},
		{"missing room", &models.MessageCreate{SenderID: 7, Content: "hi"}, "room"},
		{"blank room", &models.MessageCreate{Room: "   ", SenderID: 7, Content: "hi"}, "room"},
		{"missing sender", &models.MessageCreate{Room: "7-42", Content: "hi"}, "senderId"},
		{"negative sender", &models.MessageCreate{Room: "7-42", SenderID: -1, Content: "hi"}, "senderId"},
		{"missing content", &models.MessageCreate{Room: "7-42", SenderID: 7}, "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.CreateMessage(context.Background(), tt.in)
			require.ErrorIs(t, err, chat.ErrValidation)
			require.ErrorContains(t, err, tt.field)
		})
	}
}

func TestCreateMessagePersistenceFailureSkipsPublish(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mock.NewMockMessageRepository(ctrl)
	repo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))

	gw := newGateway(t, repo, 1)
	pub := &recordingPublisher{}
	gw.SetPublisher(pub)

	_, err := gw.CreateMessage(context.Background(), &models.MessageCreate{Room: "7-42", SenderID: 7, Content: "hi"})
	req.ErrorIs(err, chat.ErrPersistence)
	req.ErrorContains(err, "connection refused")
	req.Empty(pub.contents("7-42"))
}

func TestListMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock.NewMockMessageRepository(ctrl)
	gw := newGateway(t, repo, 1)

	t.Run("blank room", func(t *testing.T) {
		_, err := gw.ListMessages(context.Background(), "")
		require.ErrorIs(t, err, chat.ErrValidation)
	})

	t.Run("nil from store becomes empty", func(t *testing.T) {
		repo.EXPECT().ListByRoom(gomock.Any(), "3-4").Return(nil, nil)
		got, err := gw.ListMessages(context.Background(), "3-4")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Empty(t, got)
	})

	t.Run("store failure", func(t *testing.T) {
		repo.EXPECT().ListByRoom(gomock.Any(), "3-4").Return(nil, errors.New("timeout"))
		_, err := gw.ListMessages(context.Background(), "3-4")
		require.ErrorIs(t, err, chat.ErrPersistence)
	})
}

// slowFirstRepo delays the first create so that an unserialized second create
// would overtake it.
type slowFirstRepo struct {
	*repository.MemoryMessageRepository
	mu    sync.Mutex
	calls int
}

func (r *slowFirstRepo) Create(ctx context.Context, in *models.MessageCreate) (*models.Message, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		time.Sleep(50 * time.Millisecond)
	}
	return r.MemoryMessageRepository.Create(ctx, in)
}

func TestCreatesForOneRoomKeepSubmissionOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := &slowFirstRepo{MemoryMessageRepository: repository.NewMemoryMessageRepository()}
	gw := newGateway(t, repo, 4)
	pub := &recordingPublisher{}
	gw.SetPublisher(pub)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := gw.CreateMessage(ctx, &models.MessageCreate{Room: "7-42", SenderID: 7, Content: "m1"})
		assert.NoError(t, err)
	}()
	// m1 is queued before m2 is submitted.
	time.Sleep(10 * time.Millisecond)
	_, err := gw.CreateMessage(ctx, &models.MessageCreate{Room: "7-42", SenderID: 42, Content: "m2"})
	req.NoError(err)
	wg.Wait()

	history, err := gw.ListMessages(ctx, "7-42")
	req.NoError(err)
	req.Equal([]string{"m1", "m2"}, []string{history[0].Content, history[1].Content})
	req.Equal([]string{"m1", "m2"}, pub.contents("7-42"))
}

func TestSerializedSendsAreRetrievedInOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newGateway(t, repository.NewMemoryMessageRepository(), 3)

	senders := []int{7, 42, 7}
	for i, sender := range senders {
		_, err := gw.CreateMessage(ctx, &models.MessageCreate{Room: "7-42", SenderID: sender, Content: fmt.Sprintf("m%d", i+1)})
		req.NoError(err)
	}

	history, err := gw.ListMessages(ctx, "7-42")
	req.NoError(err)
	req.Len(history, 3)
	for i := range history {
		req.Equal(fmt.Sprintf("m%d", i+1), history[i].Content)
		if i > 0 {
			req.True(history[i].CreatedAt.After(history[i-1].CreatedAt))
		}
	}
}

func TestCreateAfterShutdown(t *testing.T) {
	seq := chat.NewSequencer(2, 4, zap.NewNop())
	seq.Start()
	gw := chat.NewGateway(repository.NewMemoryMessageRepository(), seq, zap.NewNop())
	seq.Shutdown()

	_, err := gw.CreateMessage(context.Background(), &models.MessageCreate{Room: "1-2", SenderID: 1, Content: "late"})
	require.ErrorIs(t, err, chat.ErrShuttingDown)
}

type slowRepo struct {
	*repository.MemoryMessageRepository
	delay time.Duration
}

func (r *slowRepo) Create(ctx context.Context, in *models.MessageCreate) (*models.Message, error) {
	time.Sleep(r.delay)
	return r.MemoryMessageRepository.Create(ctx, in)
}

func TestCreateMessageReportsSaveThatOutlivedDeadline(t *testing.T) {
	req := require.New(t)
	repo := &slowRepo{MemoryMessageRepository: repository.NewMemoryMessageRepository(), delay: 80 * time.Millisecond}
	gw := newGateway(t, repo, 1)
	pub := &recordingPublisher{}
	gw.SetPublisher(pub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	msg, err := gw.CreateMessage(ctx, &models.MessageCreate{Room: "7-42", SenderID: 7, Content: "late"})
	req.NoError(err)
	req.Equal("late", msg.Content)
	req.Equal([]string{"late"}, pub.contents("7-42"))
}
