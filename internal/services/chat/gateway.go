package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"spiritualconnect/internal/middleware"
	"spiritualconnect/internal/models"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock/repository.go -package=mock spiritualconnect/internal/services/chat MessageRepository

// MessageRepository is what the gateway needs from message storage.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.MessageCreate) (*models.Message, error)
	ListByRoom(ctx context.Context, room string) ([]*models.Message, error)
}

// Publisher receives every message right after it is persisted, on the
// room's sequencer shard, so publications for a room keep persistence order.
type Publisher interface {
	PublishMessage(msg *models.Message)
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Gateway is the single write and read path for chat messages. The REST
// facade and the realtime channel both go through it.
type Gateway struct {
	repo      MessageRepository
	sequencer *Sequencer
	publisher Publisher
	log       *zap.Logger
}

func NewGateway(repo MessageRepository, sequencer *Sequencer, log *zap.Logger) *Gateway {
	return &Gateway{
		repo:      repo,
		sequencer: sequencer,
		log:       log,
	}
}

// SetPublisher sets the sink for newly created messages.
func (g *Gateway) SetPublisher(p Publisher) {
	g.publisher = p
}

// ListMessages returns the room history oldest first. A room without history
// yields an empty slice.
func (g *Gateway) ListMessages(ctx context.Context, room string) ([]*models.Message, error) {
	ctx, span := middleware.StartSpan(ctx, "Chat.ListMessages", attribute.String("chat.room", room))
	defer span.End()

	if strings.TrimSpace(room) == "" {
		return nil, fmt.Errorf("%w: room id is required", ErrValidation)
	}

	messages, err := g.repo.ListByRoom(ctx, room)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

// CreateMessage validates and persists in, then hands the stored record to the
// publisher. Creates for the same room are serialized.
func (g *Gateway) CreateMessage(ctx context.Context, in *models.MessageCreate) (*models.Message, error) {
	ctx, span := middleware.StartSpan(ctx, "Chat.CreateMessage")
	defer span.End()

	if err := Validate(in); err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("chat.room", in.Room),
		attribute.Int("chat.sender_id", in.SenderID),
	)

	var (
		saved   *models.Message
		saveErr error
	)
	err := g.sequencer.Do(ctx, in.Room, func() {
		// the deadline may have passed just as the job was picked up
		if saveErr = ctx.Err(); saveErr != nil {
			return
		}
		saved, saveErr = g.repo.Create(ctx, in)
		if saveErr != nil {
			return
		}
		if g.publisher != nil {
			g.publisher.PublishMessage(saved)
		}
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, ErrShuttingDown) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if saveErr != nil {
		middleware.AddSpanError(ctx, saveErr)
		g.log.Warn("failed to save chat message", zap.String("room", in.Room), zap.Error(saveErr))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, saveErr)
	}

	return saved, nil
}

// PendingWrites returns how many creates are queued behind their room's writer.
func (g *Gateway) PendingWrites() int {
	return g.sequencer.QueueLength()
}

// Validate checks that room, senderId and content are present.
func Validate(in *models.MessageCreate) error {
	if in == nil {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	in.Room = strings.TrimSpace(in.Room)
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: missing or invalid %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
