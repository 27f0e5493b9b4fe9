package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spiritualconnect/internal/middleware"
	"spiritualconnect/internal/openai"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrAssistantUnavailable = errors.New("assistant is not configured")
	ErrEmptyQuestion        = errors.New("question is required")
	ErrAssistantFailed      = errors.New("assistant request failed")
)

const maxQuestionLength = 2000

const systemPrompt = `You are a spiritual guide for the SpiritualConnect community, familiar with yoga, meditation, dharma, karma, Buddhism, Taoism, Stoicism and Hindu philosophy.
Answer with a short teaching, a practice the seeker can try, the tradition or text it comes from, and one point for reflection.
Be warm, practical and respectful of every tradition.`

// AssistantService answers free-form questions through the AI client.
type AssistantService struct {
	client ChatCompleter
	log    *zap.Logger
}

// NewAssistantService returns a service that reports ErrAssistantUnavailable
// when client is nil.
func NewAssistantService(client ChatCompleter, log *zap.Logger) *AssistantService {
	return &AssistantService{client: client, log: log}
}

// Available reports whether an AI client is configured.
func (s *AssistantService) Available() bool {
	return s.client != nil
}

// Ask sends question to the model and returns its answer.
func (s *AssistantService) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)

	ctx, span := middleware.StartSpan(ctx, "Assistant.Ask",
		attribute.Int("question_length", len(question)),
	)
	defer span.End()

	if question == "" {
		return "", ErrEmptyQuestion
	}
	if len(question) > maxQuestionLength {
		return "", fmt.Errorf("%w: question exceeds %d characters", ErrEmptyQuestion, maxQuestionLength)
	}
	if !s.Available() {
		return "", ErrAssistantUnavailable
	}

	answer, err := s.client.ChatCompletion(ctx, []openai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		s.log.Warn("assistant completion failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAssistantFailed, err)
	}

	middleware.AddSpanEvent(ctx, "assistant_answered",
		attribute.Int("answer_length", len(answer)),
	)

	return answer, nil
}
