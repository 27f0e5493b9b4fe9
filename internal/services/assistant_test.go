package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"spiritualconnect/internal/openai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	answer string
	err    error
	got    []openai.ChatMessage
}

func (f *fakeCompleter) ChatCompletion(_ context.Context, messages []openai.ChatMessage) (string, error) {
	f.got = messages
	return f.answer, f.err
}

func TestAsk(t *testing.T) {
	fake := &fakeCompleter{answer: "Sit quietly for ten breaths."}
	svc := NewAssistantService(fake, zap.NewNop())

	answer, err := svc.Ask(context.Background(), "  How do I begin?  ")
	require.NoError(t, err)
	assert.Equal(t, "Sit quietly for ten breaths.", answer)

	require.Len(t, fake.got, 2)
	assert.Equal(t, "system", fake.got[0].Role)
	assert.Equal(t, openai.ChatMessage{Role: "user", Content: "How do I begin?"}, fake.got[1])
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name     string
		client   ChatCompleter
		question string
		wantErr  error
	}{
		{"blank question", &fakeCompleter{}, "   ", ErrEmptyQuestion},
		{"too long", &fakeCompleter{}, strings.Repeat("a", maxQuestionLength+1), ErrEmptyQuestion},
		{"not configured", nil, "what is karma?", ErrAssistantUnavailable},
		{"provider failure", &fakeCompleter{err: errors.New("status 500")}, "what is karma?", ErrAssistantFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAssistantService(tt.client, zap.NewNop())
			_, err := svc.Ask(context.Background(), tt.question)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
