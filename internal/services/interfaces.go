package services

import (
	"context"

	"spiritualconnect/internal/openai"
)

/*
LEARNING: INTERFACES LIVE WITH THE CONSUMER

"Accept interfaces, return structs"

The assistant only needs one method from the AI client, so it declares just
that. Tests swap in a fake without touching the openai package.
*/

// ChatCompleter generates one completion for a conversation.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []openai.ChatMessage) (string, error)
}
