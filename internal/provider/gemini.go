package provider

import (
	"context"

	"github.com/studykit/brain/internal/gemini"
)

// GeminiBackend adapts a Gemini client to the Backend interface.
type GeminiBackend struct {
	client *gemini.Client
}

// NewGeminiBackend wraps a Gemini client.
func NewGeminiBackend(client *gemini.Client) *GeminiBackend {
	return &GeminiBackend{client: client}
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	return b.client.Generate(ctx, model, prompt)
}

func (b *GeminiBackend) StreamChat(ctx context.Context, model string, messages []Message) <-chan Fragment {
	converted := make([]gemini.Message, len(messages))
	for i, m := range messages {
		converted[i] = gemini.Message{Role: m.Role, Content: m.Content}
	}

	out := make(chan Fragment, fragmentBuffer)
	go func() {
		defer close(out)
		err := b.client.ChatStream(ctx, model, converted, func(content string) error {
			if !emit(ctx, out, Fragment{Text: content}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			emit(ctx, out, Fragment{Err: err})
		}
	}()
	return out
}
