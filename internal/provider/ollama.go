package provider

import (
	"context"

	"github.com/studykit/brain/internal/ollama"
)

// OllamaBackend adapts an Ollama client to the Backend interface.
type OllamaBackend struct {
	client *ollama.Client
	model  string
}

// NewOllamaBackend wraps an Ollama client with a default chat model.
func NewOllamaBackend(client *ollama.Client, model string) *OllamaBackend {
	return &OllamaBackend{client: client, model: model}
}

func (b *OllamaBackend) Name() string { return "ollama" }

func (b *OllamaBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = b.model
	}
	return b.client.Generate(ctx, model, prompt)
}

func (b *OllamaBackend) StreamChat(ctx context.Context, model string, messages []Message) <-chan Fragment {
	if model == "" {
		model = b.model
	}
	converted := make([]ollama.Message, len(messages))
	for i, m := range messages {
		converted[i] = ollama.Message{Role: m.Role, Content: m.Content}
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
