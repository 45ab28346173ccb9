// Package gemini wraps the Google Gemini API for plain-text generation
// and streaming chat.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Message is a single chat turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client talks to the Gemini API with a fixed default model.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Client using API-key auth against the Gemini API backend.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

// Model returns the configured default model name.
func (c *Client) Model() string {
	return c.model
}

// Generate sends a single prompt and returns the full response text.
// An empty model selects the client default.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.model
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}

// ChatStream sends a chat conversation and invokes fn for every response
// fragment as it arrives, in order. All messages before the final user
// message become chat history; the final user message is the one streamed.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, fn func(content string) error) error {
	if model == "" {
		model = c.model
	}
	history, last, err := frameHistory(messages)
	if err != nil {
		return err
	}

	chat, err := c.client.Chats.Create(ctx, model, nil, history)
	if err != nil {
		return fmt.Errorf("creating gemini chat: %w", err)
	}

	for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: last}) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			if cbErr := fn(text); cbErr != nil {
				return cbErr
			}
		}
	}
	return nil
}

// frameHistory splits messages into prior history and the final user message.
// Assistant turns map to the model role. The last message must be from the
// user; everything before it is history regardless of role.
func frameHistory(messages []Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("gemini: no messages")
	}
	last := messages[len(messages)-1]
	if strings.ToLower(last.Role) != "user" {
		return nil, "", fmt.Errorf("gemini: last message must have role user, got %q", last.Role)
	}

	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		role := genai.RoleUser
		if strings.ToLower(m.Role) == "assistant" {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return history, last.Content, nil
}
