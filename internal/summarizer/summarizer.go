// Package summarizer turns a list of news items into an HTML digest body
// using a hosted language model.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stock_digest/internal/domain"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const systemPrompt = `You write the body of a daily market news email.

Rules:
1. Use only the articles supplied by the user. Never invent facts, prices or dates.
2. Group related articles and open with the most important market-moving story.
3. For each story write a short heading and two or three plain sentences explaining what happened and why it matters to a retail investor.
4. Keep a calm, neutral tone. No hype words, no ALL CAPS, no investment advice.
5. End each story with a "Read more" link to its url.

Output a single HTML fragment using only <h3>, <p>, <ul>, <li>, <strong> and <a> tags.
No <html>, <head> or <body> tags, no markdown, no code fences.`

type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// Summarizer is satisfied by every provider client. An empty string with a
// nil error means the model produced nothing usable.
type Summarizer interface {
	Summarize(ctx context.Context, news []domain.NewsItem) (string, error)
}

func New(cfg Config) (Summarizer, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}

func buildUserPrompt(news []domain.NewsItem) (string, error) {
	payload, err := json.MarshalIndent(news, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal news: %w", err)
	}
	return "Today's articles as JSON:\n\n" + string(payload), nil
}

func cleanOutput(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```html")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
