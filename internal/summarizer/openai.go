package summarizer

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"stock_digest/internal/domain"
)

type OpenAIClient struct {
	client    *openai.Client
	model     openai.ChatModel
	maxTokens int64
}

func NewOpenAIClient(cfg Config, opts ...option.RequestOption) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}

	client := openai.NewClient(reqOpts...)
	return &OpenAIClient{
		client:    &client,
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

func (c *OpenAIClient) Summarize(ctx context.Context, news []domain.NewsItem) (string, error) {
	userPrompt, err := buildUserPrompt(news)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return cleanOutput(resp.Choices[0].Message.Content), nil
}
