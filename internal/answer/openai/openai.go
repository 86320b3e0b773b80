package openai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"pdfrag/internal/answer"
	"pdfrag/internal/domain"
	embedopenai "pdfrag/internal/embedding/openai"
)

const DefaultModel = "gpt-4"

// Config configures the chat completion composer.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Composer generates answers with an OpenAI-compatible chat model.
type Composer struct {
	client      openai.Client
	model       string
	temperature float64
}

func New(cfg Config) (*Composer, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Composer{
		client:      openai.NewClient(embedopenai.RequestOptions(key, cfg.BaseURL, cfg.Timeout, 0, cfg.MaxRetries)...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Composer) Name() string { return "openai" }

// Compose sends the rendered prompt as a single user message.
func (c *Composer) Compose(ctx context.Context, query string, contexts []domain.ScoredResult) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(answer.BuildPrompt(query, contexts)),
		},
		Model: openai.ChatModel(c.model),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", embedopenai.Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion without choices", domain.ErrProviderUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
