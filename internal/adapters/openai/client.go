package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/llm"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/utils"
)

// Method tags decisions produced by this provider.
const Method = "llm_openai"

// Config holds the OpenAI provider settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// Client classifies messages with the OpenAI chat completion API.
type Client struct {
	client *openai.Client
	cfg    Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewClient creates an OpenAI-backed external classifier.
func NewClient(cfg Config, text *utils.TextProcessor, logger *zap.Logger) *Client {
	return &Client{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
		text:   text,
		logger: logger,
	}
}

// Classify asks the model for a spam verdict on one message.
func (c *Client) Classify(ctx context.Context, email *core.Email) (*core.Decision, error) {
	body := c.text.ProcessText(email.Body, c.cfg.MaxBodySize)
	prompt := llm.BuildPrompt(email, body)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llm.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	analysis, err := llm.ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("OpenAI verdict",
		zap.String("model", c.cfg.Model),
		zap.Bool("is_spam", analysis.IsSpam),
		zap.Float64("confidence", analysis.Confidence))
	return analysis.Decision(Method), nil
}
