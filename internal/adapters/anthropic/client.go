package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/llm"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/utils"
)

// Method tags decisions produced by this provider.
const Method = "llm_anthropic"

// Config holds the Anthropic provider settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	MaxBodySize int
}

// Client classifies messages with the Anthropic messages API.
type Client struct {
	client anthropic.Client
	cfg    Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewClient creates an Anthropic-backed external classifier.
func NewClient(cfg Config, text *utils.TextProcessor, logger *zap.Logger) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		text:   text,
		logger: logger,
	}
}

// Classify asks the model for a spam verdict on one message.
func (c *Client) Classify(ctx context.Context, email *core.Email) (*core.Decision, error) {
	body := c.text.ProcessText(email.Body, c.cfg.MaxBodySize)
	prompt := llm.BuildPrompt(email, body)

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: llm.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message with Anthropic: %w", err)
	}

	responseText := ""
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("no text content in Anthropic response")
	}

	analysis, err := llm.ParseAnalysis(responseText)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Anthropic verdict",
		zap.String("model", c.cfg.Model),
		zap.Bool("is_spam", analysis.IsSpam),
		zap.Float64("confidence", analysis.Confidence))
	return analysis.Decision(Method), nil
}
