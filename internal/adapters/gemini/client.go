package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/antispam/internal/adapters/llm"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/utils"
)

// Method tags decisions produced by this provider.
const Method = "llm_gemini"

// Config holds the Gemini provider settings.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// Client classifies messages with the Google Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewClient creates a Gemini-backed external classifier.
func NewClient(ctx context.Context, cfg Config, text *utils.TextProcessor, logger *zap.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))

	return &Client{
		client: client,
		model:  model,
		cfg:    cfg,
		text:   text,
		logger: logger,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Classify asks the model for a spam verdict on one message.
func (c *Client) Classify(ctx context.Context, email *core.Email) (*core.Decision, error) {
	body := c.text.ProcessText(email.Body, c.cfg.MaxBodySize)
	prompt := llm.BuildPrompt(email, body)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])
	analysis, err := llm.ParseAnalysis(responseText)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Gemini verdict",
		zap.String("model", c.cfg.Model),
		zap.Bool("is_spam", analysis.IsSpam),
		zap.Float64("confidence", analysis.Confidence))
	return analysis.Decision(Method), nil
}
