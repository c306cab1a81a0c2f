package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/llm"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/utils"
)

// Method tags decisions produced by this provider.
const Method = "llm_bedrock"

// Config holds the Bedrock provider settings.
type Config struct {
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// Client classifies messages with Amazon Bedrock. The request and
// response payloads differ per model family, so both are switched on the
// model ID prefix.
type Client struct {
	client *bedrockruntime.Client
	cfg    Config
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewClient creates a Bedrock-backed external classifier from an already
// configured runtime client.
func NewClient(client *bedrockruntime.Client, cfg Config, text *utils.TextProcessor, logger *zap.Logger) *Client {
	return &Client{
		client: client,
		cfg:    cfg,
		text:   text,
		logger: logger,
	}
}

// Classify asks the model for a spam verdict on one message.
func (c *Client) Classify(ctx context.Context, email *core.Email) (*core.Decision, error) {
	body := c.text.ProcessText(email.Body, c.cfg.MaxBodySize)
	prompt := llm.BuildPrompt(email, body)

	payload, err := c.requestPayload(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.cfg.ModelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := c.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	analysis, err := llm.ParseAnalysis(responseText)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Bedrock verdict",
		zap.String("model", c.cfg.ModelID),
		zap.Bool("is_spam", analysis.IsSpam),
		zap.Float64("confidence", analysis.Confidence))
	return analysis.Decision(Method), nil
}

func (c *Client) requestPayload(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        c.cfg.MaxTokens,
			"temperature":       c.cfg.Temperature,
			"top_p":             c.cfg.TopP,
			"system":            llm.SystemPrompt,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.cfg.MaxTokens,
				"temperature":   c.cfg.Temperature,
				"topP":          c.cfg.TopP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.cfg.MaxTokens,
			"temperature": c.cfg.Temperature,
			"top_p":       c.cfg.TopP,
		})
	}
}

func (c *Client) responseText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", fmt.Errorf("no text content in Claude response")
	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		for _, text := range []string{genericResp.Output, genericResp.Text, genericResp.Response} {
			if text != "" {
				return text, nil
			}
		}
		return string(body), nil
	}
}

func (c *Client) isAnthropicModel() bool {
	return strings.HasPrefix(c.cfg.ModelID, "anthropic.claude")
}

func (c *Client) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.cfg.ModelID, "amazon.titan")
}
