package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/adapters/anthropic"
	"github.com/mikey/antispam/internal/adapters/bedrock"
	"github.com/mikey/antispam/internal/adapters/gemini"
	"github.com/mikey/antispam/internal/adapters/llm"
	"github.com/mikey/antispam/internal/adapters/openai"
	"github.com/mikey/antispam/internal/config"
	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/utils"
)

// NewExternalClassifier builds the configured LLM provider, wrapped in a
// rate limiter. Provider "none" disables the external fallback and
// returns nil.
func NewExternalClassifier(ctx context.Context, cfg *config.Config, text *utils.TextProcessor, logger *zap.Logger) (core.ExternalClassifier, error) {
	provider := cfg.GetString("llm.provider")

	var client core.ExternalClassifier
	switch provider {
	case "anthropic":
		ac := cfg.GetAnthropic()
		client = anthropic.NewClient(anthropic.Config{
			APIKey:      ac.APIKey,
			Model:       ac.ModelName,
			MaxTokens:   ac.MaxTokens,
			Temperature: ac.Temperature,
			MaxBodySize: ac.MaxBodySize,
		}, text, logger)
	case "openai":
		oc := cfg.GetOpenAI()
		client = openai.NewClient(openai.Config{
			APIKey:      oc.APIKey,
			Model:       oc.ModelName,
			MaxTokens:   oc.MaxTokens,
			Temperature: oc.Temperature,
			TopP:        oc.TopP,
			MaxBodySize: oc.MaxBodySize,
		}, text, logger)
	case "gemini":
		gc := cfg.GetGemini()
		gemClient, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      gc.APIKey,
			Model:       gc.ModelName,
			MaxTokens:   gc.MaxTokens,
			Temperature: gc.Temperature,
			TopP:        gc.TopP,
			MaxBodySize: gc.MaxBodySize,
		}, text, logger)
		if err != nil {
			return nil, err
		}
		client = gemClient
	case "bedrock":
		bc := cfg.GetBedrock()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(bc.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = bedrock.NewClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.Config{
			ModelID:     bc.ModelID,
			MaxTokens:   bc.MaxTokens,
			Temperature: bc.Temperature,
			TopP:        bc.TopP,
			MaxBodySize: bc.MaxBodySize,
		}, text, logger)
	case "none", "":
		logger.Info("External classifier disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", provider)
	}

	if rpm := cfg.GetInt("llm.requests_per_minute"); rpm > 0 {
		return llm.NewThrottled(client, rpm), nil
	}
	return client, nil
}
