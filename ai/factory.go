package ai

import (
	"context"
	"fmt"

	"github.com/pathforge/pathforge/core"
)

// Provider names accepted in AIConfig.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderBedrock    = "bedrock"
	ProviderExtractive = "extractive"
	ProviderNone       = "none"
)

// NewSummarizer builds the summarizer selected by cfg. It returns nil
// for "none", which disables the summarize stage.
func NewSummarizer(cfg core.AIConfig, logger core.Logger) (Summarizer, error) {
	logger = core.ComponentLogger(logger, "pathforge/ai")

	var (
		s   Summarizer
		err error
	)
	switch cfg.Provider {
	case ProviderNone:
		logger.Info("Summarization disabled", map[string]interface{}{
			"operation": "ai_summarizer_create",
		})
		return nil, nil
	case "", ProviderExtractive:
		s = NewExtractiveSummarizer()
	case ProviderAnthropic:
		s, err = NewAnthropicFromConfig(cfg)
	case ProviderOpenAI:
		s, err = NewOpenAIFromConfig(cfg)
	case ProviderBedrock:
		s, err = NewBedrockFromConfig(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: %w", cfg.Provider, core.ErrInvalidConfiguration)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Summarizer created", map[string]interface{}{
		"operation": "ai_summarizer_create",
		"provider":  s.Name(),
		"model":     cfg.Model,
	})
	return s, nil
}
