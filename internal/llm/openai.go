package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
)

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// NewOpenAIChatModel builds an OpenAI-compatible chat model. Pointed at
// Gemini's /v1beta/openai/ endpoint it accepts the same GEMINI_API_KEY.
func NewOpenAIChatModel(ctx context.Context, cfg OpenAIConfig) (*openai.ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	mc := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   strings.TrimPrefix(cfg.Model, "models/"),
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	return openai.NewChatModel(ctx, mc)
}
