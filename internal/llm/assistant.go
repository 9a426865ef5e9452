// Package llm answers free-text questions about the loaded series through a
// Gemini chat model.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/logger"
)

const (
	systemPrompt = "You are an expert stock analyst. Use the {symbol} summary below to answer the question briefly and clearly."
	userPrompt   = "Summary:\n{summary}\n\nQuestion:\n{question}"
)

// SampleQuestions are offered as one-click prompts.
func SampleQuestions(symbol string) []string {
	if symbol == "" {
		symbol = "TSLA"
	}
	return []string{
		"How many LONG vs SHORT signals?",
		fmt.Sprintf("What’s the highest %s price?", symbol),
		"Which month was most volatile?",
	}
}

type Assistant struct {
	model    model.BaseChatModel
	template prompt.ChatTemplate
	symbol   string
	provider string
	initErr  error
	log      logrus.FieldLogger
}

func NewAssistant(m model.BaseChatModel, symbol, provider string, log logrus.FieldLogger) *Assistant {
	return &Assistant{
		model: m,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(userPrompt),
		),
		symbol:   symbol,
		provider: provider,
		log:      logger.Component(log, "llm"),
	}
}

// NewFromConfig picks the provider from cfg. A construction failure, such as
// a missing key, does not fail here: the assistant reports it on every Ask so
// the rest of the dashboard keeps working.
func NewFromConfig(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) *Assistant {
	var (
		m   model.BaseChatModel
		err error
	)
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		m, err = NewOpenAIChatModel(ctx, OpenAIConfig{
			APIKey:    cfg.GeminiAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			Timeout:   cfg.LLMTimeout,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		m, err = NewGeminiChatModel(GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			Timeout:    cfg.LLMTimeout,
			MaxTokens:  cfg.MaxTokens,
			RetryCount: 2,
		})
	}

	a := NewAssistant(m, cfg.Ticker, cfg.LLMProvider, log)
	if err != nil {
		a.model = nil
		a.initErr = err
		a.log.WithError(err).Warn("chat model unavailable")
	}
	return a
}

func (a *Assistant) Provider() string { return a.provider }

// Ready reports whether a model is configured.
func (a *Assistant) Ready() error {
	if a.initErr != nil {
		return a.initErr
	}
	if a.model == nil {
		return ErrMissingAPIKey
	}
	return nil
}

// Messages renders the prompt for question and summary.
func (a *Assistant) Messages(ctx context.Context, question, summary string) ([]*schema.Message, error) {
	return a.template.Format(ctx, map[string]any{
		"symbol":   a.symbol,
		"summary":  summary,
		"question": question,
	})
}

// Reply sends the question and returns the model's message.
func (a *Assistant) Reply(ctx context.Context, question, summary string) (*schema.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if err := a.Ready(); err != nil {
		return nil, err
	}

	msgs, err := a.Messages(ctx, question, summary)
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}

	start := time.Now()
	out, err := a.model.Generate(ctx, msgs)
	if err != nil {
		err = classify(err)
		a.log.WithError(err).WithField("provider", a.provider).Warn("generate failed")
		return nil, err
	}

	entry := a.log.WithFields(logrus.Fields{
		"provider": a.provider,
		"elapsed":  time.Since(start).Round(time.Millisecond),
		"chars":    len(out.Content),
	})
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		entry = entry.WithField("tokens", out.ResponseMeta.Usage.TotalTokens)
	}
	entry.Debug("answer received")
	return out, nil
}

// Ask returns the answer text.
func (a *Assistant) Ask(ctx context.Context, question, summary string) (string, error) {
	out, err := a.Reply(ctx, question, summary)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Content), nil
}
