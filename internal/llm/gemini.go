package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float32
	RetryCount  int
}

// GeminiChatModel talks to the generateContent REST endpoint and satisfies
// eino's BaseChatModel.
type GeminiChatModel struct {
	client *resty.Client
	cfg    GeminiConfig
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

func NewGeminiChatModel(cfg GeminiConfig) (*GeminiChatModel, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro-latest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("x-goog-api-key", cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		// 429 is a quota signal, not a transient failure.
		return r.StatusCode() >= http.StatusInternalServerError
	})

	return &GeminiChatModel{client: client, cfg: cfg}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ModelPath accepts both "gemini-1.5-pro-latest" and "models/gemini-1.5-pro-latest".
func ModelPath(name string) string {
	return "/models/" + strings.TrimPrefix(strings.TrimSpace(name), "models/") + ":generateContent"
}

func buildGeminiRequest(input []*schema.Message, o *model.Options) geminiRequest {
	var req geminiRequest
	var system []geminiPart
	for _, m := range input {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			system = append(system, geminiPart{Text: m.Content})
		case schema.Assistant:
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: system}
	}

	gc := &geminiGenerationConfig{Temperature: o.Temperature, TopP: o.TopP, StopSequences: o.Stop}
	if o.MaxTokens != nil {
		gc.MaxOutputTokens = *o.MaxTokens
	}
	req.GenerationConfig = gc
	return req
}

func (g *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	modelName := g.cfg.Model
	base := &model.Options{Model: &modelName, Temperature: g.cfg.Temperature}
	if g.cfg.MaxTokens > 0 {
		maxTokens := g.cfg.MaxTokens
		base.MaxTokens = &maxTokens
	}
	o := model.GetCommonOptions(base, opts...)
	if o.Model != nil && *o.Model != "" {
		modelName = *o.Model
	}

	var out geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(buildGeminiRequest(input, o)).
		SetResult(&out).
		Post(ModelPath(modelName))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, parseGeminiError(resp.StatusCode(), resp.Body())
	}

	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrUnavailable, out.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("%w: response has no candidates", ErrUnavailable)
	}

	cand := out.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	msg := schema.AssistantMessage(text.String(), nil)
	msg.ResponseMeta = &schema.ResponseMeta{FinishReason: cand.FinishReason}
	if u := out.UsageMetadata; u != nil {
		msg.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return msg, nil
}

// Stream delivers the full reply as a single chunk; the dashboard shows
// answers whole.
func (g *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func parseGeminiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	var eb geminiErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
		apiErr.Status = eb.Error.Status
		apiErr.Message = eb.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
