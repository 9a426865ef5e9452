package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
)

func newGeminiServer(t *testing.T, handler http.HandlerFunc) *GeminiChatModel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m, err := NewGeminiChatModel(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "models/gemini-1.5-pro-latest",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	m := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-pro-latest:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header missing")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates":[{"content":{"role":"model","parts":[{"text":"12 LONG "},{"text":"vs 9 SHORT."}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":40,"candidatesTokenCount":6,"totalTokenCount":46}
		}`)
	})

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be brief"),
		schema.UserMessage("How many LONG vs SHORT signals?"),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if msg.Content != "12 LONG vs 9 SHORT." || msg.Role != schema.Assistant {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.ResponseMeta.FinishReason != "STOP" || msg.ResponseMeta.Usage.TotalTokens != 46 {
		t.Fatalf("unexpected meta %+v", msg.ResponseMeta)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not sent: %+v", got)
	}
	if len(got.Contents) != 1 || got.Contents[0].Role != "user" {
		t.Fatalf("unexpected contents %+v", got.Contents)
	}
}

func TestGeminiQuotaExceeded(t *testing.T) {
	var calls int32
	m := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"You exceeded your current quota","status":"RESOURCE_EXHAUSTED"}}`)
	})
	m.client.SetRetryCount(2)

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "You exceeded your current quota" {
		t.Fatalf("expected APIError with message, got %#v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("quota errors must not be retried, got %d calls", n)
	}
}

func TestGeminiServerErrorRetried(t *testing.T) {
	var calls int32
	m := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	})
	m.client.SetRetryCount(2).SetRetryWaitTime(time.Millisecond)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err != nil || msg.Content != "ok" {
		t.Fatalf("expected retry to succeed, got %v %v", msg, err)
	}
}

func TestGeminiBlockedPrompt(t *testing.T) {
	m := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGeminiUnauthorized(t *testing.T) {
	m := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if UserMessage(err) != msgCheckKey {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
}

func TestGeminiStream(t *testing.T) {
	m := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"streamed"}]},"finishReason":"STOP"}]}`)
	})
	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()
	chunk, err := sr.Recv()
	if err != nil || chunk.Content != "streamed" {
		t.Fatalf("unexpected chunk %v %v", chunk, err)
	}
	if _, err := sr.Recv(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestNewGeminiChatModelRequiresKey(t *testing.T) {
	if _, err := NewGeminiChatModel(GeminiConfig{APIKey: "  "}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestModelPath(t *testing.T) {
	for _, in := range []string{"gemini-1.5-pro-latest", "models/gemini-1.5-pro-latest"} {
		if got := ModelPath(in); got != "/models/gemini-1.5-pro-latest:generateContent" {
			t.Errorf("ModelPath(%q) = %s", in, got)
		}
	}
}
