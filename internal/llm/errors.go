package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrMissingAPIKey = errors.New("gemini api key is not configured")
	ErrUnauthorized  = errors.New("gemini rejected the api key")
	ErrQuotaExceeded = errors.New("gemini quota exceeded")
	ErrUnavailable   = errors.New("gemini request failed")
)

const (
	msgCheckKey = "❌ Gemini model unavailable. Check your API key."
	msgQuota    = "❌ Gemini AI error: the API key has exhausted its quota (429 RESOURCE_EXHAUSTED). " +
		"Replace GEMINI_API_KEY in .streamlit/secrets.toml with a key that has sufficient quota, then retry."
	msgErrorPrefix = "❌ Gemini AI error: "
)

// APIError is a non-2xx answer from the model endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Status != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, msg)
}

// Is lets errors.Is match an APIError against the sentinel for its class.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden ||
			e.Status == "PERMISSION_DENIED" || e.Status == "UNAUTHENTICATED" ||
			strings.Contains(e.Message, "API key not valid")
	case ErrUnavailable:
		return true
	}
	return false
}

// classify maps transport errors from providers that do not return an
// APIError onto the sentinels by inspecting the message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) ||
		errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota"):
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, msg)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "API key not valid"):
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	default:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
}

// UserMessage is the text shown to a user in place of an answer.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyQuestion):
		return "Please enter a question."
	case errors.Is(err, ErrMissingAPIKey), errors.Is(err, ErrUnauthorized):
		return msgCheckKey
	case errors.Is(err, ErrQuotaExceeded):
		return msgQuota
	default:
		return msgErrorPrefix + err.Error()
	}
}

// HTTPStatus picks the status code an API handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrMissingAPIKey), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
