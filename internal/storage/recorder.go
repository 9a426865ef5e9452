package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/logger"
	"github.com/dyike/tsladash/internal/storage/sqlite"
	"github.com/dyike/tsladash/models"
)

// ErrDBPathNotConfigured indicates config.DBPath is empty.
var ErrDBPathNotConfigured = errors.New("db_path is not configured")

// Open opens the history database named by cfg.
func Open(cfg *config.Config) (*sqlite.Store, error) {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		return nil, ErrDBPathNotConfigured
	}
	return sqlite.Open(path)
}

// Exchange is one question and its outcome.
type Exchange struct {
	Symbol       string
	Question     string
	Summary      string
	Provider     string
	Answer       string
	FinishReason string
	// Err is set when no answer was produced; ErrText is what the user saw.
	Err     error
	ErrText string
}

type Recorder struct {
	store *sqlite.Store
	log   logrus.FieldLogger
}

func NewRecorder(store *sqlite.Store, log logrus.FieldLogger) *Recorder {
	return &Recorder{store: store, log: logger.Component(log, "history")}
}

// Record stores ex as a session holding the user message and the assistant
// message, and returns the session id.
func (r *Recorder) Record(ctx context.Context, ex Exchange) (string, error) {
	if r == nil || r.store == nil {
		return "", errors.New("store is required")
	}
	session := models.ChatSession{
		ID:       uuid.NewString(),
		Symbol:   ex.Symbol,
		Question: ex.Question,
		Summary:  ex.Summary,
		Provider: ex.Provider,
		Status:   sqlite.StatusPending,
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return "", err
	}

	if err := r.store.InsertMessage(ctx, models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      "user",
		Content:   ex.Question,
		Status:    sqlite.StatusDone,
		Seq:       1,
	}); err != nil {
		return session.ID, err
	}

	reply := models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      "assistant",
		Seq:       2,
	}
	if err := r.store.InsertMessage(ctx, reply); err != nil {
		return session.ID, err
	}

	status, content, reason := sqlite.StatusDone, ex.Answer, ex.FinishReason
	if ex.Err != nil {
		status, content = sqlite.StatusError, ex.ErrText
		if content == "" {
			content = ex.Err.Error()
		}
		if reason == "" {
			reason = "error"
		}
	}
	if err := r.store.FinishMessage(ctx, reply.ID, status, reason, content); err != nil {
		return session.ID, err
	}
	if err := r.store.UpdateSessionStatus(ctx, session.ID, status); err != nil {
		return session.ID, err
	}

	r.log.WithFields(logrus.Fields{"session": session.ID, "status": status}).Debug("exchange recorded")
	return session.ID, nil
}

// History returns sessions newest first with their messages.
func (r *Recorder) History(ctx context.Context, cursor int64, limit int) ([]models.HistoryItem, error) {
	sessions, err := r.store.ListSessions(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}
	items := make([]models.HistoryItem, 0, len(sessions))
	for _, s := range sessions {
		msgs, err := r.store.Messages(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("messages of %s: %w", s.ID, err)
		}
		items = append(items, models.HistoryItem{Session: s, Messages: msgs})
	}
	return items, nil
}
