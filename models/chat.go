package models

import "time"

type ChatSession struct {
	ID        string    `json:"id"`
	RowID     int64     `json:"row_id"`
	Symbol    string    `json:"symbol"`
	Question  string    `json:"question"`
	Summary   string    `json:"summary"`
	Provider  string    `json:"provider"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Status       string    `json:"status"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Seq          int       `json:"seq"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryItem pairs a session with its messages.
type HistoryItem struct {
	Session  ChatSession   `json:"session"`
	Messages []ChatMessage `json:"messages"`
}
