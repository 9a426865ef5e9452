package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dyike/tsladash/models"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusError   = "error"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL DEFAULT '',
    question TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    finish_reason TEXT NOT NULL DEFAULT '',
    seq INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session models.ChatSession) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if session.Status == "" {
		session.Status = StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, symbol, question, summary, provider, status)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    symbol=excluded.symbol,
    question=excluded.question,
    summary=excluded.summary,
    provider=excluded.provider,
    status=excluded.status,
    updated_at=CURRENT_TIMESTAMP
`, session.ID, session.Symbol, session.Question, session.Summary, session.Provider, session.Status)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, msg models.ChatMessage) error {
	if msg.Status == "" {
		msg.Status = StatusPending
	}
	if msg.Seq <= 0 {
		return fmt.Errorf("message seq must be positive")
	}
	if strings.TrimSpace(msg.Role) == "" {
		return fmt.Errorf("message role is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages (id, session_id, role, content, status, finish_reason, seq)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Status, msg.FinishReason, msg.Seq)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FinishMessage sets the final status and content of a message.
func (s *Store) FinishMessage(ctx context.Context, msgID, status, finishReason, content string) error {
	if strings.TrimSpace(msgID) == "" {
		return fmt.Errorf("message id is required")
	}
	if status == "" {
		status = StatusDone
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE messages
SET status = ?,
    content = ?,
    finish_reason = CASE WHEN ? <> '' THEN ? ELSE finish_reason END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, status, content, finishReason, finishReason, msgID)
	if err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish message %s: %w", msgID, ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(status) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, status, sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

const sessionColumns = `rowid, id, symbol, question, summary, provider, status, created_at, updated_at`

func scanSession(sc interface{ Scan(...any) error }) (models.ChatSession, error) {
	var rec models.ChatSession
	err := sc.Scan(&rec.RowID, &rec.ID, &rec.Symbol, &rec.Question, &rec.Summary, &rec.Provider,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// ListSessions pages sessions newest first. cursor is the RowID of the last
// session of the previous page, or 0 for the first page.
func (s *Store) ListSessions(ctx context.Context, cursor int64, limit int) ([]models.ChatSession, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM sessions
WHERE (? = 0 OR rowid < ?)
ORDER BY rowid DESC
LIMIT ?
`, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return sessions, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ? LIMIT 1`, sessionID)
	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

func (s *Store) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, status, finish_reason, seq, created_at
FROM messages
WHERE session_id = ?
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var rec models.ChatMessage
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Role, &rec.Content, &rec.Status, &rec.FinishReason, &rec.Seq, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages rows: %w", err)
	}
	return msgs, nil
}
