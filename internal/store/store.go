// Package store archives session transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"LlamaChat/internal/prompt"
	"LlamaChat/internal/session"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrTranscriptNotFound is returned by Load for unknown ids
var ErrTranscriptNotFound = errors.New("transcript not found")

// TranscriptInfo describes a saved transcript
type TranscriptInfo struct {
	ID           string
	Label        string
	SystemPrompt string
	Temperature  float64
	SavedAt      time.Time
	MessageCount int
}

// Transcript is a saved transcript with its messages
type Transcript struct {
	TranscriptInfo
	Messages []session.Message
}

// Store is a SQLite transcript archive
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the archive at path
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTranscriptsTable := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		label TEXT,
		system_prompt TEXT,
		temperature REAL,
		saved_at DATETIME
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript_id TEXT,
		seq INTEGER,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(transcript_id) REFERENCES transcripts(id)
	);`

	if _, err := db.Exec(createTranscriptsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transcripts table: %w", err)
	}

	if _, err := db.Exec(createMessagesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a snapshot of the session's history and returns its id
func (s *Store) Save(ctx context.Context, label string, sess *session.ChatSession) (string, error) {
	history := sess.History()
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO transcripts (id, label, system_prompt, temperature, saved_at) VALUES (?, ?, ?, ?, ?)",
		id, label, sess.SystemPrompt(), sess.Temperature(), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}

	for i, msg := range history {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (transcript_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)",
			id, i, string(msg.Role), msg.Content, msg.Timestamp.UTC(),
		)
		if err != nil {
			return "", fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("transcript saved", "id", id, "label", label, "message_count", len(history))
	return id, nil
}

// Load reads a saved transcript
func (s *Store) Load(ctx context.Context, id string) (Transcript, error) {
	var t Transcript
	t.ID = id

	err := s.db.QueryRowContext(ctx,
		"SELECT label, system_prompt, temperature, saved_at FROM transcripts WHERE id = ?", id).
		Scan(&t.Label, &t.SystemPrompt, &t.Temperature, &t.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, fmt.Errorf("%w: %s", ErrTranscriptNotFound, id)
	}
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to load transcript: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, timestamp FROM messages WHERE transcript_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg session.Message
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			return Transcript{}, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = prompt.Role(role)
		t.Messages = append(t.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return Transcript{}, fmt.Errorf("failed to read messages: %w", err)
	}
	t.MessageCount = len(t.Messages)

	return t, nil
}

// List returns all saved transcripts, newest first
func (s *Store) List(ctx context.Context) ([]TranscriptInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.label, t.system_prompt, t.temperature, t.saved_at, COUNT(m.id)
		FROM transcripts t LEFT JOIN messages m ON m.transcript_id = t.id
		GROUP BY t.id
		ORDER BY t.saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []TranscriptInfo
	for rows.Next() {
		var info TranscriptInfo
		if err := rows.Scan(&info.ID, &info.Label, &info.SystemPrompt, &info.Temperature, &info.SavedAt, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
