package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/domain/entities"
	"github.com/satriahrh/jumpgpt/domain/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	last_message    TEXT NOT NULL DEFAULT '',
	last_updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(last_updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	id              TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	is_voice        INTEGER NOT NULL DEFAULT 0,
	is_pending      INTEGER NOT NULL DEFAULT 0,
	is_streaming    INTEGER NOT NULL DEFAULT 0,
	is_error        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (conversation_id, position)
);
`

// ConversationRepository stores conversations in a local SQLite file
type ConversationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string, logger *zap.Logger) (*ConversationRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Opened conversation database", zap.String("path", path))
	return &ConversationRepository{db: db, logger: logger}, nil
}

// Close closes the database
func (r *ConversationRepository) Close() error {
	return r.db.Close()
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, title, last_message, last_updated_at) VALUES (?, ?, ?, ?)`,
			conversation.ID, conversation.Title, conversation.LastMessage, toUnix(conversation.LastUpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		return insertMessages(ctx, tx, conversation)
	})
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	var c entities.Conversation
	var updated int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, last_message, last_updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.LastMessage, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	c.LastUpdatedAt = fromUnix(updated)

	if c.Messages, err = r.messages(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// Update implements repositories.ConversationRepository
func (r *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET title = ?, last_message = ?, last_updated_at = ? WHERE id = ?`,
			conversation.Title, conversation.LastMessage, toUnix(conversation.LastUpdatedAt), conversation.ID)
		if err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConversationNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversation.ID); err != nil {
			return fmt.Errorf("failed to clear messages: %w", err)
		}
		return insertMessages(ctx, tx, conversation)
	})
}

// Delete implements repositories.ConversationRepository
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// List implements repositories.ConversationRepository
func (r *ConversationRepository) List(ctx context.Context) ([]*entities.Conversation, error) {
	return r.query(ctx,
		`SELECT id, title, last_message, last_updated_at FROM conversations ORDER BY last_updated_at DESC`)
}

// Search implements repositories.ConversationRepository. LIKE ignores case
// for ASCII letters only.
func (r *ConversationRepository) Search(ctx context.Context, query string) ([]*entities.Conversation, error) {
	return r.query(ctx,
		`SELECT id, title, last_message, last_updated_at FROM conversations
		 WHERE title LIKE '%' || ? || '%' ESCAPE '\' ORDER BY last_updated_at DESC`,
		likeEscaper.Replace(query))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *ConversationRepository) query(ctx context.Context, q string, args ...any) ([]*entities.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	result := make([]*entities.Conversation, 0)
	for rows.Next() {
		var c entities.Conversation
		var updated int64
		if err := rows.Scan(&c.ID, &c.Title, &c.LastMessage, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.LastUpdatedAt = fromUnix(updated)
		result = append(result, &c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	// Messages are loaded after the cursor closes; the pool has one connection.
	for _, c := range result {
		if c.Messages, err = r.messages(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *ConversationRepository) messages(ctx context.Context, conversationID string) ([]entities.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, role, content, created_at, is_voice, is_pending, is_streaming, is_error
		 FROM messages WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := make([]entities.Message, 0)
	for rows.Next() {
		var m entities.Message
		var role string
		var created int64
		if err := rows.Scan(&m.ID, &role, &m.Content, &created, &m.IsVoice, &m.IsPending, &m.IsStreaming, &m.IsError); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = entities.MessageRole(role)
		m.CreatedAt = fromUnix(created)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func insertMessages(ctx context.Context, tx *sql.Tx, c *entities.Conversation) error {
	if len(c.Messages) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, position, id, role, content, created_at, is_voice, is_pending, is_streaming, is_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range c.Messages {
		_, err := stmt.ExecContext(ctx, c.ID, i, m.ID, string(m.Role), m.Content, toUnix(m.CreatedAt),
			m.IsVoice, m.IsPending, m.IsStreaming, m.IsError)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

func (r *ConversationRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
