// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/answerd/internal/model"
	"github.com/jeranaias/answerd/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when a conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// PreviewLength is the rune cap for the ListRecent preview.
	PreviewLength = 50

	timeFormat = time.RFC3339Nano
)

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Store persists conversations in a SQLite database.
type Store struct {
	db       *sql.DB
	inMemory bool
}

// ConversationMeta is a lightweight listing projection. Preview and
// MessageCount are derived, never persisted, and are only populated by
// ListRecent.
type ConversationMeta struct {
	ID           string    `json:"conversation_id"`
	UserID       string    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count,omitempty"`
	Preview      string    `json:"preview,omitempty"`
}

// Open opens (or creates) the conversation database at path. On failure
// it degrades to an in-memory database so the service can keep serving,
// and logs the degradation.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("store: cannot create data directory %s: %v; falling back to in-memory database", dir, err)
			return OpenMemory()
		}
	}

	db, err := open(path)
	if err != nil {
		log.Printf("store: cannot open %s: %v; falling back to in-memory database", path, err)
		return OpenMemory()
	}

	return &Store{db: db}, nil
}

// OpenMemory opens a transient in-memory store. State is lost on close.
func OpenMemory() (*Store, error) {
	db, err := open(":memory:")
	if err != nil {
		return nil, err
	}
	return &Store{db: db, inMemory: true}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite supports one writer at a time; a single pooled connection
	// also keeps an in-memory database from vanishing between calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			user_id         TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id),
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			content_blocks  TEXT,
			timestamp       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InMemory reports whether the store degraded to (or was opened as) a
// transient in-memory database.
func (s *Store) InMemory() bool {
	return s.inMemory
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Create allocates a new empty conversation and returns its id. The
// owner id may be empty.
func (s *Store) Create(userID string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)

	_, err := s.db.Exec(
		`INSERT INTO conversations (conversation_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, nullable(userID), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// Append inserts a message at the logical end of a conversation and
// bumps the conversation's update timestamp, atomically. It returns
// ErrConversationNotFound for an unknown conversation id.
//
// The message timestamp is assigned here, clamped to be no earlier than
// the conversation's current updated_at, so retrieval order always
// matches append order even when the wall clock stands still between
// two appends.
func (s *Store) Append(conversationID string, role model.Role, content string, blocks []model.ContentBlock) (string, error) {
	blockJSON, err := model.MarshalBlocks(blocks)
	if err != nil {
		return "", fmt.Errorf("serialize blocks: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	var updatedAt string
	err = tx.QueryRow(
		`SELECT updated_at FROM conversations WHERE conversation_id = ?`, conversationID,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConversationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	ts := time.Now().UTC()
	if prev, perr := time.Parse(timeFormat, updatedAt); perr == nil && ts.Before(prev) {
		ts = prev
	}
	stamp := ts.Format(timeFormat)

	messageID := uuid.NewString()
	var blocksValue any
	if blockJSON != nil {
		blocksValue = string(blockJSON)
	}

	_, err = tx.Exec(
		`INSERT INTO messages (message_id, conversation_id, role, content, content_blocks, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		messageID, conversationID, string(role), content, blocksValue, stamp,
	)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`, stamp, conversationID,
	)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	return messageID, nil
}

// Delete removes a conversation and all its messages in one
// transaction. It reports whether the conversation existed.
func (s *Store) Delete(conversationID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(
		`SELECT 1 FROM conversations WHERE conversation_id = ?`, conversationID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}

	// Messages first: the conversation row must never outlive its
	// foreign-key targets from a reader's point of view.
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE conversation_id = ?`, conversationID); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return true, nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Get returns a conversation with its full message log, or
// ErrConversationNotFound.
func (s *Store) Get(conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	var userID sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRow(
		`SELECT conversation_id, user_id, created_at, updated_at
		 FROM conversations WHERE conversation_id = ?`, conversationID,
	).Scan(&conv.ID, &userID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv.UserID = userID.String
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)

	conv.Messages, err = s.messages(conversationID)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetMessages returns the ordered message log for a conversation:
// timestamp ascending, insertion order on ties. A conversation that
// exists with no messages yields an empty slice; an unknown id yields
// ErrConversationNotFound.
func (s *Store) GetMessages(conversationID string) ([]model.Message, error) {
	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM conversations WHERE conversation_id = ?`, conversationID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return s.messages(conversationID)
}

func (s *Store) messages(conversationID string) ([]model.Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, role, content, content_blocks, timestamp
		 FROM messages WHERE conversation_id = ?
		 ORDER BY timestamp ASC, rowid ASC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var msg model.Message
		var role, stamp string
		var blockJSON sql.NullString

		if err := rows.Scan(&msg.ID, &role, &msg.Content, &blockJSON, &stamp); err != nil {
			return nil, fmt.Errorf("get messages: %w", err)
		}
		msg.ConversationID = conversationID
		msg.Role = model.Role(role)
		msg.Timestamp = parseTime(stamp)

		if blockJSON.Valid {
			msg.Blocks, err = model.UnmarshalBlocks([]byte(blockJSON.String))
			if err != nil {
				return nil, fmt.Errorf("message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListByOwner returns the conversations belonging to a user, most
// recently updated first. Only identity and timestamps are filled in.
func (s *Store) ListByOwner(userID string) ([]ConversationMeta, error) {
	rows, err := s.db.Query(
		`SELECT conversation_id, user_id, created_at, updated_at
		 FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

// ListRecent returns a page of the most recently updated conversations,
// each with a derived preview (the first user message, capped at
// PreviewLength runes with an ellipsis when truncated) and a message
// count.
func (s *Store) ListRecent(limit, offset int) ([]ConversationMeta, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(
		`SELECT conversation_id, user_id, created_at, updated_at
		 FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	metas, err := scanMetas(rows)
	if err != nil {
		return nil, err
	}

	for i := range metas {
		preview, count, err := s.previewAndCount(metas[i].ID)
		if err != nil {
			return nil, err
		}
		metas[i].Preview = preview
		metas[i].MessageCount = count
	}
	return metas, nil
}

func (s *Store) previewAndCount(conversationID string) (string, int, error) {
	var content string
	err := s.db.QueryRow(
		`SELECT content FROM messages
		 WHERE conversation_id = ? AND role = 'user'
		 ORDER BY timestamp ASC, rowid ASC LIMIT 1`, conversationID,
	).Scan(&content)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("preview: %w", err)
	}

	preview := util.CollapseNewlines(content)
	if len([]rune(preview)) > PreviewLength {
		preview = util.TruncateRunesNoEllipsis(preview, PreviewLength) + "..."
	}

	var count int
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&count)
	if err != nil {
		return "", 0, fmt.Errorf("message count: %w", err)
	}

	return preview, count, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scanMetas(rows *sql.Rows) ([]ConversationMeta, error) {
	metas := []ConversationMeta{}
	for rows.Next() {
		var meta ConversationMeta
		var userID sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&meta.ID, &userID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		meta.UserID = userID.String
		meta.CreatedAt = parseTime(createdAt)
		meta.UpdatedAt = parseTime(updatedAt)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
