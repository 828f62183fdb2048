package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/storage"
)

// UpsertConversation сохраняет диалог целиком (сообщения - JSON) и оставляет
// storage.HistoryLimit самых свежих по updated_at.
func (s *Storage) UpsertConversation(ctx context.Context, c *models.Conversation) error {
	const op = "storage.sqlite.UpsertConversation"

	msgs := c.Messages
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}

	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO conversations (id, conversation_type, crop, disease, created_at, updated_at, messages)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE
	SET
	conversation_type = excluded.conversation_type,
	crop = CASE WHEN excluded.crop <> '' THEN excluded.crop ELSE conversations.crop END,
	disease = CASE WHEN excluded.disease <> '' THEN excluded.disease ELSE conversations.disease END,
	updated_at = excluded.updated_at,
	messages = excluded.messages
	`, c.ID, c.ConversationType, c.Crop, c.Disease, c.CreatedAt.UTC().UnixMilli(), c.UpdatedAt.UTC().UnixMilli(), string(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, `
	DELETE FROM conversations
	WHERE id NOT IN (SELECT id FROM conversations ORDER BY updated_at DESC, id DESC LIMIT ?)
	`, storage.HistoryLimit); err != nil {
		return fmt.Errorf("%s: trim: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Conversations возвращает кэш, самые свежие первыми.
func (s *Storage) Conversations(ctx context.Context) ([]models.Conversation, error) {
	const op = "storage.sqlite.Conversations"

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, conversation_type, crop, disease, created_at, updated_at, messages
	FROM conversations
	ORDER BY updated_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		out = append(out, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}

func (s *Storage) ConversationByID(ctx context.Context, id int64) (*models.Conversation, error) {
	const op = "storage.sqlite.ConversationByID"

	row := s.db.QueryRowContext(ctx, `
	SELECT id, conversation_type, crop, disease, created_at, updated_at, messages
	FROM conversations
	WHERE id = ?
	`, id)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

func scanConversation(sc scanner) (*models.Conversation, error) {
	var (
		c                models.Conversation
		created, updated int64
		raw              string
	)

	if err := sc.Scan(&c.ID, &c.ConversationType, &c.Crop, &c.Disease, &created, &updated, &raw); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	c.CreatedAt = time.UnixMilli(created).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()

	return &c, nil
}
