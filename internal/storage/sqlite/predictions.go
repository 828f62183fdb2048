package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/storage"
)

// SavePrediction вставляет запись и оставляет storage.HistoryLimit самых новых.
func (s *Storage) SavePrediction(ctx context.Context, p *models.Prediction) error {
	const op = "storage.sqlite.SavePrediction"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var convID sql.NullInt64
	if p.ConversationID != nil {
		convID = sql.NullInt64{Int64: *p.ConversationID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO predictions (id, predicted_class, confidence, success, image_uri, crop_type, created_at, conversation_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.PredictedClass, p.Confidence, p.Success, p.ImageURI, p.CropType, p.CreatedAt.UTC().UnixMilli(), convID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, `
	DELETE FROM predictions
	WHERE seq NOT IN (SELECT seq FROM predictions ORDER BY seq DESC LIMIT ?)
	`, storage.HistoryLimit); err != nil {
		return fmt.Errorf("%s: trim: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Predictions возвращает историю в порядке добавления, новые первыми.
func (s *Storage) Predictions(ctx context.Context) ([]models.Prediction, error) {
	const op = "storage.sqlite.Predictions"

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, predicted_class, confidence, success, image_uri, crop_type, created_at, conversation_id
	FROM predictions
	ORDER BY seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Prediction, 0, storage.HistoryLimit)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		out = append(out, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}

func (s *Storage) PredictionByID(ctx context.Context, id string) (*models.Prediction, error) {
	const op = "storage.sqlite.PredictionByID"

	row := s.db.QueryRowContext(ctx, `
	SELECT id, predicted_class, confidence, success, image_uri, crop_type, created_at, conversation_id
	FROM predictions
	WHERE id = ?
	`, id)

	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (s *Storage) LinkConversation(ctx context.Context, predictionID string, conversationID int64) error {
	const op = "storage.sqlite.LinkConversation"

	res, err := s.db.ExecContext(ctx, `UPDATE predictions SET conversation_id = ? WHERE id = ?`, conversationID, predictionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func (s *Storage) ClearPredictions(ctx context.Context) error {
	const op = "storage.sqlite.ClearPredictions"

	if _, err := s.db.ExecContext(ctx, `DELETE FROM predictions`); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(sc scanner) (*models.Prediction, error) {
	var (
		p       models.Prediction
		created int64
		convID  sql.NullInt64
	)

	if err := sc.Scan(
		&p.ID,
		&p.PredictedClass,
		&p.Confidence,
		&p.Success,
		&p.ImageURI,
		&p.CropType,
		&created,
		&convID,
	); err != nil {
		return nil, err
	}

	p.CreatedAt = time.UnixMilli(created).UTC()
	if convID.Valid {
		id := convID.Int64
		p.ConversationID = &id
	}

	return &p, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
