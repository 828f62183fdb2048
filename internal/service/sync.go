package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/agricare-client/internal/models"
)

// syncConcurrency - сколько фотографий выгружается одновременно.
const syncConcurrency = 4

// Snapshot - содержимое снимка локальной истории в архиве.
type Snapshot struct {
	GeneratedAt   time.Time             `json:"generated_at"`
	Predictions   []models.Prediction   `json:"predictions"`
	Conversations []models.Conversation `json:"conversations"`
}

// SyncReport - итог синхронизации.
type SyncReport struct {
	SnapshotKey   string `json:"snapshot_key"   yaml:"snapshot_key"`
	Photos        int    `json:"photos"         yaml:"photos"`
	SkippedPhotos int    `json:"skipped_photos" yaml:"skipped_photos"`
}

// Sync выгружает в архив снимок истории диагнозов и кэша диалогов, а затем фотографии диагнозов.
// Отсутствующие на диске фотографии пропускаются.
func (s *Service) Sync(ctx context.Context) (*SyncReport, error) {
	const op = "service.Sync"

	if s.archive == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrSyncDisabled)
	}

	preds, err := s.storage.Predictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	convs, err := s.storage.Conversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	data, err := json.Marshal(Snapshot{GeneratedAt: now, Predictions: preds, Conversations: convs})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key, err := s.archive.PutSnapshot(ctx, fmt.Sprintf("history-%d.json", now.UnixMilli()), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var uploaded, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)

	for _, p := range preds {
		if p.ImageURI == "" {
			continue
		}

		id := p.ID
		path := p.ImageURI
		name := id + filepath.Ext(path)

		g.Go(func() error {
			if _, err := os.Stat(path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					skipped.Add(1)
					s.logger(ctx).Warn("sync_photo_missing", slog.String("prediction_id", id))
					return nil
				}
				return err
			}

			if _, err := s.archive.PutPhoto(gctx, name, path); err != nil {
				return err
			}
			uploaded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	report := &SyncReport{
		SnapshotKey:   key,
		Photos:        int(uploaded.Load()),
		SkippedPhotos: int(skipped.Load()),
	}

	s.logger(ctx).Info("sync_completed",
		slog.String("snapshot", report.SnapshotKey),
		slog.Int("photos", report.Photos),
		slog.Int("skipped", report.SkippedPhotos),
	)

	return report, nil
}
