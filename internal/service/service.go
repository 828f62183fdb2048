// service содержит прикладную логику клиента AgriCare поверх API-клиента:
// - диагностика по фотографии и локальная история диагнозов;
// - чат с ассистентом (общий и по диагнозу) с локальным кэшем диалогов;
// - синхронизация истории и фотографий в архив.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/agricare-client/internal/clients/apiclient"
	"github.com/pribylovaa/agricare-client/internal/pkg/log"
	"github.com/pribylovaa/agricare-client/internal/storage"
)

//go:generate mockgen -destination=../mocks/api.go -package=mocks github.com/pribylovaa/agricare-client/internal/service API,Archive
//go:generate mockgen -destination=../mocks/storage.go -package=mocks github.com/pribylovaa/agricare-client/internal/storage Storage

var (
	// ErrInvalidArgument - некорректные входные данные.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound - сущность не найдена (локально или на бэкенде).
	ErrNotFound = errors.New("not found")
	// ErrPredictionFailed - модель не смогла классифицировать изображение.
	ErrPredictionFailed = errors.New("prediction failed")
	// ErrMessageLimit - в диалоге достигнут лимит сообщений; нужен новый диалог.
	ErrMessageLimit = errors.New("message limit reached for this conversation, start a new one")
	// ErrSyncDisabled - архив для синхронизации не сконфигурирован.
	ErrSyncDisabled = errors.New("sync is not configured")
)

// API - часть apiclient.Client, которой пользуется сервис.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
	PostJSON(ctx context.Context, path string, body any) (*apiclient.Response, error)
	PostMultipart(ctx context.Context, path string, body []byte, contentType string) (*apiclient.Response, error)
}

// Archive - приёмник синхронизации (см. storage/s3).
type Archive interface {
	PutSnapshot(ctx context.Context, name string, data []byte) (string, error)
	PutPhoto(ctx context.Context, name, filePath string) (string, error)
}

// Service - прикладной слой клиента.
type Service struct {
	api     API
	storage storage.Storage
	archive Archive
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

// WithArchive включает синхронизацию.
func WithArchive(a Archive) Option { return func(s *Service) { s.archive = a } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator подменяет генератор идентификаторов диагнозов (по умолчанию uuid).
func WithIDGenerator(fn func() string) Option { return func(s *Service) { s.newID = fn } }

// New создает новый экземпляр Service.
func New(api API, st storage.Storage, opts ...Option) *Service {
	s := &Service{
		api:     api,
		storage: st,
		log:     slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, fn := range opts {
		fn(s)
	}

	return s
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	return log.FromOr(ctx, s.log)
}
