// storage определяет контракты локального хранилища клиента:
// история диагнозов и кэш диалогов с ассистентом.
package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/agricare-client/internal/models"
)

// HistoryLimit - сколько последних записей хранится локально (диагнозов и диалогов).
const HistoryLimit = 20

var (
	// ErrNotFound - запись отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - запись с таким идентификатором уже есть.
	ErrAlreadyExists = errors.New("already exists")
)

// PredictionStorage - локальная история диагнозов, новые записи первыми.
type PredictionStorage interface {
	// SavePrediction добавляет запись в начало истории и обрезает историю до HistoryLimit.
	SavePrediction(ctx context.Context, p *models.Prediction) error
	// Predictions возвращает историю, новые записи первыми.
	Predictions(ctx context.Context) ([]models.Prediction, error)
	// PredictionByID возвращает запись или ErrNotFound.
	PredictionByID(ctx context.Context, id string) (*models.Prediction, error)
	// LinkConversation привязывает диалог к диагнозу; ErrNotFound, если диагноза нет.
	LinkConversation(ctx context.Context, predictionID string, conversationID int64) error
	// ClearPredictions удаляет всю историю.
	ClearPredictions(ctx context.Context) error
}

// ConversationStorage - локальный кэш диалогов.
type ConversationStorage interface {
	// UpsertConversation сохраняет диалог по id и обрезает кэш до HistoryLimit.
	UpsertConversation(ctx context.Context, c *models.Conversation) error
	// Conversations возвращает диалоги по убыванию updated_at.
	Conversations(ctx context.Context) ([]models.Conversation, error)
	// ConversationByID возвращает диалог или ErrNotFound.
	ConversationByID(ctx context.Context, id int64) (*models.Conversation, error)
}

// Storage - полный контракт локального хранилища.
type Storage interface {
	PredictionStorage
	ConversationStorage
	Close() error
}
