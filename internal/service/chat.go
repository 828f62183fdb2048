package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/pribylovaa/agricare-client/internal/errors"
	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/storage"
)

const (
	pathChat           = "/chatbot/chat"
	pathPredictionChat = "/chatbot/chat/prediction"
	pathConversations  = "/chatbot/conversations"
)

// SendMessage отправляет сообщение в общий диалог (conversationID == nil - новый диалог)
// и обновляет локальный кэш.
func (s *Service) SendMessage(ctx context.Context, message string, conversationID *int64) (*models.ChatResponse, error) {
	const op = "service.SendMessage"

	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%s: %w: empty message", op, ErrInvalidArgument)
	}

	resp, err := s.api.PostJSON(ctx, pathChat, models.ChatRequest{Message: message, ConversationID: conversationID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapChatError(err))
	}

	var cr models.ChatResponse
	if err := resp.DecodeJSON(&cr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.cacheExchange(ctx, cr.ConversationID, models.ConversationGeneral, "", "", message, cr.Response)

	return &cr, nil
}

// SendPredictionMessage начинает или продолжает диалог о диагнозе.
// Без followUp бэкенд отвечает на исходный диагноз, а в кэш записывается вопрос
// "What can you tell me about <disease> in <crop>?".
func (s *Service) SendPredictionMessage(ctx context.Context, crop, disease, followUp string, conversationID *int64) (*models.ChatResponse, error) {
	const op = "service.SendPredictionMessage"

	if crop == "" || disease == "" {
		return nil, fmt.Errorf("%s: %w: crop and disease are required", op, ErrInvalidArgument)
	}

	resp, err := s.api.PostJSON(ctx, pathPredictionChat, models.PredictionChatRequest{
		Crop:            crop,
		Disease:         disease,
		ConversationID:  conversationID,
		FollowUpMessage: followUp,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapChatError(err))
	}

	var cr models.ChatResponse
	if err := resp.DecodeJSON(&cr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	question := followUp
	if question == "" {
		question = DefaultPredictionQuestion(crop, disease)
	}

	s.cacheExchange(ctx, cr.ConversationID, models.ConversationPrediction, crop, disease, question, cr.Response)

	return &cr, nil
}

// DefaultPredictionQuestion - вопрос, которым открывается диалог о диагнозе.
func DefaultPredictionQuestion(crop, disease string) string {
	return fmt.Sprintf("What can you tell me about %s in %s?", disease, crop)
}

// Conversations возвращает диалоги пользователя с бэкенда (свежие первыми).
func (s *Service) Conversations(ctx context.Context) ([]models.Conversation, error) {
	const op = "service.Conversations"

	resp, err := s.api.Get(ctx, pathConversations, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out []models.Conversation
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Conversation возвращает диалог с бэкенда и обновляет его копию в кэше.
func (s *Service) Conversation(ctx context.Context, id int64) (*models.Conversation, error) {
	const op = "service.Conversation"

	resp, err := s.api.Get(ctx, pathConversations+"/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		if apierrors.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var c models.Conversation
	if err := resp.DecodeJSON(&c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpsertConversation(ctx, &c); err != nil {
		s.logger(ctx).Warn("conversation_cache_failed", slog.Int64("conversation_id", id), slog.String("err", err.Error()))
	}

	return &c, nil
}

// CachedConversations возвращает локальный кэш диалогов без обращения к сети.
func (s *Service) CachedConversations(ctx context.Context) ([]models.Conversation, error) {
	const op = "service.CachedConversations"

	out, err := s.storage.Conversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// cacheExchange дописывает пару вопрос/ответ в локальную копию диалога.
// Ошибки кэша не прерывают операцию и только логируются.
func (s *Service) cacheExchange(ctx context.Context, id int64, kind, crop, disease, question, answer string) {
	now := s.now().UTC()

	c, err := s.storage.ConversationByID(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		c = &models.Conversation{
			ID:               id,
			ConversationType: kind,
			Crop:             crop,
			Disease:          disease,
			CreatedAt:        now,
		}
	default:
		s.logger(ctx).Warn("conversation_cache_failed", slog.Int64("conversation_id", id), slog.String("err", err.Error()))
		return
	}

	c.Messages = append(c.Messages,
		models.ChatMessage{Role: models.RoleUser, Content: question, CreatedAt: now},
		models.ChatMessage{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
	)
	c.UpdatedAt = now

	if err := s.storage.UpsertConversation(ctx, c); err != nil {
		s.logger(ctx).Warn("conversation_cache_failed", slog.Int64("conversation_id", id), slog.String("err", err.Error()))
	}
}

// mapChatError переводит ответы бэкенда чата в ошибки сервиса.
func mapChatError(err error) error {
	var be *apierrors.BackendError
	if !errors.As(err, &be) {
		return err
	}

	switch {
	case be.StatusCode == http.StatusBadRequest && strings.Contains(be.Detail, "Maximum number of messages"):
		return fmt.Errorf("%w: %w", ErrMessageLimit, err)
	case be.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}
