package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pribylovaa/agricare-client/internal/clients/apiclient"
	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/storage"
)

const pathPredict = "/ml/predict"

// PredictDisease отправляет изображение на классификацию (multipart, поле file).
func (s *Service) PredictDisease(ctx context.Context, filename string, image io.Reader) (*models.PredictionResponse, error) {
	const op = "service.PredictDisease"

	if filename == "" || image == nil {
		return nil, fmt.Errorf("%s: %w: image is required", op, ErrInvalidArgument)
	}

	body, ct, err := apiclient.NewMultipartBody("file", filepath.Base(filename), "image/jpeg", image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := s.api.PostMultipart(ctx, pathPredict, body, ct)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var pr models.PredictionResponse
	if err := resp.DecodeJSON(&pr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !pr.Success {
		return nil, fmt.Errorf("%s: %w", op, ErrPredictionFailed)
	}

	s.logger(ctx).Info("prediction_received",
		slog.String("class", pr.PredictedClass),
		slog.Float64("confidence", pr.Confidence),
	)

	return &pr, nil
}

// Diagnose - PredictDisease для локального файла; при save результат сохраняется в историю.
func (s *Service) Diagnose(ctx context.Context, imagePath, cropType string, save bool) (*models.Prediction, error) {
	const op = "service.Diagnose"

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidArgument, err)
	}
	defer f.Close()

	pr, err := s.PredictDisease(ctx, imagePath, f)
	if err != nil {
		return nil, err
	}

	uri := imagePath
	if abs, err := filepath.Abs(imagePath); err == nil {
		uri = abs
	}

	if !save {
		return &models.Prediction{
			PredictionResponse: *pr,
			ImageURI:           uri,
			CropType:           cropType,
			CreatedAt:          s.now().UTC(),
		}, nil
	}

	return s.SavePrediction(ctx, *pr, uri, cropType)
}

// SavePrediction добавляет диагноз в начало локальной истории (не более storage.HistoryLimit записей).
func (s *Service) SavePrediction(ctx context.Context, pr models.PredictionResponse, imageURI, cropType string) (*models.Prediction, error) {
	const op = "service.SavePrediction"

	p := &models.Prediction{
		PredictionResponse: pr,
		ID:                 s.newID(),
		ImageURI:           imageURI,
		CropType:           cropType,
		CreatedAt:          s.now().UTC(),
	}

	if err := s.storage.SavePrediction(ctx, p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// PredictionHistory возвращает локальную историю, новые записи первыми.
func (s *Service) PredictionHistory(ctx context.Context) ([]models.Prediction, error) {
	const op = "service.PredictionHistory"

	items, err := s.storage.Predictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}

func (s *Service) ClearPredictionHistory(ctx context.Context) error {
	const op = "service.ClearPredictionHistory"

	if err := s.storage.ClearPredictions(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LinkPredictionConversation запоминает диалог, начатый по диагнозу.
func (s *Service) LinkPredictionConversation(ctx context.Context, predictionID string, conversationID int64) error {
	const op = "service.LinkPredictionConversation"

	if err := s.storage.LinkConversation(ctx, predictionID, conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SplitClass разбирает класс модели вида "Tomato___Late_blight" на культуру и болезнь
// ("Tomato", "Late blight"). Без разделителя вся строка считается болезнью.
func SplitClass(class string) (crop, disease string) {
	crop, disease, ok := strings.Cut(class, "___")
	if !ok {
		return "", strings.ReplaceAll(class, "_", " ")
	}

	crop = strings.ReplaceAll(crop, "_", " ")
	disease = strings.ReplaceAll(strings.Trim(disease, "_"), "_", " ")

	return crop, disease
}
