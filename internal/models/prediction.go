package models

import "time"

// PredictionResponse - ответ /ml/predict.
type PredictionResponse struct {
	PredictedClass string  `json:"predicted_class" yaml:"predicted_class"`
	Confidence     float64 `json:"confidence"      yaml:"confidence"`
	Success        bool    `json:"success"         yaml:"success"`
}

// Prediction - запись локальной истории диагнозов.
type Prediction struct {
	PredictionResponse `yaml:",inline"`

	ID             string    `json:"id"                        yaml:"id"`
	ImageURI       string    `json:"image_uri"                 yaml:"image_uri"`
	CropType       string    `json:"crop_type"                 yaml:"crop_type"`
	CreatedAt      time.Time `json:"created_at"                yaml:"created_at"`
	ConversationID *int64    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
}
