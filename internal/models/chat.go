package models

import "time"

// Типы диалогов.
const (
	ConversationGeneral    = "general"
	ConversationPrediction = "prediction"
)

// Роли сообщений.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role      string    `json:"role"       yaml:"role"`
	Content   string    `json:"content"    yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

type PredictionChatRequest struct {
	Crop            string `json:"crop"`
	Disease         string `json:"disease"`
	ConversationID  *int64 `json:"conversation_id,omitempty"`
	FollowUpMessage string `json:"follow_up_message,omitempty"`
}

// ChatResponse - ответ /chatbot/chat и /chatbot/chat/prediction.
type ChatResponse struct {
	Response       string `json:"response"        yaml:"response"`
	ConversationID int64  `json:"conversation_id" yaml:"conversation_id"`
}

// Conversation - диалог с ассистентом (с бэкенда или из локального кэша).
type Conversation struct {
	ID               int64         `json:"id"                yaml:"id"`
	ConversationType string        `json:"conversation_type" yaml:"conversation_type"`
	Crop             string        `json:"crop,omitempty"    yaml:"crop,omitempty"`
	Disease          string        `json:"disease,omitempty" yaml:"disease,omitempty"`
	CreatedAt        time.Time     `json:"created_at"        yaml:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"        yaml:"updated_at"`
	Messages         []ChatMessage `json:"messages"          yaml:"messages"`
}
