// models - модели клиента: учётные данные, ответы бэкенда и локальная история.
package models

import "time"

// CredentialPair - пара токенов, которой владеет API-клиент.
//
// Описание:
//   - AccessToken - короткоживущий токен для запросов к API;
//   - RefreshToken - долгоживущий секрет для выпуска новой пары;
//   - ExpiresAt - момент истечения access-токена, всегда issue_time + expires_in.
type CredentialPair struct {
	AccessToken  string    `json:"access_token"  yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"    yaml:"expires_at"`
}

// Valid сообщает, что access-токен есть и ещё не истёк на момент now.
func (c *CredentialPair) Valid(now time.Time) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt)
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type,omitempty"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse - ответ /auth/login, /auth/register и /auth/refresh.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // секунды
}

// Pair переводит ответ бэкенда в CredentialPair относительно момента выдачи issuedAt.
func (r AuthResponse) Pair(issuedAt time.Time) *CredentialPair {
	return &CredentialPair{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    issuedAt.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}

// UserInfo - ответ /auth/me.
type UserInfo struct {
	ID        int64     `json:"id"         yaml:"id"`
	Email     string    `json:"email"      yaml:"email"`
	IsActive  bool      `json:"is_active"  yaml:"is_active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
