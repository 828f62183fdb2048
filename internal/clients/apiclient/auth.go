package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/agricare-client/internal/credstore"
	apierrors "github.com/pribylovaa/agricare-client/internal/errors"
	"github.com/pribylovaa/agricare-client/internal/models"
	"github.com/pribylovaa/agricare-client/internal/pkg/redact"
)

const pathLogoutAll = "/auth/logout-all"

// Login обменивает email/пароль на пару токенов и сохраняет её.
func (c *Client) Login(ctx context.Context, email, password string) (*models.CredentialPair, error) {
	const op = "apiclient.Login"

	pair, err := c.exchange(ctx, pathLogin, models.AuthLoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info("login_succeeded", slog.String("email", redact.Email(email)))

	return pair, nil
}

// Register создаёт пользователя и сохраняет выданную пару токенов.
// Поля не валидируются; пустой userType не передаётся.
func (c *Client) Register(ctx context.Context, email, password, userType string) (*models.CredentialPair, error) {
	const op = "apiclient.Register"

	pair, err := c.exchange(ctx, pathRegister, models.AuthRegisterRequest{
		Email:    email,
		Password: password,
		UserType: userType,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info("register_succeeded", slog.String("email", redact.Email(email)))

	return pair, nil
}

// Logout сообщает бэкенду об отзыве refresh-токена (если он есть) и безусловно
// удаляет локальные учётные данные. Ошибка сетевого вызова только логируется;
// возвращается лишь ошибка очистки хранилища.
func (c *Client) Logout(ctx context.Context) error {
	const op = "apiclient.Logout"

	refreshToken, err := credstore.Lookup(ctx, c.store, credstore.KeyRefreshToken)
	if err != nil {
		c.log.Warn("refresh_token_read_failed", slog.String("err", err.Error()))
	}

	if refreshToken != "" {
		r, err := NewJSONRequest(http.MethodPost, pathLogout, models.AuthRefreshRequest{RefreshToken: refreshToken})
		if err == nil {
			_, err = c.unauthenticated(ctx, r)
		}
		if err != nil {
			c.log.Warn("logout_remote_failed", slog.String("err", err.Error()))
		}
	}

	return c.clearLocal(ctx, op)
}

// LogoutAll отзывает все refresh-токены пользователя на бэкенде и очищает
// локальные учётные данные. В отличие от Logout, ошибка бэкенда возвращается,
// но локальная очистка выполняется в любом случае.
func (c *Client) LogoutAll(ctx context.Context) error {
	const op = "apiclient.LogoutAll"

	_, remoteErr := c.PostJSON(ctx, pathLogoutAll, nil)

	if err := c.clearLocal(ctx, op); err != nil {
		return err
	}

	if remoteErr != nil {
		return fmt.Errorf("%s: %w", op, remoteErr)
	}

	return nil
}

// IsAuthenticated - пара токенов есть и access-токен ещё не истёк.
// Сетевых вызовов и обновления токенов не делает.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	pair, err := credstore.LoadCredentials(ctx, c.store)
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			c.log.Warn("credentials_read_failed", slog.String("err", err.Error()))
		}
		return false
	}

	return pair.Valid(c.now())
}

// Credentials возвращает сохранённую пару или credstore.ErrNotFound.
func (c *Client) Credentials(ctx context.Context) (*models.CredentialPair, error) {
	return credstore.LoadCredentials(ctx, c.store)
}

// Me возвращает профиль текущего пользователя.
func (c *Client) Me(ctx context.Context) (*models.UserInfo, error) {
	const op = "apiclient.Me"

	resp, err := c.Get(ctx, pathMe, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var u models.UserInfo
	if err := resp.DecodeJSON(&u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &u, nil
}

// exchange - вызов login/register/refresh: ответ AuthResponse сохраняется как новая пара.
// 401 этих эндпоинтов означает неверные данные, а не истёкший токен, поэтому
// протокол обновления для них не запускается.
func (c *Client) exchange(ctx context.Context, path string, body any) (*models.CredentialPair, error) {
	r, err := NewJSONRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	issuedAt := c.now()

	resp, err := c.unauthenticated(ctx, r)
	if err != nil {
		return nil, err
	}

	var ar models.AuthResponse
	if err := resp.DecodeJSON(&ar); err != nil {
		return nil, err
	}

	if ar.AccessToken == "" {
		return nil, errEmptyToken
	}

	pair := ar.Pair(issuedAt)
	if err := credstore.SaveCredentials(ctx, c.store, pair); err != nil {
		return nil, err
	}

	c.setToken(pair.AccessToken)

	return pair, nil
}

// refreshTokens - POST /auth/refresh с сохранением новой пары.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (*models.CredentialPair, error) {
	const op = "apiclient.refreshTokens"

	pair, err := c.exchange(ctx, pathRefresh, models.AuthRefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, apierrors.ErrAuthRefresh, err)
	}

	c.log.Debug("token_refreshed", slog.String("access_token", redact.Token(pair.AccessToken)))

	return pair, nil
}

// unauthenticated отправляет запрос без Authorization и без протокола обновления.
func (c *Client) unauthenticated(ctx context.Context, r Request) (*Response, error) {
	resp, err := c.send(ctx, r.WithRetried(), "")
	if err != nil {
		return nil, err
	}

	return checkStatus(resp)
}

func (c *Client) clearLocal(ctx context.Context, op string) error {
	c.setToken("")

	if err := credstore.ClearCredentials(ctx, c.store); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
