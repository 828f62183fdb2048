// credstore - защищённое key-value хранилище учётных данных клиента.
//
// Контракт повторяет secure storage мобильного клиента: get/set/delete по ключам
// access_token, refresh_token и token_expiry (unix-миллисекунды). Поверх него
// LoadCredentials/SaveCredentials/ClearCredentials работают с models.CredentialPair.
//
// Реализации: memory (процессная), file (зашифрованный файл), redis.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pribylovaa/agricare-client/internal/models"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry"
)

// AllKeys - все ключи пары токенов.
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry}

var (
	// ErrNotFound - ключ отсутствует в хранилище.
	ErrNotFound = errors.New("credential not found")
	// ErrCorrupted - содержимое хранилища не удаётся прочитать (битый файл, чужой ключ шифрования).
	ErrCorrupted = errors.New("credential store corrupted")
)

// Store - минимальный контракт хранилища.
type Store interface {
	// Get возвращает значение или ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set сохраняет значение.
	Set(ctx context.Context, key, value string) error
	// Delete удаляет ключи; отсутствующие ключи не считаются ошибкой.
	Delete(ctx context.Context, keys ...string) error
	// Close освобождает ресурсы.
	Close() error
}

// BatchSetter реализуют хранилища, умеющие записать несколько ключей атомарно.
type BatchSetter interface {
	SetMany(ctx context.Context, kv map[string]string) error
}

// LoadCredentials читает пару токенов. Без access-токена возвращает ErrNotFound.
// Отсутствующий или битый token_expiry трактуется как уже истёкший токен.
func LoadCredentials(ctx context.Context, st Store) (*models.CredentialPair, error) {
	const op = "credstore.LoadCredentials"

	access, err := st.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := st.Get(ctx, KeyRefreshToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair := &models.CredentialPair{AccessToken: access, RefreshToken: refresh}

	raw, err := st.Get(ctx, KeyTokenExpiry)
	switch {
	case err == nil:
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			pair.ExpiresAt = time.UnixMilli(ms)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// SaveCredentials записывает пару целиком (атомарно, если хранилище это умеет).
func SaveCredentials(ctx context.Context, st Store, pair *models.CredentialPair) error {
	const op = "credstore.SaveCredentials"

	kv := map[string]string{
		KeyAccessToken:  pair.AccessToken,
		KeyRefreshToken: pair.RefreshToken,
		KeyTokenExpiry:  strconv.FormatInt(pair.ExpiresAt.UnixMilli(), 10),
	}

	if bs, ok := st.(BatchSetter); ok {
		if err := bs.SetMany(ctx, kv); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	for _, k := range AllKeys {
		if err := st.Set(ctx, k, kv[k]); err != nil {
			return fmt.Errorf("%s: %s: %w", op, k, err)
		}
	}

	return nil
}

// ClearCredentials удаляет пару токенов.
func ClearCredentials(ctx context.Context, st Store) error {
	const op = "credstore.ClearCredentials"

	if err := st.Delete(ctx, AllKeys...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Lookup - Get, где отсутствие ключа не ошибка: возвращается пустая строка.
func Lookup(ctx context.Context, st Store, key string) (string, error) {
	v, err := st.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}

	return v, err
}
