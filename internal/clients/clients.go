package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/agricare-client/internal/clients/apiclient"
	"github.com/pribylovaa/agricare-client/internal/clients/weather"
	"github.com/pribylovaa/agricare-client/internal/config"
	"github.com/pribylovaa/agricare-client/internal/credstore"
)

// Clients агрегирует исходящие клиенты: бэкенд AgriCare и OpenWeatherMap.
type Clients struct {
	API     *apiclient.Client
	Weather *weather.Client

	store credstore.Store
}

// New открывает хранилище учётных данных и собирает клиенты.
// reg может быть nil - тогда метрики клиента не регистрируются.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*Clients, error) {
	const op = "internal/clients/New"

	store, err := OpenStore(ctx, cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Общий транспорт: keep-alive соединения переиспользуются обоими клиентами.
	httpClient := &http.Client{Transport: http.DefaultTransport}

	api, err := apiclient.New(cfg.API, store,
		apiclient.WithHTTPClient(httpClient),
		apiclient.WithLogger(log),
		apiclient.WithRegisterer(reg),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: api client: %w", op, err)
	}

	return &Clients{
		API:     api,
		Weather: weather.New(cfg.Weather, cfg.API.Timeout, cfg.API.UserAgent, httpClient, log),
		store:   store,
	}, nil
}

// OpenStore выбирает хранилище пары токенов по cfg.Backend.
func OpenStore(ctx context.Context, cfg config.CredentialsConfig) (credstore.Store, error) {
	const op = "internal/clients/OpenStore"

	switch cfg.Backend {
	case config.CredentialsMemory:
		return credstore.NewMemoryStore(), nil
	case config.CredentialsFile:
		st, err := credstore.NewFileStore(cfg.FilePath, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, nil
	case config.CredentialsRedis:
		st, err := credstore.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix, cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%s: unknown credentials backend %q", op, cfg.Backend)
	}
}

// Close освобождает хранилище учётных данных.
func (c *Clients) Close() error {
	return c.store.Close()
}
