package clients

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/agricare-client/internal/config"
	"github.com/pribylovaa/agricare-client/internal/credstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	return config.Config{
		API: config.APIConfig{BaseURL: "http://127.0.0.1:8000", Timeout: time.Second, UserAgent: "agricare-test"},
		Credentials: config.CredentialsConfig{
			Backend:    config.CredentialsFile,
			FilePath:   filepath.Join(t.TempDir(), "credentials.sealed"),
			Passphrase: "correct horse",
		},
		Weather: config.WeatherConfig{BaseURL: "http://127.0.0.1:9"},
	}
}

func TestOpenStore_Backends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)

	st, err := OpenStore(ctx, config.CredentialsConfig{Backend: config.CredentialsMemory})
	require.NoError(t, err)
	require.IsType(t, &credstore.MemoryStore{}, st)

	st, err = OpenStore(ctx, cfg.Credentials)
	require.NoError(t, err)
	require.IsType(t, &credstore.FileStore{}, st)

	_, err = OpenStore(ctx, config.CredentialsConfig{Backend: "etcd"})
	require.ErrorContains(t, err, "unknown credentials backend")

	_, err = OpenStore(ctx, config.CredentialsConfig{Backend: config.CredentialsFile, FilePath: cfg.Credentials.FilePath})
	require.Error(t, err)
}

func TestNew_BuildsClientsAndRegistersMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := New(context.Background(), testConfig(t), log, reg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	require.NotNil(t, c.API)
	require.NotNil(t, c.Weather)
	require.False(t, c.API.IsAuthenticated(context.Background()))

	// Счётчики-векторы без меток не экспортируются, но простой счётчик виден сразу.
	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.API.BaseURL = "not a url"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.Error(t, err)
}
