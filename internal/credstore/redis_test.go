package credstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/agricare-client/internal/models"
)

// Интеграционные тесты RedisStore поднимают redis:7-alpine через testcontainers-go.
//
// Запуск:
//   GO_TEST_INTEGRATION=1 go test ./internal/credstore -run Integration -v -count=1

func startRedis(t *testing.T) string {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "docker.io/library/redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestIntegration_RedisStore_Credentials(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	st, err := NewRedisStore(ctx, url, "", "alice")
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrNotFound)

	exp := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	require.NoError(t, SaveCredentials(ctx, st, &models.CredentialPair{
		AccessToken: "a", RefreshToken: "r", ExpiresAt: exp,
	}))

	got, err := LoadCredentials(ctx, st)
	require.NoError(t, err)
	require.Equal(t, "r", got.RefreshToken)
	require.True(t, got.ExpiresAt.Equal(exp))

	// Профили изолированы друг от друга.
	other, err := NewRedisStore(ctx, url, "", "bob")
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ClearCredentials(ctx, st))
	_, err = st.Get(ctx, KeyRefreshToken)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIntegration_NewRedisStore_Unreachable(t *testing.T) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "redis://127.0.0.1:1/0", "", "")
	require.Error(t, err)
}
