package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/agricare-client/internal/config"
)

// Интеграционные тесты архива поднимают реальный MinIO через testcontainers-go.
//
// Запуск:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/s3 -v -count=1

const (
	rootUser     = "root"
	rootPassword = "rootpass"
	bucket       = "agricare-sync"
)

func startMinio(t *testing.T, createBucket bool) (config.S3Config, *mclient.Client) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image: "docker.io/minio/minio:latest",
		Env: map[string]string{
			"MINIO_ROOT_USER":     rootUser,
			"MINIO_ROOT_PASSWORD": rootPassword,
		},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	admin, err := mclient.New(host+":"+port.Port(), &mclient.Options{
		Creds: credentials.NewStaticV4(rootUser, rootPassword, ""),
	})
	require.NoError(t, err)

	if createBucket {
		require.NoError(t, admin.MakeBucket(ctx, bucket, mclient.MakeBucketOptions{Region: "us-east-1"}))
	}

	return config.S3Config{
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: rootUser,
		SecretKey: rootPassword,
		Bucket:    bucket,
		Prefix:    "/devices/test/",
	}, admin
}

func TestIntegration_New_BucketMustExist(t *testing.T) {
	cfg, _ := startMinio(t, false)

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestIntegration_PutSnapshotAndPhoto(t *testing.T) {
	cfg, admin := startMinio(t, true)
	ctx := context.Background()

	a, err := New(ctx, cfg)
	require.NoError(t, err)

	key, err := a.PutSnapshot(ctx, "history-1.json", []byte(`{"predictions":[]}`))
	require.NoError(t, err)
	require.Equal(t, "devices/test/snapshots/history-1.json", key)

	obj, err := admin.GetObject(ctx, bucket, key, mclient.GetObjectOptions{})
	require.NoError(t, err)
	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.JSONEq(t, `{"predictions":[]}`, string(body))

	photo := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o600))

	pkey, err := a.PutPhoto(ctx, "p-1.jpg", photo)
	require.NoError(t, err)
	require.Equal(t, "devices/test/photos/p-1.jpg", pkey)

	st, err := admin.StatObject(ctx, bucket, pkey, mclient.StatObjectOptions{})
	require.NoError(t, err)
	require.EqualValues(t, len("jpeg-bytes"), st.Size)
	require.Equal(t, "image/jpeg", st.ContentType)

	// Повторная выгрузка того же файла - no-op.
	again, err := a.PutPhoto(ctx, "p-1.jpg", photo)
	require.NoError(t, err)
	require.Equal(t, pkey, again)
}

func TestIntegration_PutPhoto_MissingFile(t *testing.T) {
	cfg, _ := startMinio(t, true)
	ctx := context.Background()

	a, err := New(ctx, cfg)
	require.NoError(t, err)

	_, err = a.PutPhoto(ctx, "x.jpg", filepath.Join(t.TempDir(), "nope.jpg"))
	require.ErrorIs(t, err, ErrPhotoMissing)
}

func TestContentTypeByExt(t *testing.T) {
	t.Parallel()

	require.Equal(t, "image/png", contentTypeByExt("a/b.PNG"))
	require.Equal(t, "image/webp", contentTypeByExt("x.webp"))
	require.Equal(t, "image/jpeg", contentTypeByExt("x.jpg"))
	require.Equal(t, "image/jpeg", contentTypeByExt("noext"))
}
