// s3 - архив для синхронизации локальной истории в S3-совместимое хранилище (MinIO).
// s3.go - конструктор клиента: нормализует endpoint, настраивает Secure/creds
// и проверяет наличие целевого бакета.
// Объекты кладутся под префикс устройства: <prefix>/snapshots/<name>, <prefix>/photos/<key>.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pribylovaa/agricare-client/internal/config"
)

// ErrPhotoMissing - локальный файл фотографии не найден.
var ErrPhotoMissing = errors.New("photo file not found")

// Archive - адаптер MinIO для выгрузки снимков истории и фотографий.
type Archive struct {
	client *mclient.Client
	bucket string
	prefix string
}

// New создаёт клиент MinIO и выполняет fail-fast-проверку бакета.
func New(ctx context.Context, cfg config.S3Config) (*Archive, error) {
	const op = "storage.s3.New"

	endpoint := cfg.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.Bucket)
	}

	return &Archive{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// PutSnapshot сохраняет JSON-снимок истории под именем name и возвращает ключ объекта.
func (a *Archive) PutSnapshot(ctx context.Context, name string, data []byte) (string, error) {
	const op = "storage.s3.PutSnapshot"

	key := a.key("snapshots", name)

	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), mclient.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return key, nil
}

// PutPhoto выгружает локальный файл filePath под ключом photos/<name>.
// Уже выгруженный объект того же размера повторно не загружается.
func (a *Archive) PutPhoto(ctx context.Context, name, filePath string) (string, error) {
	const op = "storage.s3.PutPhoto"

	fi, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w: %s", op, ErrPhotoMissing, filePath)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := a.key("photos", name)

	if st, err := a.client.StatObject(ctx, a.bucket, key, mclient.StatObjectOptions{}); err == nil && st.Size == fi.Size() {
		return key, nil
	}

	if _, err := a.client.FPutObject(ctx, a.bucket, key, filePath, mclient.PutObjectOptions{
		ContentType: contentTypeByExt(filePath),
	}); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return key, nil
}

func (a *Archive) key(kind, name string) string {
	return path.Join(a.prefix, kind, path.Base(name))
}

func contentTypeByExt(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
