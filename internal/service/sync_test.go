package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/agricare-client/internal/mocks"
	"github.com/pribylovaa/agricare-client/internal/models"
)

func TestSync_DisabledWithoutArchive(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	svc := newSvcForTest(t, mocks.NewMockAPI(ctrl), mocks.NewMockStorage(ctrl))

	_, err := svc.Sync(context.Background())
	require.ErrorIs(t, err, ErrSyncDisabled)
}

func TestSync_UploadsSnapshotAndPhotos(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "a.jpg")
	second := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(first, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("b"), 0o600))

	preds := []models.Prediction{
		{ID: "p3", ImageURI: filepath.Join(dir, "gone.jpg")},
		{ID: "p2", ImageURI: second},
		{ID: "p1", ImageURI: first},
		{ID: "p0"},
	}
	convs := []models.Conversation{{ID: 1, ConversationType: models.ConversationGeneral}}

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	archive := mocks.NewMockArchive(ctrl)

	st.EXPECT().Predictions(gomock.Any()).Return(preds, nil)
	st.EXPECT().Conversations(gomock.Any()).Return(convs, nil)

	archive.EXPECT().
		PutSnapshot(gomock.Any(), "history-1741944413000.json", gomock.Any()).
		DoAndReturn(func(_ context.Context, name string, data []byte) (string, error) {
			var snap Snapshot
			require.NoError(t, json.Unmarshal(data, &snap))
			require.Equal(t, fixedNow, snap.GeneratedAt)
			require.Len(t, snap.Predictions, 4)
			require.Len(t, snap.Conversations, 1)
			return "devices/x/snapshots/" + name, nil
		})

	var (
		mu    sync.Mutex
		names = map[string]string{}
	)
	archive.EXPECT().
		PutPhoto(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2).
		DoAndReturn(func(_ context.Context, name, path string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			names[name] = path
			return "devices/x/photos/" + name, nil
		})

	svc := newSvcForTest(t, mocks.NewMockAPI(ctrl), st, WithArchive(archive))

	report, err := svc.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, &SyncReport{
		SnapshotKey:   "devices/x/snapshots/history-1741944413000.json",
		Photos:        2,
		SkippedPhotos: 1,
	}, report)
	require.Equal(t, map[string]string{"p1.jpg": first, "p2.png": second}, names)
}

func TestSync_PhotoUploadErrorFails(t *testing.T) {
	t.Parallel()

	img := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(img, []byte("a"), 0o600))

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	archive := mocks.NewMockArchive(ctrl)
	boom := errors.New("access denied")

	st.EXPECT().Predictions(gomock.Any()).Return([]models.Prediction{{ID: "p1", ImageURI: img}}, nil)
	st.EXPECT().Conversations(gomock.Any()).Return(nil, nil)
	archive.EXPECT().PutSnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return("snap", nil)
	archive.EXPECT().PutPhoto(gomock.Any(), "p1.jpg", img).Return("", boom)

	svc := newSvcForTest(t, mocks.NewMockAPI(ctrl), st, WithArchive(archive))

	_, err := svc.Sync(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestSync_SnapshotErrorStopsBeforePhotos(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	archive := mocks.NewMockArchive(ctrl)
	boom := errors.New("bucket missing")

	st.EXPECT().Predictions(gomock.Any()).Return([]models.Prediction{{ID: "p1", ImageURI: "/tmp/x.jpg"}}, nil)
	st.EXPECT().Conversations(gomock.Any()).Return(nil, nil)
	archive.EXPECT().PutSnapshot(gomock.Any(), gomock.Any(), gomock.Any()).Return("", boom)

	svc := newSvcForTest(t, mocks.NewMockAPI(ctrl), st, WithArchive(archive))

	_, err := svc.Sync(context.Background())
	require.ErrorIs(t, err, boom)
}
