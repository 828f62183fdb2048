package credstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.sealed")

	st, err := NewFileStore(path, "s3cret")
	require.NoError(t, err)

	_, err = st.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SetMany(ctx, map[string]string{
		KeyAccessToken:  "access-value",
		KeyRefreshToken: "refresh-value",
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "access-value")

	again, err := NewFileStore(path, "s3cret")
	require.NoError(t, err)

	v, err := again.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "refresh-value", v)
}

func TestFileStore_WrongPassphrase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.sealed")

	st, err := NewFileStore(path, "one")
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, KeyAccessToken, "a"))

	other, err := NewFileStore(path, "two")
	require.NoError(t, err)

	_, err = other.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrCorrupted)

	// Новый вход перезаписывает файл под текущим паролем.
	require.NoError(t, other.SetMany(ctx, map[string]string{KeyAccessToken: "b", KeyRefreshToken: "r"}))

	again, err := NewFileStore(path, "two")
	require.NoError(t, err)
	v, err := again.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "b", v)

	_, err = st.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStore_CorruptedFileCanBeCleared(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"truncated": []byte("short"),
		"garbage":   bytes.Repeat([]byte{0x5a}, 128),
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "credentials.sealed")
			require.NoError(t, os.WriteFile(path, content, 0o600))

			st, err := NewFileStore(path, "p")
			require.NoError(t, err)

			_, err = LoadCredentials(ctx, st)
			require.ErrorIs(t, err, ErrCorrupted)

			require.NoError(t, ClearCredentials(ctx, st))
			_, err = os.Stat(path)
			require.True(t, os.IsNotExist(err))

			_, err = LoadCredentials(ctx, st)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStore_DeleteAllRemovesFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.sealed")

	st, err := NewFileStore(path, "p")
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, KeyAccessToken, "a"))
	require.NoError(t, st.Set(ctx, KeyTokenExpiry, "1"))

	require.NoError(t, st.Delete(ctx, KeyAccessToken))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, AllKeys...))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, st.Delete(ctx, AllKeys...))
}

func TestNewFileStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("", "p")
	require.Error(t, err)

	_, err = NewFileStore(filepath.Join(t.TempDir(), "x"), "")
	require.Error(t, err)
}
