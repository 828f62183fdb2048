package credstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Формат файла: salt(16) | nonce(24) | XChaCha20-Poly1305(JSON map[string]string).
// Ключ выводится из пароля через scrypt и кэшируется для текущей соли.
const (
	saltSize = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// FileStore - зашифрованный файл с учётными данными (права 0600).
// Каждая запись перечитывает файл и заменяет его атомарно через rename.
type FileStore struct {
	path       string
	passphrase []byte

	mu   sync.Mutex
	salt []byte
	key  []byte
}

// NewFileStore создаёт хранилище. Файл может ещё не существовать.
// Файл, который не читается текущим паролем, не мешает открытию: Get вернёт
// ErrCorrupted, а следующая запись или удаление заменит файл.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	const op = "credstore.NewFileStore"

	if path == "" {
		return nil, fmt.Errorf("%s: empty path", op)
	}

	if passphrase == "" {
		return nil, fmt.Errorf("%s: empty passphrase", op)
	}

	st := &FileStore{path: path, passphrase: []byte(passphrase)}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, err := st.load(); err != nil {
		if !errors.Is(err, ErrCorrupted) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		slog.Warn("credentials_file_unreadable", slog.String("path", path), slog.String("err", err.Error()))
	}

	return st, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", err
	}

	v, ok := data[key]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (f *FileStore) Set(ctx context.Context, key, value string) error {
	return f.SetMany(ctx, map[string]string{key: value})
}

func (f *FileStore) SetMany(_ context.Context, kv map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Нечитаемый файл перезаписывается новой парой.
	data, err := f.load()
	if errors.Is(err, ErrCorrupted) {
		data = make(map[string]string)
	} else if err != nil {
		return err
	}

	for k, v := range kv {
		data[k] = v
	}

	return f.save(data)
}

func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Нечитаемый файл удаляется целиком: иначе из него нельзя выйти.
	data, err := f.load()
	if errors.Is(err, ErrCorrupted) {
		data = nil
	} else if err != nil {
		return err
	}

	for _, k := range keys {
		delete(data, k)
	}

	if len(data) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("credstore.FileStore.Delete: %w", err)
		}
		return nil
	}

	return f.save(data)
}

func (f *FileStore) Close() error { return nil }

// load читает и расшифровывает файл; отсутствующий файл - пустое хранилище.
// Вызывается под f.mu.
func (f *FileStore) load() (map[string]string, error) {
	const op = "credstore.FileStore.load"

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(raw) < saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%s: %w: file too short", op, ErrCorrupted)
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ct := raw[saltSize+chacha20poly1305.NonceSizeX:]

	key, err := f.deriveKey(salt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: decrypt failed", op, ErrCorrupted)
	}

	data := make(map[string]string)
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrCorrupted, err)
	}

	return data, nil
}

// save шифрует и атомарно записывает файл. Вызывается под f.mu.
func (f *FileStore) save(data map[string]string) error {
	const op = "credstore.FileStore.save"

	if f.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("%s: salt: %w", op, err)
		}
		if _, err := f.deriveKey(salt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	plain, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%s: nonce: %w", op, err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+chacha20poly1305.Overhead)
	out = append(out, f.salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plain, nil)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// deriveKey выводит ключ для соли и кэширует его.
func (f *FileStore) deriveKey(salt []byte) ([]byte, error) {
	if f.key != nil && string(f.salt) == string(salt) {
		return f.key, nil
	}

	key, err := scrypt.Key(f.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}

	f.salt = append([]byte(nil), salt...)
	f.key = key

	return key, nil
}

var (
	_ Store       = (*FileStore)(nil)
	_ BatchSetter = (*FileStore)(nil)
)
