// sqlite реализует storage.Storage поверх modernc.org/sqlite (без cgo).
// Схема применяется при открытии; после каждой вставки таблица обрезается
// до storage.HistoryLimit последних записей.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pribylovaa/agricare-client/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT    NOT NULL UNIQUE,
	predicted_class TEXT    NOT NULL,
	confidence      REAL    NOT NULL,
	success         INTEGER NOT NULL,
	image_uri       TEXT    NOT NULL DEFAULT '',
	crop_type       TEXT    NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	conversation_id INTEGER
);

CREATE TABLE IF NOT EXISTS conversations (
	id                INTEGER PRIMARY KEY,
	conversation_type TEXT    NOT NULL,
	crop              TEXT    NOT NULL DEFAULT '',
	disease           TEXT    NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL,
	messages          TEXT    NOT NULL DEFAULT '[]'
);
`

// Storage - хранилище в одном файле SQLite.
type Storage struct {
	db *sql.DB
}

// New открывает (или создаёт) базу по пути path и применяет схему.
// path == ":memory:" - база в памяти (одно соединение).
func New(ctx context.Context, path string) (*Storage, error) {
	const op = "storage.sqlite.New"

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// База :memory: существует в рамках одного соединения.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: apply schema: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

var _ storage.Storage = (*Storage)(nil)
