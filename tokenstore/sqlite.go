package tokenstore

import (
	"database/sql"
	"os"
	"path/filepath"

	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `CREATE TABLE IF NOT EXISTS credentials (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteRepo stores the token in a local SQLite key/value table.
type SQLiteRepo struct {
	db  *sql.DB
	key string
}

var _ Repo = (*SQLiteRepo)(nil)

// NewSQLiteRepo opens (creating if needed) the database at path and stores
// the token under key.
func NewSQLiteRepo(path, key string) (*SQLiteRepo, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create token directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open token database")
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialise token schema")
	}
	return &SQLiteRepo{db: db, key: key}, nil
}

func (r *SQLiteRepo) Load() (string, error) {
	var token string
	err := r.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, r.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.ErrTokenNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to load token")
	}
	return token, nil
}

func (r *SQLiteRepo) Save(token string) error {
	_, err := r.db.Exec(`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, r.key, token)
	if err != nil {
		return errors.Wrap(err, "failed to save token")
	}
	return nil
}

func (r *SQLiteRepo) Delete() error {
	if _, err := r.db.Exec(`DELETE FROM credentials WHERE key = ?`, r.key); err != nil {
		return errors.Wrap(err, "failed to delete token")
	}
	return nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}
