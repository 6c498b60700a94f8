package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hayaoshi/internal/database"
)

// KVRepository stores string blobs by name in the kv_store table. It backs the
// local storage of history and stats.
type KVRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewKVRepository creates a KV repository on db
func NewKVRepository(db *database.DB) *KVRepository {
	return &KVRepository{db: db, now: time.Now}
}

// Get retrieves the blob stored under key; ok is false when nothing is stored
func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := `SELECT data FROM kv_store WHERE name = ?`
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set updates or inserts the blob stored under key
func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.UpsertKVQuery(), key, value, r.now().UnixMilli())
	return err
}

// Keys lists the stored names starting with prefix
func (r *KVRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM kv_store WHERE name LIKE ? ORDER BY name`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
