package db

import (
	"database/sql"
	"errors"
	"time"
)

// GetState reads a sync_state value. Returns ok=false when the key has
// never been written.
func GetState(q Queryer, key string) (string, bool, error) {
	var v string
	err := q.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, Classify(err, "sync_state "+key)
	}
	return v, true, nil
}

// SetState writes a sync_state value, replacing any previous one.
func SetState(q Queryer, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	return Classify(err, "sync_state "+key)
}
