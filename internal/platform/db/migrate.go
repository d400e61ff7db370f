package db

import (
	"fmt"
	"sort"
)

// Migration is a single versioned schema change. Migrations are compiled in
// because the store opens on end-user devices with no deploy tree to read
// .sql files from.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies all pending migrations in version order, each in its own
// transaction, recording them in the _migrations table. Returns the count
// of migrations applied. Safe to call on every open.
func (s *Store) Migrate() (int, error) {
	if _, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return 0, Classify(err, "_migrations table")
	}

	applied := make(map[int]bool)
	rows, err := s.conn.Query(`SELECT version FROM _migrations`)
	if err != nil {
		return 0, Classify(err, "applied versions")
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, Classify(err, "applied versions")
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, Classify(err, "applied versions")
	}

	migs := make([]Migration, len(migrations))
	copy(migs, migrations)
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })

	count := 0
	for _, mig := range migs {
		if applied[mig.Version] {
			continue
		}
		if err := s.applyMigration(mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

func (s *Store) applyMigration(mig Migration) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return Classify(err, "begin migration")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return Classify(err, "execute migration SQL")
	}
	if _, err := tx.Exec(
		`INSERT INTO _migrations (version, name) VALUES (?, ?)`,
		mig.Version, mig.Name,
	); err != nil {
		return Classify(err, "record migration")
	}
	return tx.Commit()
}
