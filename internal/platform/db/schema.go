package db

// migrations holds the full schema history. Never edit an entry after it has
// shipped; add a new version instead.
var migrations = []Migration{
	{Version: 1, Name: "core", SQL: `
CREATE TABLE catalog (
    sku                TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    aliases            TEXT NOT NULL DEFAULT '[]',
    concentration      TEXT,
    species            TEXT NOT NULL DEFAULT '[]',
    routes             TEXT NOT NULL DEFAULT '[]',
    dose_min_mg_per_kg REAL,
    dose_max_mg_per_kg REAL,
    package_size  TEXT,
    price_cents   INTEGER NOT NULL DEFAULT 0,
    active        INTEGER NOT NULL DEFAULT 1,
    server_id     TEXT,
    last_synced   TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE patients (
    local_id      TEXT PRIMARY KEY,
    server_id     TEXT UNIQUE,
    name          TEXT NOT NULL,
    species       TEXT NOT NULL,
    breed         TEXT,
    weight_kg     REAL,
    date_of_birth TEXT,
    owner_name    TEXT,
    notes         TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE drafts (
    id                TEXT PRIMARY KEY,
    patient_local_id  TEXT NOT NULL REFERENCES patients(local_id),
    transcript        TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'open'
                      CHECK (status IN ('open', 'committed')),
    items             TEXT NOT NULL DEFAULT '[]',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);

CREATE INDEX idx_drafts_status ON drafts(status);

CREATE TABLE ledger_leaves (
    seq_no      INTEGER PRIMARY KEY,
    leaf_hash   BLOB NOT NULL UNIQUE,
    payload     BLOB NOT NULL,
    draft_id    TEXT NOT NULL,
    appended_at TEXT NOT NULL
);

CREATE TABLE merkle_nodes (
    hash       BLOB PRIMARY KEY,
    kind       TEXT NOT NULL CHECK (kind IN ('leaf', 'internal')),
    seq_no     INTEGER,
    left_hash  BLOB,
    right_hash BLOB,
    height     INTEGER NOT NULL
);

CREATE TABLE ledger_root (
    id        INTEGER PRIMARY KEY CHECK (id = 1),
    root_hash  BLOB NOT NULL,
    n_leaves   INTEGER NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE sync_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`},
}

// ftsSchema is applied outside the migration history because the fts5 module
// is only compiled into mattn/go-sqlite3 under the sqlite_fts5 build tag.
// Every statement is idempotent so the setup can be retried on each open.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS catalog_fts USING fts5(
    name, aliases, sku UNINDEXED,
    content='catalog', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS catalog_ai AFTER INSERT ON catalog BEGIN
    INSERT INTO catalog_fts(rowid, name, aliases, sku)
    VALUES (new.rowid, new.name, new.aliases, new.sku);
END;

CREATE TRIGGER IF NOT EXISTS catalog_ad AFTER DELETE ON catalog BEGIN
    INSERT INTO catalog_fts(catalog_fts, rowid, name, aliases, sku)
    VALUES ('delete', old.rowid, old.name, old.aliases, old.sku);
END;

CREATE TRIGGER IF NOT EXISTS catalog_au AFTER UPDATE ON catalog BEGIN
    INSERT INTO catalog_fts(catalog_fts, rowid, name, aliases, sku)
    VALUES ('delete', old.rowid, old.name, old.aliases, old.sku);
    INSERT INTO catalog_fts(rowid, name, aliases, sku)
    VALUES (new.rowid, new.name, new.aliases, new.sku);
END;

INSERT INTO catalog_fts(catalog_fts) VALUES ('rebuild');
`
