// Package storage is the persistent engine: a chunk table, a lexical
// full-text index, a vector k-NN index, and a metadata key/value store,
// all inside one SQLite database file. Every sub-store is kept
// consistent by the write ordering documented on DB's exported
// methods; callers (the indexer) are responsible for calling them in
// that order.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sammcvicker/ember/internal/embererr"
	"github.com/sammcvicker/ember/internal/hasher"
)

func init() {
	sqlite_vec.Auto()
}

// Chunk mirrors the Chunk entity: a content-addressed span of a source
// file plus the tree identity it was last observed under.
type Chunk struct {
	ContentHash hasher.Digest
	ProjectID   string
	Path        string
	Lang        string
	Symbol      string
	StartLine   int
	EndLine     int
	Content     string
	FileHash    hasher.Digest
	TreeSHA     string
}

// Required metadata keys. embedder_dim is stored as a decimal string.
const (
	MetaSchemaVersion  = "schema_version"
	MetaLastTreeSHA    = "last_tree_sha"
	MetaLastSyncMode   = "last_sync_mode"
	MetaModelFP        = "model_fingerprint"
	MetaEmbedderName   = "embedder_name"
	MetaEmbedderDim    = "embedder_dim"
)

// DB is a pooled connection to one index.db, scoped to a fixed vector
// dimension D for its lifetime.
type DB struct {
	conn *sql.DB
	path string
	dim  int
}

// Open opens or creates the database at dbPath, running any pending
// migrations. dim is the embedding dimension the vector index is
// declared against; it must match the active embedder's Dim().
func Open(dbPath string, dim int) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &embererr.StorageFailureError{Op: "create database directory", Err: err}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, &embererr.StorageFailureError{Op: "open database", Err: err}
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, &embererr.StorageFailureError{Op: "enable WAL mode", Err: err}
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, &embererr.StorageFailureError{Op: "enable foreign keys", Err: err}
	}

	db := &DB{conn: conn, path: dbPath, dim: dim}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, &embererr.StorageFailureError{Op: "run migrations", Err: err}
	}
	return db, nil
}

// Close releases the underlying connection pool. Safe to call once per
// Open; callers acquire no per-operation connections of their own, so
// there is nothing else to release.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Dim returns the vector dimension this database was opened against.
func (db *DB) Dim() int {
	return db.dim
}

// migrate is the schema-version-gated, idempotent migration runner.
// The version lives in the meta table itself (key schema_version)
// rather than a separate bookkeeping table, since the metadata KV is
// already required to carry it.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}

	current := 0
	var raw string
	row := db.conn.QueryRow("SELECT value FROM meta WHERE key = ?", MetaSchemaVersion)
	switch err := row.Scan(&raw); err {
	case nil:
		fmt.Sscanf(raw, "%d", &current)
	case sql.ErrNoRows:
		current = 0
	default:
		return fmt.Errorf("reading schema_version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, fmt.Sprintf(migrationV1, db.dim)},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := db.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if err := db.setMetaTx(nil, MetaSchemaVersion, fmt.Sprintf("%d", m.version)); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
	}

	for _, key := range []string{MetaLastTreeSHA, MetaLastSyncMode, MetaModelFP, MetaEmbedderName} {
		if _, ok, err := db.GetMeta(key); err != nil {
			return err
		} else if !ok {
			if err := db.setMetaTx(nil, key, ""); err != nil {
				return err
			}
		}
	}
	if _, ok, err := db.GetMeta(MetaEmbedderDim); err != nil {
		return err
	} else if !ok {
		if err := db.setMetaTx(nil, MetaEmbedderDim, fmt.Sprintf("%d", db.dim)); err != nil {
			return err
		}
	}

	return nil
}

// migrationV1 creates the chunk table, the Porter-stemmed FTS5 lexical
// index kept in sync by triggers, and the sqlite-vec vec0 vector index
// with content_hash (not rowid) as its primary key so the index stays
// stable across reindexes. %d is the embedding dimension.
const migrationV1 = `
CREATE TABLE IF NOT EXISTS chunks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    content_hash TEXT NOT NULL,
    project_id   TEXT NOT NULL,
    path         TEXT NOT NULL,
    lang         TEXT,
    symbol       TEXT,
    start_line   INTEGER NOT NULL,
    end_line     INTEGER NOT NULL,
    content      TEXT NOT NULL,
    file_hash    TEXT NOT NULL,
    tree_sha     TEXT NOT NULL,
    UNIQUE(content_hash, path)
);

CREATE INDEX IF NOT EXISTS idx_chunks_tree_path ON chunks(tree_sha, path);
CREATE INDEX IF NOT EXISTS idx_chunks_file_hash ON chunks(file_hash);
CREATE INDEX IF NOT EXISTS idx_chunks_lang ON chunks(lang);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    content, path, symbol, lang,
    content='chunks',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, content, path, symbol, lang)
    VALUES (new.id, new.content, new.path, new.symbol, new.lang);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, path, symbol, lang)
    VALUES ('delete', old.id, old.content, old.path, old.symbol, old.lang);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, path, symbol, lang)
    VALUES ('delete', old.id, old.content, old.path, old.symbol, old.lang);
    INSERT INTO chunks_fts(rowid, content, path, symbol, lang)
    VALUES (new.id, new.content, new.path, new.symbol, new.lang);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
    content_hash TEXT PRIMARY KEY,
    embedding    float[%d],
    +path        TEXT,
    +lang        TEXT
);
`

// GetMeta reads a metadata key. ok is false when the key has never
// been set.
func (db *DB) GetMeta(key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &embererr.StorageFailureError{Op: "read metadata", Err: err}
	}
	return value, true, nil
}

// SetMeta upserts a metadata key/value pair.
func (db *DB) SetMeta(key, value string) error {
	return db.setMetaTx(nil, key, value)
}

func (db *DB) setMetaTx(tx *sql.Tx, key, value string) error {
	var exec execer = db.conn
	if tx != nil {
		exec = tx
	}
	_, err := exec.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return &embererr.StorageFailureError{Op: "write metadata", Err: err}
	}
	return nil
}

// execer abstracts over *sql.DB and *sql.Tx for the handful of helpers
// that may run inside or outside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
