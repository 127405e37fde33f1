// Package persistence provides the SQLite-backed durability layer for a
// Vault: vectors, items, the single meta row, and the pending chunk buffer
// are all written through one *sql.DB, WAL-journaled, with every write
// landing atomically in a single call so a crash never leaves the
// in-memory VectorIndex ahead of disk.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vaultmemory/internal/errors"
	"vaultmemory/pkg/types"
)

// Store is the per-Vault SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file for memoryKey under
// dataDir, applies the schema, and caps the connection pool at a single
// connection, so every read and write on one Store is serialized through
// it; the file is opened in WAL journal mode.
func Open(ctx context.Context, dataDir, memoryKey string) (*Store, error) {
	path := filepath.Join(dataDir, memoryKey+".db")
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.WrapPersistenceError(err, "open")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS vectors (
	id        INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL,
	timestamp REAL NOT NULL,
	dims      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vectors_timestamp ON vectors(timestamp);

CREATE TABLE IF NOT EXISTS items (
	id           INTEGER PRIMARY KEY,
	content      TEXT NOT NULL,
	role         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	model        TEXT,
	request_id   TEXT,
	timestamp    REAL NOT NULL,
	token_count  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_items_content_hash ON items(content_hash);
CREATE INDEX IF NOT EXISTS idx_items_timestamp ON items(timestamp);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_buffer (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	content      TEXT NOT NULL DEFAULT '',
	token_count  INTEGER NOT NULL DEFAULT 0,
	last_updated REAL NOT NULL DEFAULT 0
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapPersistenceError(err, "migrate")
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the SQLite connection is actually usable, not merely open —
// sql.Open never dials, so this is the only way to catch a missing or
// unwritable data directory before a request needs it.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveVector upserts a single vector/item pair along with its embedding
// bytes (the caller supplies the already-normalized float32 blob layout
// used by the vector index so the two never drift apart).
func (s *Store) SaveVector(ctx context.Context, vec types.Vector, dims int, item types.Item, embeddingBlob []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapPersistenceError(err, "save_vector.begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO vectors (id, embedding, timestamp, dims) VALUES (?, ?, ?, ?)`,
		vec.ID, embeddingBlob, vec.Timestamp, dims,
	); err != nil {
		return errors.WrapPersistenceError(err, "save_vector.vectors")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (id, content, role, content_hash, model, request_id, timestamp, token_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Content, string(item.Role), item.ContentHash, item.Model, item.RequestID, item.Timestamp, item.TokenCount,
	); err != nil {
		return errors.WrapPersistenceError(err, "save_vector.items")
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapPersistenceError(err, "save_vector.commit")
	}
	return nil
}

// DeleteVector removes a vector/item pair by ID.
func (s *Store) DeleteVector(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapPersistenceError(err, "delete_vector.begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return errors.WrapPersistenceError(err, "delete_vector.vectors")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return errors.WrapPersistenceError(err, "delete_vector.items")
	}
	return errors.WrapPersistenceError(tx.Commit(), "delete_vector.commit")
}

// LoadAll reads every vector and its sibling item back, in ID order, for
// hydrating a Vault's in-memory VectorIndex on first touch.
func (s *Store) LoadAll(ctx context.Context) ([]types.Vector, []types.Item, map[uint64][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, timestamp, dims FROM vectors ORDER BY id`)
	if err != nil {
		return nil, nil, nil, errors.WrapPersistenceError(err, "load_all.vectors")
	}
	defer rows.Close()

	var vecs []types.Vector
	blobs := make(map[uint64][]byte)
	for rows.Next() {
		var v types.Vector
		var blob []byte
		var dims int
		if err := rows.Scan(&v.ID, &blob, &v.Timestamp, &dims); err != nil {
			return nil, nil, nil, errors.WrapPersistenceError(err, "load_all.vectors.scan")
		}
		vecs = append(vecs, v)
		blobs[v.ID] = blob
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, errors.WrapPersistenceError(err, "load_all.vectors.rows")
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT id, content, role, content_hash, model, request_id, timestamp, token_count FROM items ORDER BY id`)
	if err != nil {
		return nil, nil, nil, errors.WrapPersistenceError(err, "load_all.items")
	}
	defer itemRows.Close()

	var items []types.Item
	for itemRows.Next() {
		var it types.Item
		var role string
		if err := itemRows.Scan(&it.ID, &it.Content, &role, &it.ContentHash, &it.Model, &it.RequestID, &it.Timestamp, &it.TokenCount); err != nil {
			return nil, nil, nil, errors.WrapPersistenceError(err, "load_all.items.scan")
		}
		it.Role = types.Role(role)
		items = append(items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, nil, errors.WrapPersistenceError(err, "load_all.items.rows")
	}

	return vecs, items, blobs, nil
}

// SaveMeta upserts a single key/value pair in the meta table.
func (s *Store) SaveMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return errors.WrapPersistenceError(err, "save_meta")
}

// LoadMeta reads a single meta value, returning ("", nil) if absent.
func (s *Store) LoadMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.WrapPersistenceError(err, "load_meta")
	}
	return value, nil
}

// SavePendingBuffer atomically replaces the single persisted chunk-buffer
// row with content/tokenCount, stamped at updatedAt (ms since epoch).
func (s *Store) SavePendingBuffer(ctx context.Context, content string, tokenCount int, updatedAt float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_buffer (id, content, token_count, last_updated) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, token_count = excluded.token_count, last_updated = excluded.last_updated`,
		content, tokenCount, updatedAt,
	)
	return errors.WrapPersistenceError(err, "save_pending_buffer")
}

// LoadPendingBuffer reads back the persisted chunk-buffer content, returning
// ("", 0, nil) if the buffer has never been written.
func (s *Store) LoadPendingBuffer(ctx context.Context) (string, int, error) {
	var content string
	var tokenCount int
	err := s.db.QueryRowContext(ctx, `SELECT content, token_count FROM pending_buffer WHERE id = 1`).Scan(&content, &tokenCount)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, errors.WrapPersistenceError(err, "load_pending_buffer")
	}
	return content, tokenCount, nil
}

// ItemCount returns the number of persisted items, used for vault stats
// without requiring the in-memory index to be hydrated.
func (s *Store) ItemCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("persistence: item count: %w", err)
	}
	return count, nil
}

// MaxID returns the highest assigned vector ID, or 0 if the vault is empty.
// The Vault's store protocol assigns the next ID as MaxID()+1.
func (s *Store) MaxID(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM vectors`).Scan(&max)
	if err != nil {
		return 0, errors.WrapPersistenceError(err, "max_id")
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// DeleteByIDs removes the given vectors/items and returns the accounted
// bytes freed (embedding blob + content length), for delete's response.
func (s *Store) DeleteByIDs(ctx context.Context, ids []uint64) (bytesDeleted int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.WrapPersistenceError(err, "delete_by_ids.begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		var embLen, contentLen int64
		_ = tx.QueryRowContext(ctx, `SELECT LENGTH(embedding) FROM vectors WHERE id = ?`, id).Scan(&embLen)
		_ = tx.QueryRowContext(ctx, `SELECT LENGTH(content) FROM items WHERE id = ?`, id).Scan(&contentLen)
		bytesDeleted += embLen + contentLen

		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
			return 0, errors.WrapPersistenceError(err, "delete_by_ids.vectors")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return 0, errors.WrapPersistenceError(err, "delete_by_ids.items")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.WrapPersistenceError(err, "delete_by_ids.commit")
	}
	return bytesDeleted, nil
}

// DeleteOlderThan deletes every vector/item with timestamp < cutoff,
// first accounting the bytes that will be freed (SPEC_FULL 4.D: "first
// computes bytes_deleted ... then deletes").
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff float64) (deletedIDs []uint64, bytesDeleted int64, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, LENGTH(v.embedding), LENGTH(i.content) FROM vectors v
		 JOIN items i ON i.id = v.id WHERE v.timestamp < ?`, cutoff)
	if err != nil {
		return nil, 0, errors.WrapPersistenceError(err, "delete_older_than.select")
	}
	for rows.Next() {
		var id uint64
		var embLen, contentLen int64
		if err := rows.Scan(&id, &embLen, &contentLen); err != nil {
			rows.Close()
			return nil, 0, errors.WrapPersistenceError(err, "delete_older_than.scan")
		}
		deletedIDs = append(deletedIDs, id)
		bytesDeleted += embLen + contentLen
	}
	rows.Close()
	if len(deletedIDs) == 0 {
		return nil, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, errors.WrapPersistenceError(err, "delete_older_than.begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE timestamp < ?`, cutoff); err != nil {
		return nil, 0, errors.WrapPersistenceError(err, "delete_older_than.vectors")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM items WHERE id IN (SELECT id FROM items WHERE timestamp < ?)`, cutoff); err != nil {
		return nil, 0, errors.WrapPersistenceError(err, "delete_older_than.items")
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, errors.WrapPersistenceError(err, "delete_older_than.commit")
	}
	return deletedIDs, bytesDeleted, nil
}

// Clear wipes every vector, item, and the pending buffer, keeping the
// schema and meta row (the caller decides separately whether to reset dims).
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapPersistenceError(err, "clear.begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM vectors`,
		`DELETE FROM items`,
		`DELETE FROM pending_buffer`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.WrapPersistenceError(err, "clear.exec")
		}
	}
	return errors.WrapPersistenceError(tx.Commit(), "clear.commit")
}
