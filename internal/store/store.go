// Package store provides the SQLite-backed metadata store for docq. It holds
// user accounts, uploaded documents, and per-chunk metadata keyed by the
// chunk's vector index slot. The slot column is the sole join key between
// the vector index and this store: retrieval looks up the slots returned by
// a nearest-neighbor search, and slots whose chunk rows were deleted simply
// come back absent.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound reports that a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrEmailTaken reports that a user with the given email already exists.
var ErrEmailTaken = errors.New("store: email already registered")

// User is a registered account. Documents and chunks are scoped to their
// owning user; retrieval never crosses owner boundaries.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Document is an uploaded file's metadata. The text itself is not retained;
// only its chunks are, each under its vector slot.
type Document struct {
	ID         string
	OwnerID    string
	Filename   string
	SizeBytes  int64
	ChunkCount int
	CreatedAt  time.Time
}

// Chunk is the stored metadata for one text chunk. Slot is the position the
// chunk's embedding occupies in the vector index.
type Chunk struct {
	Slot       int64
	DocumentID string
	OwnerID    string
	Filename   string
	Index      int
	Text       string
	StartChar  int
	EndChar    int
}

// Store persists users, documents, and chunk metadata. Implementations must
// be safe for concurrent use.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	// InsertDocument persists a document and its chunks in one transaction,
	// so a crash never leaves a document without its chunk rows.
	InsertDocument(ctx context.Context, d Document, chunks []Chunk) error
	DocumentsByOwner(ctx context.Context, ownerID string) ([]Document, error)
	DocumentByID(ctx context.Context, ownerID, docID string) (Document, error)
	// DeleteDocument removes a document and its chunk rows. The document's
	// vectors remain in the index as unreachable slots.
	DeleteDocument(ctx context.Context, ownerID, docID string) error

	// ChunksBySlots returns the owner's chunks for the given slots. Slots
	// with no row, or whose row belongs to another owner, are omitted.
	ChunksBySlots(ctx context.Context, ownerID string, slots []int64) (map[int64]Chunk, error)

	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// DefaultDBPath returns the default path for the metadata database.
// It resolves to ~/.docq/docq.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docq")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "docq.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT    PRIMARY KEY,
    email         TEXT    NOT NULL UNIQUE,
    password_hash TEXT    NOT NULL,
    created_at    INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT    PRIMARY KEY,
    owner_id    TEXT    NOT NULL REFERENCES users(id),
    filename    TEXT    NOT NULL,
    size_bytes  INTEGER NOT NULL,
    chunk_count INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner
    ON documents (owner_id, created_at);
CREATE TABLE IF NOT EXISTS chunks (
    slot        INTEGER PRIMARY KEY,  -- vector index slot, assigned at ingest
    document_id TEXT    NOT NULL REFERENCES documents(id),
    owner_id    TEXT    NOT NULL,
    chunk_index INTEGER NOT NULL,
    text        TEXT    NOT NULL,
    start_char  INTEGER NOT NULL,
    end_char    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document
    ON chunks (document_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateUser persists a new user. Returns ErrEmailTaken when the email is
// already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, u User) error {
	const q = `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, u.ID, u.Email, u.PasswordHash, u.CreatedAt.Unix()); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
		}
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// UserByEmail returns the user registered under email, or ErrNotFound.
func (s *SQLiteStore) UserByEmail(ctx context.Context, email string) (User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, q, email))
}

// UserByID returns the user with the given id, or ErrNotFound.
func (s *SQLiteStore) UserByID(ctx context.Context, id string) (User, error) {
	const q = `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (User, error) {
	var u User
	var ts int64
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("store: scan user: %w", err)
	}
	u.CreatedAt = time.Unix(ts, 0)
	return u, nil
}

// InsertDocument persists a document and its chunk rows in one transaction.
func (s *SQLiteStore) InsertDocument(ctx context.Context, d Document, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insert document: %w", err)
	}
	defer tx.Rollback()

	const docQ = `INSERT INTO documents (id, owner_id, filename, size_bytes, chunk_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, docQ, d.ID, d.OwnerID, d.Filename, d.SizeBytes, d.ChunkCount, d.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("store: insert document: %w", err)
	}

	const chunkQ = `INSERT INTO chunks (slot, document_id, owner_id, chunk_index, text, start_char, end_char)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, chunkQ, c.Slot, c.DocumentID, c.OwnerID, c.Index, c.Text, c.StartChar, c.EndChar); err != nil {
			return fmt.Errorf("store: insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit insert document: %w", err)
	}
	return nil
}

// DocumentsByOwner returns the owner's documents, newest first.
func (s *SQLiteStore) DocumentsByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	const q = `SELECT id, owner_id, filename, size_bytes, chunk_count, created_at
FROM documents WHERE owner_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: documents by owner: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.SizeBytes, &d.ChunkCount, &ts); err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		d.CreatedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return docs, nil
}

// DocumentByID returns the owner's document with the given id, or ErrNotFound.
// A document owned by someone else is indistinguishable from a missing one.
func (s *SQLiteStore) DocumentByID(ctx context.Context, ownerID, docID string) (Document, error) {
	const q = `SELECT id, owner_id, filename, size_bytes, chunk_count, created_at
FROM documents WHERE id = ? AND owner_id = ?`

	var d Document
	var ts int64
	err := s.db.QueryRowContext(ctx, q, docID, ownerID).
		Scan(&d.ID, &d.OwnerID, &d.Filename, &d.SizeBytes, &d.ChunkCount, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("store: document by id: %w", err)
	}
	d.CreatedAt = time.Unix(ts, 0)
	return d, nil
}

// DeleteDocument removes a document and its chunk rows. Returns ErrNotFound
// when the owner has no such document. The document's vectors stay in the
// index; retrieval filters the orphaned slots out.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, ownerID, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete document: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND owner_id = ?`, docID, ownerID)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete document rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("store: delete chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete document: %w", err)
	}
	return nil
}

// ChunksBySlots returns the owner's chunks for the given slots, keyed by
// slot. Missing or foreign-owned slots are silently absent from the result.
func (s *SQLiteStore) ChunksBySlots(ctx context.Context, ownerID string, slots []int64) (map[int64]Chunk, error) {
	if len(slots) == 0 {
		return map[int64]Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(slots))
	placeholders = placeholders[:len(placeholders)-1]
	q := `SELECT c.slot, c.document_id, c.owner_id, d.filename, c.chunk_index, c.text, c.start_char, c.end_char
FROM chunks c JOIN documents d ON d.id = c.document_id
WHERE c.owner_id = ? AND c.slot IN (` + placeholders + `)`

	args := make([]any, 0, len(slots)+1)
	args = append(args, ownerID)
	for _, slot := range slots {
		args = append(args, slot)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: chunks by slots: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]Chunk, len(slots))
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Slot, &c.DocumentID, &c.OwnerID, &c.Filename, &c.Index, &c.Text, &c.StartChar, &c.EndChar); err != nil {
			return nil, fmt.Errorf("store: chunks scan: %w", err)
		}
		out[c.Slot] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: chunks rows: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
