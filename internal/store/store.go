// Package store provides SQLite-backed persistence for books, their chunks,
// chat threads, and opaque binary artifacts (e.g. rendered translation
// output). Vector indexes are never persisted here; they are rebuilt from the
// chunk lists on demand.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/readai-labs/readai-go/internal/book"
)

// ErrNotFound is returned when a requested book, thread, or artifact does not exist.
var ErrNotFound = errors.New("store: not found")

// BookStore persists books and their chunks. Implementations must be safe for
// concurrent use.
type BookStore interface {
	// SaveBook persists a book and all of its chunks, replacing any previous
	// version with the same ID.
	SaveBook(ctx context.Context, b *book.Book) error
	// GetBook loads a book with its full chunk list. Returns ErrNotFound if
	// the book does not exist.
	GetBook(ctx context.Context, id string) (*book.Book, error)
	// ListBooks returns all books without their chunk lists, newest first.
	ListBooks(ctx context.Context) ([]*book.Book, error)
	// DeleteBook removes a book, its chunks, and best-effort its chat thread.
	DeleteBook(ctx context.Context, id string) error
}

// ThreadStore persists per-book chat history.
type ThreadStore interface {
	// AppendMessage appends one message to the book's thread.
	AppendMessage(ctx context.Context, bookID string, msg book.ChatMessage) error
	// Thread returns the full message history for a book, oldest first.
	Thread(ctx context.Context, bookID string) ([]book.ChatMessage, error)
}

// ArtifactStore persists opaque binary blobs keyed by book and name.
type ArtifactStore interface {
	// PutArtifact stores or replaces a named blob for a book.
	PutArtifact(ctx context.Context, bookID, name string, data []byte) error
	// GetArtifact loads a named blob. Returns ErrNotFound when absent.
	GetArtifact(ctx context.Context, bookID, name string) ([]byte, error)
}

// SQLiteStore implements BookStore, ThreadStore, and ArtifactStore on a local
// SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default database path, ~/.readai/readai.db,
// creating the directory if needed. READAI_DB overrides it entirely.
func DefaultDBPath() (string, error) {
	if p := os.Getenv("READAI_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".readai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "readai.db"), nil
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
CREATE TABLE IF NOT EXISTS books (
    id          TEXT    PRIMARY KEY,
    title       TEXT    NOT NULL,
    metadata    TEXT    NOT NULL DEFAULT '{}',  -- JSON object
    created_at  INTEGER NOT NULL                -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT    PRIMARY KEY,
    book_id     TEXT    NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,               -- position within the book
    page        INTEGER NOT NULL,
    text        TEXT    NOT NULL,
    embedding   TEXT,                           -- JSON array of floats, nullable
    metadata    TEXT    NOT NULL DEFAULT '{}'   -- JSON object
);
CREATE INDEX IF NOT EXISTS idx_chunks_book_seq ON chunks (book_id, seq);
CREATE TABLE IF NOT EXISTS messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    book_id     TEXT    NOT NULL,
    role        TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content     TEXT    NOT NULL,
    pages       TEXT    NOT NULL DEFAULT '[]',  -- JSON array of ints
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_book_created ON messages (book_id, created_at);
CREATE TABLE IF NOT EXISTS artifacts (
    book_id     TEXT    NOT NULL,
    name        TEXT    NOT NULL,
    data        BLOB    NOT NULL,
    created_at  INTEGER NOT NULL,
    PRIMARY KEY (book_id, name)
);
PRAGMA foreign_keys = ON;
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveBook persists a book and all of its chunks inside one transaction,
// replacing any previous version with the same ID.
func (s *SQLiteStore) SaveBook(ctx context.Context, b *book.Book) error {
	meta, err := json.Marshal(orEmptyMap(b.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshal book metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	const upsertBook = `
INSERT INTO books (id, title, metadata, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title, metadata = excluded.metadata`
	if _, err := tx.ExecContext(ctx, upsertBook, b.ID, b.Title, string(meta), createdAt.Unix()); err != nil {
		return fmt.Errorf("store: save book: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE book_id = ?`, b.ID); err != nil {
		return fmt.Errorf("store: clear chunks: %w", err)
	}

	const insertChunk = `
INSERT INTO chunks (id, book_id, seq, page, text, embedding, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, c := range b.Chunks {
		var embJSON sql.NullString
		if len(c.Embedding) > 0 {
			raw, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("store: marshal chunk embedding: %w", err)
			}
			embJSON = sql.NullString{String: string(raw), Valid: true}
		}
		chunkMeta, err := json.Marshal(orEmptyMap(c.Metadata))
		if err != nil {
			return fmt.Errorf("store: marshal chunk metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertChunk, c.ID, b.ID, i, c.Page, c.Text, embJSON, string(chunkMeta)); err != nil {
			return fmt.Errorf("store: save chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit save: %w", err)
	}
	return nil
}

// GetBook loads a book with its full chunk list, ordered by position.
func (s *SQLiteStore) GetBook(ctx context.Context, id string) (*book.Book, error) {
	const bookQ = `SELECT title, metadata, created_at FROM books WHERE id = ?`
	var (
		title string
		meta  string
		ts    int64
	)
	err := s.db.QueryRowContext(ctx, bookQ, id).Scan(&title, &meta, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: book %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get book: %w", err)
	}

	b := &book.Book{
		ID:        id,
		Title:     title,
		CreatedAt: time.Unix(ts, 0),
	}
	if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal book metadata: %w", err)
	}

	const chunkQ = `
SELECT id, page, text, embedding, metadata FROM chunks WHERE book_id = ? ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, chunkQ, id)
	if err != nil {
		return nil, fmt.Errorf("store: get chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := book.Chunk{BookID: id}
		var embJSON sql.NullString
		var chunkMeta string
		if err := rows.Scan(&c.ID, &c.Page, &c.Text, &embJSON, &chunkMeta); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		if embJSON.Valid {
			if err := json.Unmarshal([]byte(embJSON.String), &c.Embedding); err != nil {
				return nil, fmt.Errorf("store: unmarshal chunk embedding: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(chunkMeta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal chunk metadata: %w", err)
		}
		b.Chunks = append(b.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: chunk rows: %w", err)
	}
	return b, nil
}

// ListBooks returns all books without their chunk lists, newest first.
func (s *SQLiteStore) ListBooks(ctx context.Context) ([]*book.Book, error) {
	const q = `SELECT id, title, metadata, created_at FROM books ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list books: %w", err)
	}
	defer rows.Close()

	var books []*book.Book
	for rows.Next() {
		b := &book.Book{}
		var meta string
		var ts int64
		if err := rows.Scan(&b.ID, &b.Title, &meta, &ts); err != nil {
			return nil, fmt.Errorf("store: scan book: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal book metadata: %w", err)
		}
		b.CreatedAt = time.Unix(ts, 0)
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: book rows: %w", err)
	}
	return books, nil
}

// DeleteBook removes a book, its chunks, its chat thread, and its artifacts.
// Thread and artifact deletion is best-effort; the book row going away is the
// authoritative outcome.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete book: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: book %s: %w", id, ErrNotFound)
	}

	// Cascade covers chunks; messages and artifacts have no FK so clean them here.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM chunks WHERE book_id = ?`, id)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM messages WHERE book_id = ?`, id)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE book_id = ?`, id)
	return nil
}

// AppendMessage appends one message to the book's chat thread.
func (s *SQLiteStore) AppendMessage(ctx context.Context, bookID string, msg book.ChatMessage) error {
	pages, err := json.Marshal(orEmptySlice(msg.Pages))
	if err != nil {
		return fmt.Errorf("store: marshal message pages: %w", err)
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	const q = `INSERT INTO messages (book_id, role, content, pages, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, bookID, string(msg.Role), msg.Content, string(pages), createdAt.Unix()); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// Thread returns the full message history for a book, oldest first.
func (s *SQLiteStore) Thread(ctx context.Context, bookID string) ([]book.ChatMessage, error) {
	const q = `
SELECT role, content, pages, created_at FROM messages
WHERE  book_id = ?
ORDER  BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, fmt.Errorf("store: thread: %w", err)
	}
	defer rows.Close()

	var msgs []book.ChatMessage
	for rows.Next() {
		var m book.ChatMessage
		var role, pages string
		var ts int64
		if err := rows.Scan(&role, &m.Content, &pages, &ts); err != nil {
			return nil, fmt.Errorf("store: thread scan: %w", err)
		}
		if err := json.Unmarshal([]byte(pages), &m.Pages); err != nil {
			return nil, fmt.Errorf("store: unmarshal message pages: %w", err)
		}
		m.Role = book.Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: thread rows: %w", err)
	}
	return msgs, nil
}

// PutArtifact stores or replaces a named blob for a book.
func (s *SQLiteStore) PutArtifact(ctx context.Context, bookID, name string, data []byte) error {
	const q = `
INSERT INTO artifacts (book_id, name, data, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(book_id, name) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, q, bookID, name, data, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put artifact: %w", err)
	}
	return nil
}

// GetArtifact loads a named blob for a book.
func (s *SQLiteStore) GetArtifact(ctx context.Context, bookID, name string) ([]byte, error) {
	const q = `SELECT data FROM artifacts WHERE book_id = ? AND name = ?`
	var data []byte
	err := s.db.QueryRowContext(ctx, q, bookID, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: artifact %s/%s: %w", bookID, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get artifact: %w", err)
	}
	return data, nil
}

// Ping verifies the database connection is alive. Used by readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
