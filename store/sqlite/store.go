// Package sqlite provides the durable local store: sync-queue items that
// must survive restarts and the per-collection document replica served by
// the secondary read path.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/accesstrails/trailsync/syncqueue"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_items (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    payload BLOB NOT NULL,
    enqueued_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_items_category ON sync_items(category);

CREATE TABLE IF NOT EXISTS replica_docs (
    collection TEXT NOT NULL,
    position INTEGER NOT NULL,
    doc BLOB NOT NULL,
    replicated_at INTEGER NOT NULL,
    PRIMARY KEY (collection, position)
);
`

// Store is a SQLite-backed persistent store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and ensures the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append durably persists one pending sync item. The insert has committed
// by the time this returns.
func (s *Store) Append(ctx context.Context, item syncqueue.Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_items (id, category, payload, enqueued_at) VALUES (?, ?, ?, ?)`,
		item.ID, item.Category, item.Payload, item.EnqueuedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("append sync item: %w", err)
	}
	return nil
}

// Delete removes a sync item. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, category, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_items WHERE category = ? AND id = ?`, category, id)
	if err != nil {
		return fmt.Errorf("delete sync item: %w", err)
	}
	return nil
}

// Items returns the category's pending items in enqueue order. Insertion
// order is the rowid order, which stays stable across restarts.
func (s *Store) Items(ctx context.Context, category string) ([]syncqueue.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, payload, enqueued_at FROM sync_items WHERE category = ? ORDER BY rowid`,
		category)
	if err != nil {
		return nil, fmt.Errorf("query sync items: %w", err)
	}
	defer rows.Close()

	var items []syncqueue.Item
	for rows.Next() {
		var item syncqueue.Item
		var enqueuedMs int64
		if err := rows.Scan(&item.ID, &item.Category, &item.Payload, &enqueuedMs); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		item.EnqueuedAt = time.UnixMilli(enqueuedMs).UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

// Categories lists the categories that currently have pending items.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM sync_items ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Count reports pending items across all categories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync items: %w", err)
	}
	return n, nil
}

// ReadDocs returns the replicated snapshot for a collection in its
// original order.
func (s *Store) ReadDocs(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM replica_docs WHERE collection = ? ORDER BY position`, collection)
	if err != nil {
		return nil, fmt.Errorf("query replica docs: %w", err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan replica doc: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReplaceDocs swaps the collection's snapshot for docs in one transaction,
// so the secondary read path never observes a half-written snapshot.
func (s *Store) ReplaceDocs(ctx context.Context, collection string, docs [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replica swap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM replica_docs WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clear replica collection: %w", err)
	}
	now := time.Now().UTC().UnixMilli()
	for i, doc := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO replica_docs (collection, position, doc, replicated_at) VALUES (?, ?, ?, ?)`,
			collection, i, doc, now); err != nil {
			return fmt.Errorf("insert replica doc: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replica swap: %w", err)
	}
	return nil
}
