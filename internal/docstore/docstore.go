// Package docstore is the Memory Store: versioned free-text documents keyed by
// owner and UUID (founder profile, values, mind, directive and reports).
// Updates archive the previous content before overwriting.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"submind/internal/logging"
	"submind/internal/types"
)

// Document kinds.
const (
	KindMemory = "memory"
	KindReport = "report"
)

// Default contents for a fresh agent's documents.
const (
	DefaultFounder   = "You don't know anything about the founder yet"
	DefaultValues    = "You don't know anything about the founder's values yet"
	DefaultMind      = "You don't know anything about the founder's mind yet"
	DefaultDirective = "No directive has been written for this submind yet"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		uuid TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'memory',
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL REFERENCES documents(uuid),
		content TEXT NOT NULL,
		archived_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_document_history_uuid ON document_history(uuid)`,
}

// DocStore implements types.DocumentStore on a pure-Go sqlite database.
type DocStore struct {
	db   *sql.DB
	path string
}

var _ types.DocumentStore = (*DocStore)(nil)

// Open opens (or creates) the document database. ":memory:" is private to the handle.
func Open(path string) (*DocStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA busy_timeout=5000", "PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(p); err != nil {
			logging.DocstoreDebug("Pragma failed (%s): %v", p, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create document schema: %w", err)
		}
	}
	logging.Docstore("Document store opened: %s", path)
	return &DocStore{db: db, path: path}, nil
}

// Close closes the database.
func (d *DocStore) Close() error {
	return d.db.Close()
}

// GetOrCreate returns the owner's document, creating it with defaultContent
// when absent. An empty docID allocates a fresh UUID.
func (d *DocStore) GetOrCreate(ctx context.Context, ownerID, defaultContent, docID string) (*types.Document, error) {
	if docID != "" {
		doc, err := d.Get(ctx, docID, ownerID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	} else {
		docID = uuid.NewString()
	}
	return d.insert(ctx, ownerID, defaultContent, docID, KindMemory)
}

// CreateReport stores content as a new report document.
func (d *DocStore) CreateReport(ctx context.Context, ownerID, content string) (*types.Document, error) {
	return d.insert(ctx, ownerID, content, uuid.NewString(), KindReport)
}

func (d *DocStore) insert(ctx context.Context, ownerID, content, docID, kind string) (*types.Document, error) {
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx, `INSERT INTO documents (uuid, owner_id, kind, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, docID, ownerID, kind, content, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create document %s: %w", docID, err)
	}
	logging.DocstoreDebug("Created %s document %s for owner %s", kind, docID, ownerID)
	return &types.Document{UUID: docID, OwnerID: ownerID, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns the document, or nil, nil when the owner has no such document.
func (d *DocStore) Get(ctx context.Context, docID, ownerID string) (*types.Document, error) {
	var doc types.Document
	var created, updated int64
	err := d.db.QueryRowContext(ctx, `SELECT uuid, owner_id, content, created_at, updated_at
		FROM documents WHERE uuid = ? AND owner_id = ?`, docID, ownerID).
		Scan(&doc.UUID, &doc.OwnerID, &doc.Content, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	doc.CreatedAt = time.UnixMilli(created).UTC()
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return &doc, nil
}

// Update archives the current content and replaces it.
func (d *DocStore) Update(ctx context.Context, docID, content string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document update: %w", err)
	}
	defer tx.Rollback()

	var previous string
	err = tx.QueryRowContext(ctx, "SELECT content FROM documents WHERE uuid = ?", docID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", docID, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read document %s: %w", docID, err)
	}

	now := time.Now().UTC().UnixMilli()
	if _, err := tx.ExecContext(ctx, "INSERT INTO document_history (uuid, content, archived_at) VALUES (?, ?, ?)",
		docID, previous, now); err != nil {
		return fmt.Errorf("archive document %s: %w", docID, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE documents SET content = ?, updated_at = ? WHERE uuid = ?",
		content, now, docID); err != nil {
		return fmt.Errorf("update document %s: %w", docID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document %s: %w", docID, err)
	}
	logging.DocstoreDebug("Updated document %s (%d -> %d bytes)", docID, len(previous), len(content))
	return nil
}

// History returns the archived versions of a document, oldest first.
func (d *DocStore) History(ctx context.Context, docID string) ([]types.DocumentVersion, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT uuid, content, archived_at FROM document_history
		WHERE uuid = ? ORDER BY id`, docID)
	if err != nil {
		return nil, fmt.Errorf("query document history: %w", err)
	}
	defer rows.Close()

	var out []types.DocumentVersion
	for rows.Next() {
		var v types.DocumentVersion
		var archived int64
		if err := rows.Scan(&v.UUID, &v.Content, &archived); err != nil {
			return nil, err
		}
		v.ArchivedAt = time.UnixMilli(archived).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// Reports returns the owner's report documents, newest first.
func (d *DocStore) Reports(ctx context.Context, ownerID string) ([]types.Document, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT uuid, owner_id, content, created_at, updated_at
		FROM documents WHERE owner_id = ? AND kind = ? ORDER BY created_at DESC, uuid`, ownerID, KindReport)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []types.Document
	for rows.Next() {
		var doc types.Document
		var created, updated int64
		if err := rows.Scan(&doc.UUID, &doc.OwnerID, &doc.Content, &created, &updated); err != nil {
			return nil, err
		}
		doc.CreatedAt = time.UnixMilli(created).UTC()
		doc.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, doc)
	}
	return out, rows.Err()
}
