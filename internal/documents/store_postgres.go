package documents

import (
	"context"
	"database/sql"
	"fmt"

	"tranchebook/pkg/platform/sentinel"
)

// PostgresStore persists documents in the ledger_documents table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, name string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT name, uri, content_hash, updated_at
		FROM ledger_documents WHERE name = $1
	`, name).Scan(&doc.Name, &doc.URI, &doc.ContentHash, &doc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Document{}, sentinel.ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %q: %w", name, err)
	}
	return doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_documents (name, uri, content_hash, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			uri = EXCLUDED.uri,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at
	`, doc.Name, doc.URI, doc.ContentHash, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set document %q: %w", doc.Name, err)
	}
	return nil
}
