package storage

import (
	"context"
	"fmt"

	"github.com/tailorjd/tailorjd-be/internal/domain"
)

// CreateCollection persists a new document collection.
func (s *Storage) CreateCollection(ctx context.Context, col *domain.DocCollection) error {
	query := `
		INSERT INTO doc_collections (
			id, collection_name, user_resume, jd, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		col.ID,
		col.Name,
		col.UserResume,
		col.JD,
		col.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create doc collection: %w", err)
	}

	return nil
}

// CreateDocument persists one document. Documents are append-only.
func (s *Storage) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (
			id, user_id, doc_type, content, collection_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.DocType,
		doc.Content,
		doc.CollectionID,
		doc.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// ListCollectionsByUser returns every collection containing at least one of
// the user's documents, newest first, with the documents attached.
func (s *Storage) ListCollectionsByUser(ctx context.Context, userID string) ([]domain.CollectionWithDocs, error) {
	var collections []domain.DocCollection
	collectionQuery := `
		SELECT id, collection_name, user_resume, jd, created_at
		FROM doc_collections
		WHERE id IN (
			SELECT DISTINCT collection_id FROM documents WHERE user_id = $1
		)
		ORDER BY created_at DESC
	`

	if err := s.db.SelectContext(ctx, &collections, collectionQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	if len(collections) == 0 {
		return []domain.CollectionWithDocs{}, nil
	}

	var docs []domain.Document
	docQuery := `
		SELECT id, user_id, doc_type, content, collection_id, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	if err := s.db.SelectContext(ctx, &docs, docQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	byCollection := make(map[string][]domain.Document, len(collections))
	for _, doc := range docs {
		byCollection[doc.CollectionID] = append(byCollection[doc.CollectionID], doc)
	}

	out := make([]domain.CollectionWithDocs, 0, len(collections))
	for _, col := range collections {
		out = append(out, domain.CollectionWithDocs{
			DocCollection: col,
			Docs:          byCollection[col.ID],
		})
	}

	return out, nil
}
