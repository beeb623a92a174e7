package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mooc-session-miner/internal/models"
)

const documentSchema = `CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    body JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (collection, doc_id)
);
CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING GIN (body jsonb_path_ops)`

// DocumentRepository stores session records as JSONB documents grouped by collection.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// EnsureSchema creates the documents table when missing.
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, documentSchema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

// Insert appends documents to a collection in one transaction. Documents whose
// id is already stored are skipped. It returns the number of new documents.
func (r *DocumentRepository) Insert(ctx context.Context, collection string, docs []models.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s insert tx: %w", collection, err)
	}

	const query = `INSERT INTO documents (collection, doc_id, body, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, doc_id) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for _, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("marshal %s document %s: %w", collection, doc.DocumentID(), err)
		}
		res, err := tx.ExecContext(ctx, query, collection, doc.DocumentID(), body, now)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert %s document %s: %w", collection, doc.DocumentID(), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s insert: %w", collection, err)
	}
	return inserted, nil
}

// Query returns the documents of a collection containing filter, ordered by id.
// A limit of zero returns every match.
func (r *DocumentRepository) Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]json.RawMessage, error) {
	if filter == nil {
		filter = map[string]interface{}{}
	}
	rawFilter, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal %s filter: %w", collection, err)
	}

	query := `SELECT body FROM documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY doc_id`
	args := []interface{}{collection, rawFilter}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		out = append(out, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// Count returns the number of documents stored in a collection.
func (r *DocumentRepository) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents WHERE collection = $1`, collection); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}
