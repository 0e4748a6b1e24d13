package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/chunker"
	"github.com/JakeFAU/guidecrawler/internal/storage"
)

const (
	selectDocumentSQL = `SELECT id, url, domain, title, content, content_hash, chunk_count, updated_at
FROM documents WHERE url = $1`

	upsertDocumentSQL = `INSERT INTO documents (url, domain, title, content, content_hash, chunk_count, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, now())
ON CONFLICT (url) DO UPDATE SET
	domain = EXCLUDED.domain,
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	content_hash = EXCLUDED.content_hash,
	updated_at = EXCLUDED.updated_at
RETURNING id, chunk_count, updated_at`

	updateChunkCountSQL = `UPDATE documents SET chunk_count = $2 WHERE id = $1`

	deleteChunksSQL = `DELETE FROM chunks WHERE document_id = $1`

	insertChunkSQL = `INSERT INTO chunks (document_id, chunk_index, text, embedding, metadata)
VALUES ($1, $2, $3, $4, $5)`

	deleteDomainSQL = `DELETE FROM documents WHERE domain = $1`

	searchChunksSQL = `SELECT d.id, d.url, d.title, c.chunk_index, c.text, c.metadata, c.embedding <=> $1 AS distance
FROM chunks c
JOIN documents d ON d.id = c.document_id
ORDER BY c.embedding <=> $1
LIMIT $2`
)

// DocumentStore implements storage.DocumentStore on Postgres with pgvector.
type DocumentStore struct {
	pool   Pool
	logger *zap.Logger
}

// NewDocumentStore wraps an existing pool (a *pgxpool.Pool or a pgxmock pool).
func NewDocumentStore(pool Pool, logger *zap.Logger) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindDocumentByURL implements storage.DocumentStore.
func (s *DocumentStore) FindDocumentByURL(ctx context.Context, url string) (storage.Document, error) {
	var doc storage.Document
	err := s.pool.QueryRow(ctx, selectDocumentSQL, url).Scan(
		&doc.ID,
		&doc.URL,
		&doc.Domain,
		&doc.Title,
		&doc.Content,
		&doc.ContentHash,
		&doc.ChunkCount,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Document{}, fmt.Errorf("document %q: %w", url, storage.ErrNotFound)
		}
		return storage.Document{}, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// UpsertDocument implements storage.DocumentStore. chunk_count is owned by
// ReplaceChunks; an update keeps the stored value and an insert starts at 0.
func (s *DocumentStore) UpsertDocument(ctx context.Context, doc storage.Document) (storage.Document, error) {
	return upsertDocument(ctx, s.pool, doc)
}

// ReplaceChunks implements storage.DocumentStore.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, documentID int64, chunks []storage.ChunkRecord) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return replaceChunks(ctx, tx, documentID, chunks)
	})
}

// ReplaceDocument implements storage.DocumentStore in a single transaction.
func (s *DocumentStore) ReplaceDocument(
	ctx context.Context,
	doc storage.Document,
	chunks []storage.ChunkRecord,
) (storage.Document, error) {
	var stored storage.Document
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		stored, err = upsertDocument(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := replaceChunks(ctx, tx, stored.ID, chunks); err != nil {
			return err
		}
		stored.ChunkCount = len(chunks)
		return nil
	})
	if err != nil {
		return storage.Document{}, err
	}
	return stored, nil
}

// DeleteDocumentsByDomain implements storage.DocumentStore. Chunks go with
// their documents through ON DELETE CASCADE.
func (s *DocumentStore) DeleteDocumentsByDomain(ctx context.Context, domain string) (int, error) {
	tag, err := s.pool.Exec(ctx, deleteDomainSQL, domain)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SearchChunks implements storage.DocumentStore using the cosine distance
// operator.
func (s *DocumentStore) SearchChunks(ctx context.Context, vector []float32, limit int) ([]storage.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, searchChunksSQL, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []storage.SearchResult
	for rows.Next() {
		var (
			res      storage.SearchResult
			metadata []byte
		)
		if err := rows.Scan(
			&res.DocumentID,
			&res.DocumentURL,
			&res.DocumentTitle,
			&res.Chunk.Index,
			&res.Chunk.Text,
			&metadata,
			&res.Distance,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(metadata, &res.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return results, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertDocument(ctx context.Context, q querier, doc storage.Document) (storage.Document, error) {
	err := q.QueryRow(ctx, upsertDocumentSQL,
		doc.URL,
		doc.Domain,
		doc.Title,
		doc.Content,
		doc.ContentHash,
	).Scan(&doc.ID, &doc.ChunkCount, &doc.UpdatedAt)
	if err != nil {
		return storage.Document{}, fmt.Errorf("upsert document: %w", err)
	}
	return doc, nil
}

func replaceChunks(ctx context.Context, tx pgx.Tx, documentID int64, chunks []storage.ChunkRecord) error {
	tag, err := tx.Exec(ctx, updateChunkCountSQL, documentID, len(chunks))
	if err != nil {
		return fmt.Errorf("update chunk count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", documentID, storage.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, deleteChunksSQL, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	for _, chunk := range chunks {
		metadata, err := encodeMetadata(chunk.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertChunkSQL,
			documentID,
			chunk.Index,
			chunk.Text,
			pgvector.NewVector(chunk.Embedding),
			metadata,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}
	return nil
}

func encodeMetadata(md chunker.Metadata) ([]byte, error) {
	if md.Breadcrumbs == nil {
		md.Breadcrumbs = []string{}
	}
	out, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode chunk metadata: %w", err)
	}
	return out, nil
}

func (s *DocumentStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
