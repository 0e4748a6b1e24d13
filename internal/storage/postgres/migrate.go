package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the extension, tables and indexes if they do not exist.
// dimensions fixes the width of the embedding column; 0 leaves it unsized and
// skips the ANN index.
func Migrate(ctx context.Context, pool Pool, dimensions int) error {
	vectorType := "vector"
	if dimensions > 0 {
		vectorType = fmt.Sprintf("vector(%d)", dimensions)
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS documents_domain_idx ON documents (domain)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	embedding %s NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	UNIQUE (document_id, chunk_index)
)`, vectorType),
		`CREATE TABLE IF NOT EXISTS rebuild_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	parameters JSONB NOT NULL,
	counters JSONB NOT NULL DEFAULT '{}'::jsonb
)`,
	}
	if dimensions > 0 {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)`)
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
