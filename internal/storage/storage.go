// Package storage defines the document and chunk persistence contract shared
// by the in-memory and Postgres backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/guidecrawler/internal/chunker"
)

// ErrNotFound is returned when a document or job does not exist.
var ErrNotFound = errors.New("not found")

// Document is the stored representation of one crawled page.
type Document struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Content     string    `json:"-"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChunkRecord is a stored chunk with its embedding.
type ChunkRecord struct {
	Index     int              `json:"index"`
	Text      string           `json:"text"`
	Embedding []float32        `json:"-"`
	Metadata  chunker.Metadata `json:"metadata"`
}

// SearchResult is one nearest-neighbour hit. Distance is cosine distance, so
// smaller is closer.
type SearchResult struct {
	DocumentID    int64
	DocumentURL   string
	DocumentTitle string
	Chunk         ChunkRecord
	Distance      float64
}

// DocumentStore persists documents and their chunk sets.
type DocumentStore interface {
	// FindDocumentByURL returns ErrNotFound when url has never been ingested.
	FindDocumentByURL(ctx context.Context, url string) (Document, error)
	// UpsertDocument creates or updates the row keyed by doc.URL. ChunkCount is
	// not taken from doc; it always reflects the stored chunk set.
	UpsertDocument(ctx context.Context, doc Document) (Document, error)
	// ReplaceChunks swaps the whole chunk set of a document and sets its
	// ChunkCount.
	ReplaceChunks(ctx context.Context, documentID int64, chunks []ChunkRecord) error
	// ReplaceDocument upserts doc and replaces its chunks atomically.
	ReplaceDocument(ctx context.Context, doc Document, chunks []ChunkRecord) (Document, error)
	// DeleteDocumentsByDomain removes every document whose domain matches,
	// cascading to chunks, and reports how many were removed.
	DeleteDocumentsByDomain(ctx context.Context, domain string) (int, error)
	// SearchChunks returns up to limit chunks nearest to vector.
	SearchChunks(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
}
