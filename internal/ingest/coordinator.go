// Package ingest decides whether a crawled page needs re-embedding and, when
// it does, atomically replaces the stored document and its chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/chunker"
	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/embedding"
	"github.com/JakeFAU/guidecrawler/internal/extract"
	"github.com/JakeFAU/guidecrawler/internal/metrics"
	"github.com/JakeFAU/guidecrawler/internal/storage"
)

var (
	// ErrEmbedding wraps provider failures. Nothing is written when it occurs.
	ErrEmbedding = errors.New("embedding failed")
	// ErrNoPage means a single-URL ingest produced no HTML page.
	ErrNoPage = errors.New("page could not be crawled")
)

// Result reports what ingesting one page did.
type Result struct {
	URL     string `json:"url"`
	Created bool   `json:"created"`
	Updated bool   `json:"updated"`
	Chunks  int    `json:"chunks"`
}

// Changed reports whether storage was written.
func (r Result) Changed() bool {
	return r.Created || r.Updated
}

// Coordinator runs the per-page ingestion pipeline.
type Coordinator struct {
	store    storage.DocumentStore
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	hasher   crawler.Hasher
	engine   *crawler.Engine
	locks    *keyedMutex
	logger   *zap.Logger
}

// New wires a Coordinator. engine is only needed for IngestURL and Rebuild.
func New(
	store storage.DocumentStore,
	chunk *chunker.Chunker,
	embedder embedding.Embedder,
	hasher crawler.Hasher,
	engine *crawler.Engine,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:    store,
		chunker:  chunk,
		embedder: embedder,
		hasher:   hasher,
		engine:   engine,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// Ingest stores page if its content hash differs from the stored document.
// Concurrent calls for the same URL are serialised.
func (c *Coordinator) Ingest(ctx context.Context, page extract.PageContent) (Result, error) {
	unlock := c.locks.Lock(page.URL)
	defer unlock()

	payload, err := BuildPayload(page, c.hasher)
	if err != nil {
		metrics.ObserveIngest(metrics.IngestFailed, 0)
		return Result{URL: page.URL}, fmt.Errorf("build payload: %w", err)
	}

	existing, err := c.store.FindDocumentByURL(ctx, payload.URL)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		metrics.ObserveIngest(metrics.IngestFailed, 0)
		return Result{URL: page.URL}, fmt.Errorf("find document: %w", err)
	}
	if found && existing.ContentHash == payload.ContentHash {
		metrics.ObserveIngest(metrics.IngestUnchanged, 0)
		c.logger.Debug("document unchanged", zap.String("url", payload.URL))
		return Result{URL: payload.URL, Chunks: existing.ChunkCount}, nil
	}

	records, err := c.buildRecords(ctx, page)
	if err != nil {
		metrics.ObserveIngest(metrics.IngestFailed, 0)
		return Result{URL: page.URL}, err
	}

	doc := storage.Document{
		URL:         payload.URL,
		Domain:      payload.Domain,
		Title:       payload.Title,
		Content:     payload.Content,
		ContentHash: payload.ContentHash,
	}
	if _, err := c.store.ReplaceDocument(ctx, doc, records); err != nil {
		metrics.ObserveIngest(metrics.IngestFailed, 0)
		return Result{URL: page.URL}, fmt.Errorf("replace document: %w", err)
	}

	outcome := metrics.IngestCreated
	if found {
		outcome = metrics.IngestUpdated
	}
	metrics.ObserveIngest(outcome, len(records))
	c.logger.Info("document stored",
		zap.String("url", payload.URL),
		zap.String("outcome", outcome),
		zap.Int("chunks", len(records)),
	)
	return Result{URL: payload.URL, Created: !found, Updated: found, Chunks: len(records)}, nil
}

// buildRecords chunks the page and pairs each chunk with its embedding by
// position.
func (c *Coordinator) buildRecords(ctx context.Context, page extract.PageContent) ([]storage.ChunkRecord, error) {
	chunks, err := c.chunker.Chunk(page)
	if err != nil {
		return nil, fmt.Errorf("chunk page: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = c.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbedding, len(vectors), len(chunks))
	}

	records := make([]storage.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = storage.ChunkRecord{
			Index:     ch.Index,
			Text:      ch.Text,
			Embedding: vectors[i],
			Metadata:  ch.Metadata,
		}
	}
	return records, nil
}

// IngestURL crawls exactly one page and ingests it.
func (c *Coordinator) IngestURL(ctx context.Context, rawURL string) (Result, error) {
	if c.engine == nil {
		return Result{}, errors.New("ingest: no crawl engine configured")
	}
	crawl := c.engine.Crawl(rawURL, 1)
	page, ok, err := crawl.Next(ctx)
	if err != nil {
		return Result{URL: rawURL}, fmt.Errorf("crawl %s: %w", rawURL, err)
	}
	if !ok {
		return Result{URL: rawURL}, fmt.Errorf("%s: %w", rawURL, ErrNoPage)
	}
	return c.Ingest(ctx, page)
}
