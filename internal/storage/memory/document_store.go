package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/guidecrawler/internal/storage"
)

// DocumentStore keeps documents and chunks in process memory. Search is a
// linear cosine scan, fine for development and tests.
type DocumentStore struct {
	mu     sync.RWMutex
	nextID int64
	byURL  map[string]storage.Document
	chunks map[int64][]storage.ChunkRecord
	now    func() time.Time
}

// NewDocumentStore constructs an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		byURL:  make(map[string]storage.Document),
		chunks: make(map[int64][]storage.ChunkRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindDocumentByURL implements storage.DocumentStore.
func (s *DocumentStore) FindDocumentByURL(_ context.Context, url string) (storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byURL[url]
	if !ok {
		return storage.Document{}, fmt.Errorf("document %q: %w", url, storage.ErrNotFound)
	}
	return doc, nil
}

// UpsertDocument implements storage.DocumentStore. ChunkCount always mirrors
// the stored chunk set, so the caller's value is ignored.
func (s *DocumentStore) UpsertDocument(_ context.Context, doc storage.Document) (storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ChunkCount = 0
	if existing, ok := s.byURL[doc.URL]; ok {
		doc.ChunkCount = existing.ChunkCount
	}
	return s.upsertLocked(doc), nil
}

// ReplaceChunks implements storage.DocumentStore.
func (s *DocumentStore) ReplaceChunks(_ context.Context, documentID int64, chunks []storage.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.urlForIDLocked(documentID)
	if !ok {
		return fmt.Errorf("document %d: %w", documentID, storage.ErrNotFound)
	}
	s.chunks[documentID] = cloneChunks(chunks)
	doc := s.byURL[url]
	doc.ChunkCount = len(chunks)
	s.byURL[url] = doc
	return nil
}

// ReplaceDocument implements storage.DocumentStore. Both writes happen under
// one lock so readers never observe a half-replaced set.
func (s *DocumentStore) ReplaceDocument(
	_ context.Context,
	doc storage.Document,
	chunks []storage.ChunkRecord,
) (storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ChunkCount = len(chunks)
	stored := s.upsertLocked(doc)
	s.chunks[stored.ID] = cloneChunks(chunks)
	return stored, nil
}

// DeleteDocumentsByDomain implements storage.DocumentStore.
func (s *DocumentStore) DeleteDocumentsByDomain(_ context.Context, domain string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for url, doc := range s.byURL {
		if doc.Domain != domain {
			continue
		}
		delete(s.chunks, doc.ID)
		delete(s.byURL, url)
		deleted++
	}
	return deleted, nil
}

// SearchChunks implements storage.DocumentStore.
func (s *DocumentStore) SearchChunks(_ context.Context, vector []float32, limit int) ([]storage.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []storage.SearchResult
	for _, doc := range s.byURL {
		for _, chunk := range s.chunks[doc.ID] {
			results = append(results, storage.SearchResult{
				DocumentID:    doc.ID,
				DocumentURL:   doc.URL,
				DocumentTitle: doc.Title,
				Chunk:         chunk,
				Distance:      cosineDistance(vector, chunk.Embedding),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Chunk.Index < b.Chunk.Index
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Chunks returns a copy of the stored chunk set for a document.
func (s *DocumentStore) Chunks(documentID int64) []storage.ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChunks(s.chunks[documentID])
}

func (s *DocumentStore) upsertLocked(doc storage.Document) storage.Document {
	if existing, ok := s.byURL[doc.URL]; ok {
		doc.ID = existing.ID
	} else {
		s.nextID++
		doc.ID = s.nextID
	}
	doc.UpdatedAt = s.now()
	s.byURL[doc.URL] = doc
	return doc
}

func (s *DocumentStore) urlForIDLocked(id int64) (string, bool) {
	for url, doc := range s.byURL {
		if doc.ID == id {
			return url, true
		}
	}
	return "", false
}

func cloneChunks(in []storage.ChunkRecord) []storage.ChunkRecord {
	if in == nil {
		return nil
	}
	out := make([]storage.ChunkRecord, len(in))
	copy(out, in)
	return out
}

// cosineDistance returns 1 - cos(a, b); mismatched or zero vectors are
// maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
