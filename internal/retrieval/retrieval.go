// Package retrieval answers questions from the stored chunk embeddings.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/embedding"
	"github.com/JakeFAU/guidecrawler/internal/storage"
)

// Limits on ask requests.
const (
	DefaultTopK       = 5
	MaxTopK           = 20
	MinQuestionLength = 4
	PreviewLength     = 280
)

var (
	// ErrInvalidQuestion rejects questions shorter than MinQuestionLength.
	ErrInvalidQuestion = errors.New("question too short")
	// ErrInvalidTopK rejects top_k outside 1..MaxTopK.
	ErrInvalidTopK = errors.New("top_k out of range")
)

// Searcher finds chunks near a query vector.
type Searcher interface {
	SearchChunks(ctx context.Context, vector []float32, limit int) ([]storage.SearchResult, error)
}

// Config bounds top_k.
type Config struct {
	DefaultTopK int
	MaxTopK     int
}

// Answer is the response to one question.
type Answer struct {
	Question string              `json:"question"`
	Answer   string              `json:"answer"`
	Contexts []embedding.Passage `json:"contexts"`
}

// Service embeds a question, finds the nearest chunks and composes an answer.
type Service struct {
	searcher Searcher
	embedder embedding.Embedder
	answerer embedding.Answerer
	cfg      Config
	logger   *zap.Logger
}

// NewService builds a Service. answerer may be nil, in which case answers list
// the references found.
func NewService(searcher Searcher, embedder embedding.Embedder, answerer embedding.Answerer, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	cfg.DefaultTopK = min(cfg.DefaultTopK, cfg.MaxTopK)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, embedder: embedder, answerer: answerer, cfg: cfg, logger: logger}
}

// Ask answers question from the topK nearest chunks. topK 0 uses the default.
func (s *Service) Ask(ctx context.Context, question string, topK int) (Answer, error) {
	question = strings.TrimSpace(question)
	if utf8.RuneCountInString(question) < MinQuestionLength {
		return Answer{}, fmt.Errorf("%w: need at least %d characters", ErrInvalidQuestion, MinQuestionLength)
	}
	if topK == 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK < 1 || topK > s.cfg.MaxTopK {
		return Answer{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidTopK, topK, s.cfg.MaxTopK)
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return Answer{}, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}

	results, err := s.searcher.SearchChunks(ctx, vectors[0], topK)
	if err != nil {
		return Answer{}, fmt.Errorf("search chunks: %w", err)
	}

	passages := make([]embedding.Passage, 0, len(results))
	for _, res := range results {
		title := res.DocumentTitle
		if title == "" {
			title = res.Chunk.Metadata.Title
		}
		breadcrumbs := res.Chunk.Metadata.Breadcrumbs
		if breadcrumbs == nil {
			breadcrumbs = []string{}
		}
		passages = append(passages, embedding.Passage{
			URL:         res.DocumentURL,
			Title:       title,
			Breadcrumbs: breadcrumbs,
			Preview:     Preview(res.Chunk.Text, PreviewLength),
			Text:        res.Chunk.Text,
		})
	}

	return Answer{
		Question: question,
		Answer:   s.compose(ctx, question, passages),
		Contexts: passages,
	}, nil
}

func (s *Service) compose(ctx context.Context, question string, passages []embedding.Passage) string {
	if s.answerer != nil && len(passages) > 0 {
		answer, err := s.answerer.Answer(ctx, question, passages)
		if err == nil && answer != "" {
			return answer
		}
		s.logger.Warn("answerer failed, listing references instead", zap.Error(err))
	}
	return Summary(question, passages)
}

// Summary lists the references found for question, or says none were.
func Summary(question string, passages []embedding.Passage) string {
	if len(passages) == 0 {
		return fmt.Sprintf("No relevant context found for %q.", question)
	}
	lines := []string{fmt.Sprintf("Top references for %q:", question)}
	for i, p := range passages {
		title := p.Title
		if title == "" {
			title = "Untitled document"
		}
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, title, p.URL))
	}
	return strings.Join(lines, "\n")
}

// Preview collapses whitespace and truncates to limit runes, appending "..."
// when something was cut.
func Preview(text string, limit int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= limit {
		return flat
	}
	runes := []rune(flat)
	return string(runes[:limit]) + "..."
}
