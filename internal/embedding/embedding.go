// Package embedding talks to OpenAI-compatible providers: it turns chunk text
// into vectors and, optionally, turns retrieved passages into an answer.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/metrics"
)

// Defaults applied by NewOpenAI.
const (
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 96
)

// ErrResponseMismatch is returned when the provider answers with a different
// number of vectors than inputs, or with indices that do not line up.
var ErrResponseMismatch = errors.New("embedding response mismatch")

// Embedder converts texts to vectors. The result is order-preserving and has
// exactly one vector per input.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// modelDimensions lists models that accept a dimensions override.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Config configures the OpenAI embedder.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	BatchSize  int
	Dimensions int
}

// OpenAI embeds through the /embeddings endpoint of any OpenAI-compatible API.
type OpenAI struct {
	client     *openai.Client
	model      string
	batchSize  int
	dimensions int
	logger     *zap.Logger
}

// NewOpenAI builds an embedder. An empty BaseURL targets api.openai.com.
func NewOpenAI(cfg Config, logger *zap.Logger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

// EmbedTexts embeds texts in batches, preserving input order.
func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))
		vectors, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (o *OpenAI) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(o.model),
	}
	if _, ok := modelDimensions[o.model]; ok && o.dimensions > 0 {
		req.Dimensions = o.dimensions
	}

	start := time.Now()
	resp, err := o.client.CreateEmbeddings(ctx, req)
	metrics.ObserveEmbedding(err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrResponseMismatch, len(resp.Data), len(batch))
	}

	vectors := make([][]float32, len(batch))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(batch) || vectors[item.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected index %d", ErrResponseMismatch, item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrResponseMismatch, item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	o.logger.Debug("embedded batch",
		zap.Int("inputs", len(batch)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
	)
	return vectors, nil
}
