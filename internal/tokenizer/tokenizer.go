// Package tokenizer counts tokens for chunk budgeting.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"go.uber.org/zap"
)

// DefaultEncoding is used when the embedding model has no registered encoding.
const DefaultEncoding = "cl100k_base"

var loaderOnce sync.Once

// Counter reports how many tokens a text costs. Implementations never fail.
type Counter interface {
	Count(text string) int
}

// WordCounter approximates tokens by whitespace-separated words, never
// reporting fewer than one.
type WordCounter struct{}

// Count implements Counter.
func (WordCounter) Count(text string) int {
	return max(1, len(strings.Fields(text)))
}

// BPECounter counts tokens with a tiktoken byte-pair encoding.
type BPECounter struct {
	enc *tiktoken.Tiktoken
}

// NewBPECounter loads the encoding registered for model, falling back to
// DefaultEncoding for unknown models. Ranks come from the tables embedded in
// the binary, never from the network.
func NewBPECounter(model string) (*BPECounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("load %s encoding: %w", DefaultEncoding, err)
		}
	}
	return &BPECounter{enc: enc}, nil
}

// Count implements Counter.
func (c *BPECounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// New returns a BPE counter for model. A load failure is returned rather than
// swapped for word counting, so chunk boundaries never depend on the host.
func New(model string, logger *zap.Logger) (Counter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, err := NewBPECounter(model)
	if err != nil {
		return nil, err
	}
	logger.Debug("bpe tokenizer loaded", zap.String("model", model))
	return counter, nil
}
