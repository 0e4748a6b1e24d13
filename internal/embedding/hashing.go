package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hashing is an offline embedder that projects lowercase word features into a
// fixed number of buckets. Vectors are L2-normalised so cosine distance works.
// It lets the service run without a provider.
type Hashing struct {
	dimensions int
}

// NewHashing returns a Hashing embedder with the given vector size.
func NewHashing(dimensions int) *Hashing {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Hashing{dimensions: dimensions}
}

// EmbedTexts implements Embedder.
func (h *Hashing) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embed texts: %w", err)
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	vec := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(word))
		sum := f.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%h.dimensions] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
