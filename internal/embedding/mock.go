package embedding

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/hyperjump/vectra/pkg/utils"
)

// Mock is a deterministic embeddings model for tests and offline use. It returns a
// fixed-dimension unit vector derived from the text hash, so the same text always gets the
// same embedding.
type Mock struct {
	dimensions int
	maxTokens  int
	calls      atomic.Int64
}

// NewMock returns a mock model producing vectors of the given dimensions.
func NewMock(dimensions int) *Mock {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Mock{dimensions: dimensions, maxTokens: DefaultOpenAIMaxTokens}
}

// MaxTokens implements Model.
func (m *Mock) MaxTokens() int { return m.maxTokens }

// Calls returns the number of CreateEmbeddings calls made so far.
func (m *Mock) Calls() int { return int(m.calls.Load()) }

// CreateEmbeddings implements Model. It always succeeds unless ctx is done.
func (m *Mock) CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	output := make([][]float64, len(inputs))
	for i, text := range inputs {
		output[i] = m.embed(text)
	}
	return &Response{Status: StatusSuccess, Output: output}, nil
}

func (m *Mock) embed(text string) []float64 {
	h := HashString(text)
	emb := make([]float64, m.dimensions)
	for i := range emb {
		emb[i] = math.Sin(float64(h*(i+1)))*0.1 + 0.01
	}
	// unit length, like real sentence-embedding models
	utils.NormalizeL2(emb)
	return emb
}
