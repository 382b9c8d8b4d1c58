package models

import (
	"fmt"

	"github.com/hyperjump/vectra/pkg/metadata"
)

const (
	DefaultTopK = 10
	MaxTopK     = 1000
)

// QueryRequest is a text query against the indexed documents.
type QueryRequest struct {
	Text   string           `json:"text"`
	TopK   int              `json:"top_k,omitempty"`
	Filter *metadata.Filter `json:"filter,omitempty"`
}

// Validate rejects an empty query and clamps TopK into [1, MaxTopK].
func (q *QueryRequest) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}
