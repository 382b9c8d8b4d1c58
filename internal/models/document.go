// Package models defines the document catalog records and query requests used by the
// ingestion pipeline.
package models

import (
	"time"

	"github.com/hyperjump/vectra/pkg/metadata"
)

// Document is a source document recorded in the catalog. Its chunks live in the vector index.
type Document struct {
	ID        string            `json:"id"`
	URI       string            `json:"uri,omitempty"`
	DocType   string            `json:"doc_type,omitempty"`
	Text      string            `json:"text"`
	Metadata  metadata.Metadata `json:"metadata,omitempty"`
	ModTime   int64             `json:"mod_time,omitempty"`
	Size      int64             `json:"size,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DocumentChunk records where one index item sits in its document's text.
// StartPos and EndPos are inclusive byte offsets.
type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	StartPos   int       `json:"start_pos"`
	EndPos     int       `json:"end_pos"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentInput is the input for indexing a document. ModTime and Size are set for
// files so unchanged files can be skipped.
type DocumentInput struct {
	ID       string            `json:"id,omitempty"`
	URI      string            `json:"uri,omitempty"`
	DocType  string            `json:"doc_type,omitempty"`
	Text     string            `json:"text"`
	Metadata metadata.Metadata `json:"metadata,omitempty"`
	ModTime  int64             `json:"-"`
	Size     int64             `json:"-"`
}

// DocumentResult is a chunk hit returned by a document query.
type DocumentResult struct {
	DocumentID string            `json:"document_id"`
	URI        string            `json:"uri,omitempty"`
	ChunkID    string            `json:"chunk_id"`
	Score      float64           `json:"score"`
	Text       string            `json:"text"`
	StartPos   int               `json:"start_pos"`
	EndPos     int               `json:"end_pos"`
	Metadata   metadata.Metadata `json:"metadata,omitempty"`
}
