// Package storage keeps the document catalog: which documents were ingested and where
// each of their chunks sits in the source text.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/vectra/internal/models"
)

// ErrDocumentNotFound is returned when the catalog has no document with the given id.
var ErrDocumentNotFound = errors.New("document not found")

// Catalog records documents and their chunks. Writes that must line up with the vector
// index take an apply callback: the catalog change is committed only when apply succeeds.
type Catalog interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)

	// ReplaceDocument upserts doc and replaces its chunks, then calls apply (may be nil).
	ReplaceDocument(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk, apply func() error) error
	// DeleteDocument removes doc and its chunks, then calls apply (may be nil).
	// Deleting an unknown id is not an error.
	DeleteDocument(ctx context.Context, id string, apply func() error) error
	// Clear removes every document and chunk.
	Clear(ctx context.Context) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
