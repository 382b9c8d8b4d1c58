// Package indexer turns documents into vector index items: text is split into token
// bounded chunks, embedded, and written to the index in one update per document.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/vectra/internal/embedding"
	"github.com/hyperjump/vectra/internal/extract"
	"github.com/hyperjump/vectra/internal/fileid"
	"github.com/hyperjump/vectra/internal/models"
	"github.com/hyperjump/vectra/internal/storage"
	"github.com/hyperjump/vectra/pkg/index"
	"github.com/hyperjump/vectra/pkg/metadata"
)

// Chunk item metadata keys.
const (
	MetaDocumentID = "documentId"
	MetaStartPos   = "startPos"
	MetaEndPos     = "endPos"
)

const (
	defaultBatchSize    = 16
	defaultConcurrency  = 4
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

var (
	// ErrEmptyDocument is returned when a document has no text worth indexing.
	ErrEmptyDocument = errors.New("document has no indexable text")
	// ErrRateLimited is returned when the embedding model keeps rate limiting after all retries.
	ErrRateLimited = errors.New("embedding model rate limited")
	// ErrEmbedding is returned when the embedding model reports an error status.
	ErrEmbedding = errors.New("embedding failed")
)

// Indexer ingests documents into a LocalIndex and records them in a catalog.
type Indexer struct {
	index     *index.LocalIndex
	model     embedding.Model
	catalog   storage.Catalog
	splitCfg  SplitterConfig
	extractor *extract.Extractor
	limiter   *rate.Limiter
	logger    *zap.Logger

	// writeMu serializes index updates; embedding runs outside it.
	writeMu sync.Mutex

	batchSize    int
	concurrency  int
	maxRetries   int
	retryBackoff time.Duration
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (document indexed, retries, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithExtractor sets the extractor used by IndexFile. Without one files are read as plain text.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithBatchSize sets how many chunks go into one embedding request.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of embedding requests in flight.
func WithConcurrency(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// WithMaxRetries sets how often a rate limited request is retried. 0 disables retries.
func WithMaxRetries(n int) IndexerOption {
	return func(idx *Indexer) {
		if n >= 0 {
			idx.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay before retrying a rate limited request. The delay
// doubles on each attempt.
func WithRetryBackoff(d time.Duration) IndexerOption {
	return func(idx *Indexer) {
		if d >= 0 {
			idx.retryBackoff = d
		}
	}
}

// WithRateLimit caps embedding requests per second. rps <= 0 means unlimited.
func WithRateLimit(rps float64) IndexerOption {
	return func(idx *Indexer) {
		if rps <= 0 {
			idx.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		idx.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewIndexer creates an indexer. splitCfg is validated here; its DocType and Separators
// are overridden per document when the document names a doc type.
func NewIndexer(
	idx *index.LocalIndex,
	model embedding.Model,
	catalog storage.Catalog,
	splitCfg SplitterConfig,
	opts ...IndexerOption,
) (*Indexer, error) {
	if splitCfg.Tokenizer == nil {
		splitCfg.Tokenizer = NewSimpleTokenizer()
	}
	if _, err := NewTextSplitter(splitCfg); err != nil {
		return nil, err
	}
	if mt := model.MaxTokens(); mt > 0 && splitCfg.ChunkSize+2*splitCfg.ChunkOverlap > mt {
		return nil, fmt.Errorf("chunk size %d with overlap %d exceeds the model limit of %d tokens",
			splitCfg.ChunkSize, splitCfg.ChunkOverlap, mt)
	}
	ix := &Indexer{
		index:        idx,
		model:        model,
		catalog:      catalog,
		splitCfg:     splitCfg,
		limiter:      rate.NewLimiter(rate.Inf, 0),
		logger:       zap.NewNop(),
		batchSize:    defaultBatchSize,
		concurrency:  defaultConcurrency,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Index returns the underlying vector index.
func (ix *Indexer) Index() *index.LocalIndex { return ix.index }

func (ix *Indexer) splitter(docType string) (*TextSplitter, error) {
	cfg := ix.splitCfg
	if docType != "" && docType != cfg.DocType {
		cfg.DocType = docType
		cfg.Separators = nil
	}
	return NewTextSplitter(cfg)
}

// ChunkID returns the index item id of the i-th chunk of a document.
func ChunkID(docID string, i int) string {
	return fmt.Sprintf("%s#%d", docID, i)
}

// IndexDocument splits, embeds and indexes a document, replacing any chunks indexed
// for the same id before. Index items and catalog rows change together: when the index
// commit fails the catalog is rolled back, and when embedding fails neither is touched.
func (ix *Indexer) IndexDocument(ctx context.Context, in *models.DocumentInput) (*models.Document, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	text := Preprocess(in.Text)
	sp, err := ix.splitter(in.DocType)
	if err != nil {
		return nil, err
	}
	chunks := sp.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, id)
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = sp.WithOverlap(c)
	}
	vectors, err := ix.embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", id, err)
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	previous, err := ix.catalog.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load previous chunks: %w", err)
	}

	if err := ix.index.BeginUpdate(ctx); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = ix.index.CancelUpdate()
		}
	}()

	for _, c := range previous {
		if err := ix.index.DeleteItem(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("delete chunk %s: %w", c.ID, err)
		}
	}
	rows := make([]*models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		md := in.Metadata.Clone()
		if md == nil {
			md = metadata.Metadata{}
		}
		md[MetaDocumentID] = metadata.String(id)
		md[MetaStartPos] = metadata.Number(float64(c.StartPos))
		md[MetaEndPos] = metadata.Number(float64(c.EndPos))
		chunkID := ChunkID(id, i)
		if _, err := ix.index.UpsertItem(ctx, index.ItemInput{ID: chunkID, Metadata: md, Vector: vectors[i]}); err != nil {
			return nil, fmt.Errorf("index chunk %d: %w", i, err)
		}
		rows[i] = &models.DocumentChunk{ID: chunkID, DocumentID: id, ChunkIndex: i, StartPos: c.StartPos, EndPos: c.EndPos}
	}

	doc := &models.Document{
		ID:       id,
		URI:      in.URI,
		DocType:  in.DocType,
		Text:     text,
		Metadata: in.Metadata.Clone(),
		ModTime:  in.ModTime,
		Size:     in.Size,
	}
	err = ix.catalog.ReplaceDocument(ctx, doc, rows, func() error {
		if err := ix.index.EndUpdate(ctx); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		if committed {
			ix.logger.Error("catalog commit failed after index commit",
				zap.String("document", id), zap.Error(err))
		}
		return nil, fmt.Errorf("record document %s: %w", id, err)
	}

	ix.logger.Debug("indexer document indexed",
		zap.String("document", id),
		zap.Int("chunks", len(chunks)),
		zap.Int("replaced", len(previous)),
	)
	return doc, nil
}

// embed returns one vector per input, in input order. Batches run concurrently up to
// the configured limit; the first failure cancels the rest.
func (ix *Indexer) embed(ctx context.Context, inputs []string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for start := 0; start < len(inputs); start += ix.batchSize {
		start := start
		end := min(start+ix.batchSize, len(inputs))
		g.Go(func() error {
			vectors, err := ix.embedBatch(gctx, inputs[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	for attempt := 0; ; attempt++ {
		if err := ix.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := ix.model.CreateEmbeddings(ctx, batch)
		if err != nil {
			return nil, err
		}
		switch resp.Status {
		case embedding.StatusSuccess:
			if len(resp.Output) != len(batch) {
				return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbedding, len(resp.Output), len(batch))
			}
			return resp.Output, nil
		case embedding.StatusRateLimited:
			if attempt >= ix.maxRetries {
				return nil, fmt.Errorf("%w after %d attempts: %s", ErrRateLimited, attempt+1, resp.Message)
			}
			delay := ix.retryBackoff << attempt
			ix.logger.Warn("embedding rate limited, retrying",
				zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.String("message", resp.Message))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrEmbedding, resp.Message)
		}
	}
}

// IndexFile extracts and indexes a file. The document ID is derived from the absolute
// path so re-indexing replaces the same document. If allowedExts is non-empty the file's
// extension must be in the list (case-insensitive). Files already indexed with the same
// mtime and size are skipped; skipped reports whether that happened.
func (ix *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (skipped bool, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !ExtensionAllowed(ext, allowedExts) {
		return false, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := fileid.FileDocID(absPath)
	if prev, err := ix.catalog.GetDocument(ctx, docID); err == nil &&
		prev.URI == absPath && prev.ModTime == info.ModTime().UnixNano() && prev.Size == info.Size() {
		ix.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return true, nil
	} else if err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
		return false, err
	}

	res, err := ix.extract(absPath)
	if err != nil {
		return false, fmt.Errorf("extract content: %w", err)
	}
	_, err = ix.IndexDocument(ctx, &models.DocumentInput{
		ID:       docID,
		URI:      absPath,
		DocType:  res.DocType,
		Text:     res.Text,
		Metadata: metadata.Metadata{"path": metadata.String(absPath)},
		ModTime:  info.ModTime().UnixNano(),
		Size:     info.Size(),
	})
	if errors.Is(err, ErrEmptyDocument) {
		// an emptied file must not keep its old chunks searchable
		if delErr := ix.DeleteDocument(ctx, docID); delErr != nil {
			return false, delErr
		}
		ix.logger.Debug("indexer file has no text", zap.String("path", absPath))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ix.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return false, nil
}

func (ix *Indexer) extract(path string) (*extract.Result, error) {
	if ix.extractor != nil {
		return ix.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &extract.Result{Text: string(content), DocType: extract.DocType(filepath.Ext(path))}, nil
}

// DirectoryStats counts the outcome of IndexDirectory.
type DirectoryStats struct {
	Indexed int
	Skipped int
}

// IndexDirectory walks dir and indexes each regular file whose extension is in
// allowedExts (all files when empty). Subdirectories are visited only when recursive is set.
// It stops at the first error.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (DirectoryStats, error) {
	var stats DirectoryStats
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return stats, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return stats, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		skipped, err := ix.IndexFile(ctx, path, allowedExts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if skipped {
			stats.Skipped++
		} else {
			stats.Indexed++
		}
		return nil
	})
	return stats, err
}

// ExtensionAllowed reports whether ext is in allowed; the leading dot and case are ignored.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document's chunks from the index and its catalog record.
// Unknown ids are a no-op.
func (ix *Indexer) DeleteDocument(ctx context.Context, id string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	chunks, err := ix.catalog.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if len(chunks) == 0 {
		return ix.catalog.DeleteDocument(ctx, id, nil)
	}

	if err := ix.index.BeginUpdate(ctx); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = ix.index.CancelUpdate()
		}
	}()
	for _, c := range chunks {
		if err := ix.index.DeleteItem(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", c.ID, err)
		}
	}
	err = ix.catalog.DeleteDocument(ctx, id, func() error {
		if err := ix.index.EndUpdate(ctx); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	ix.logger.Debug("indexer document deleted", zap.String("id", id), zap.Int("chunks", len(chunks)))
	return nil
}

// Reset recreates the index from cfg and empties the catalog. Any existing index is
// replaced regardless of cfg.DeleteIfExists.
func (ix *Indexer) Reset(ctx context.Context, cfg index.CreateConfig) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	cfg.DeleteIfExists = true
	if err := ix.index.CreateIndex(ctx, cfg); err != nil {
		return err
	}
	if err := ix.catalog.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	ix.logger.Debug("indexer reset", zap.String("folder", ix.index.Folder()))
	return nil
}

// Drop deletes the index folder and empties the catalog.
func (ix *Indexer) Drop(ctx context.Context) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	if err := ix.index.DeleteIndex(ctx); err != nil {
		return err
	}
	if err := ix.catalog.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	ix.logger.Debug("indexer dropped", zap.String("folder", ix.index.Folder()))
	return nil
}

// DeleteFile removes the document indexed for path.
func (ix *Indexer) DeleteFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return ix.DeleteDocument(ctx, fileid.FileDocID(absPath))
}

// QueryDocuments embeds the query text and returns the best matching chunks with their
// text cut from the catalog copy of the document.
func (ix *Indexer) QueryDocuments(ctx context.Context, q *models.QueryRequest) ([]*models.DocumentResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	vectors, err := ix.embedBatch(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := ix.index.QueryItems(ctx, vectors[0], q.TopK, q.Filter)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]*models.Document)
	results := make([]*models.DocumentResult, 0, len(hits))
	for _, hit := range hits {
		r := &models.DocumentResult{ChunkID: hit.Item.ID, Score: hit.Score, Metadata: hit.Item.Metadata}
		r.DocumentID, _ = hit.Item.Metadata[MetaDocumentID].AsString()
		start, _ := hit.Item.Metadata[MetaStartPos].AsNumber()
		end, _ := hit.Item.Metadata[MetaEndPos].AsNumber()
		r.StartPos, r.EndPos = int(start), int(end)

		if r.DocumentID != "" {
			doc, ok := docs[r.DocumentID]
			if !ok {
				doc, err = ix.catalog.GetDocument(ctx, r.DocumentID)
				if err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
					return nil, err
				}
				docs[r.DocumentID] = doc
			}
			if doc != nil {
				r.URI = doc.URI
				r.Text = sliceText(doc.Text, r.StartPos, r.EndPos)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// sliceText returns text[start:end+1] clamped to the text bounds.
func sliceText(text string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end >= len(text) {
		end = len(text) - 1
	}
	if start > end {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

// Stats summarizes the catalog and the index.
type Stats struct {
	Version        int                  `json:"version"`
	MetadataConfig index.MetadataConfig `json:"metadata_config"`
	Documents      int64                `json:"documents"`
	Chunks         int64                `json:"chunks"`
	Items          int                  `json:"items"`
}

// Stats returns document and chunk counts together with the index summary.
func (ix *Indexer) Stats(ctx context.Context) (*Stats, error) {
	is, err := ix.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := ix.catalog.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := ix.catalog.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Version:        is.Version,
		MetadataConfig: is.MetadataConfig,
		Documents:      docs,
		Chunks:         chunks,
		Items:          is.Items,
	}, nil
}
