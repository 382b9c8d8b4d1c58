package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/vectra/internal/embedding"
	"github.com/hyperjump/vectra/internal/extract"
	"github.com/hyperjump/vectra/internal/fileid"
	"github.com/hyperjump/vectra/internal/models"
	"github.com/hyperjump/vectra/internal/storage"
	"github.com/hyperjump/vectra/pkg/index"
	"github.com/hyperjump/vectra/pkg/metadata"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{"txt", "md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		got := ExtensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

type testEnv struct {
	ix      *Indexer
	index   *index.LocalIndex
	catalog *storage.SQLiteCatalog
	dir     string
}

func newTestEnv(t *testing.T, model embedding.Model, opts ...IndexerOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	li := index.New(filepath.Join(dir, "index"))
	if err := li.CreateIndex(context.Background(), index.CreateConfig{}); err != nil {
		t.Fatal(err)
	}
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	cfg := SplitterConfig{ChunkSize: 8, ChunkOverlap: 2, KeepSeparators: true}
	opts = append([]IndexerOption{WithRetryBackoff(0), WithBatchSize(2), WithExtractor(extract.NewExtractor())}, opts...)
	ix, err := NewIndexer(li, model, catalog, cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{ix: ix, index: li, catalog: catalog, dir: dir}
}

const longText = "alpha beta gamma delta\n\nepsilon zeta eta theta\n\niota kappa lambda mu\n\nnu xi omicron pi"

func TestNewIndexer_Validation(t *testing.T) {
	li := index.New(t.TempDir())
	if _, err := NewIndexer(li, embedding.NewMock(4), nil, SplitterConfig{ChunkSize: 0}); !errors.Is(err, ErrInvalidChunkSize) {
		t.Errorf("expected ErrInvalidChunkSize, got %v", err)
	}
	if _, err := NewIndexer(li, embedding.NewMock(4), nil, SplitterConfig{ChunkSize: 9000}); err == nil {
		t.Error("expected error when chunks exceed the model token limit")
	}
}

func TestIndexDocument_createAndReplace(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()

	doc, err := env.ix.IndexDocument(ctx, &models.DocumentInput{
		ID:       "doc1",
		URI:      "memory://doc1",
		Text:     longText,
		Metadata: metadata.Metadata{"lang": metadata.String("en")},
	})
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if doc.ID != "doc1" || doc.Text != longText {
		t.Errorf("unexpected document %+v", doc)
	}

	items, err := env.index.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := env.catalog.GetChunksByDocumentID(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) < 2 || len(items) != len(chunks) {
		t.Fatalf("items = %d, catalog chunks = %d", len(items), len(chunks))
	}
	for i, it := range items {
		if it.ID != ChunkID("doc1", i) {
			t.Errorf("item %d id = %s", i, it.ID)
		}
		if id, _ := it.Metadata[MetaDocumentID].AsString(); id != "doc1" {
			t.Errorf("item %d documentId = %q", i, id)
		}
		if lang, _ := it.Metadata["lang"].AsString(); lang != "en" {
			t.Errorf("item %d lost caller metadata", i)
		}
		start, _ := it.Metadata[MetaStartPos].AsNumber()
		if int(start) != chunks[i].StartPos {
			t.Errorf("item %d startPos = %v, catalog = %d", i, start, chunks[i].StartPos)
		}
	}

	// reindexing with shorter text leaves no stale chunks behind
	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "doc1", Text: "alpha beta"}); err != nil {
		t.Fatal(err)
	}
	items, _ = env.index.ListItems(ctx)
	if len(items) != 1 {
		t.Errorf("expected 1 item after replace, got %d", len(items))
	}
	if env.index.InUpdate() {
		t.Error("update left open")
	}
}

func TestIndexDocument_generatesIDAndRejectsEmpty(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()

	doc, err := env.ix.IndexDocument(ctx, &models.DocumentInput{Text: "some text"})
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID == "" {
		t.Error("expected a generated id")
	}
	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "x", Text: " ... "}); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

// flakyModel reports rate limiting for the first `limited` calls.
type flakyModel struct {
	embedding.Model
	limited int32
	calls   atomic.Int32
	status  embedding.Status
}

func (m *flakyModel) CreateEmbeddings(ctx context.Context, inputs []string) (*embedding.Response, error) {
	if m.calls.Add(1) <= m.limited {
		return &embedding.Response{Status: m.status, Message: "try later"}, nil
	}
	return m.Model.CreateEmbeddings(ctx, inputs)
}

func TestIndexDocument_retriesRateLimited(t *testing.T) {
	model := &flakyModel{Model: embedding.NewMock(8), limited: 2, status: embedding.StatusRateLimited}
	env := newTestEnv(t, model, WithConcurrency(1), WithRateLimit(1000))
	if _, err := env.ix.IndexDocument(context.Background(), &models.DocumentInput{ID: "d", Text: "short text"}); err != nil {
		t.Fatalf("expected retries to succeed: %v", err)
	}
	if got := model.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestIndexDocument_rateLimitExhausted(t *testing.T) {
	model := &flakyModel{Model: embedding.NewMock(8), limited: 100, status: embedding.StatusRateLimited}
	env := newTestEnv(t, model, WithMaxRetries(1))
	ctx := context.Background()

	_, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "d", Text: longText})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if items, _ := env.index.ListItems(ctx); len(items) != 0 {
		t.Errorf("index changed: %d items", len(items))
	}
	if _, err := env.catalog.GetDocument(ctx, "d"); !errors.Is(err, storage.ErrDocumentNotFound) {
		t.Errorf("catalog changed: %v", err)
	}
}

func TestIndexDocument_embeddingError(t *testing.T) {
	model := &flakyModel{Model: embedding.NewMock(8), limited: 1, status: embedding.StatusError}
	env := newTestEnv(t, model)
	if _, err := env.ix.IndexDocument(context.Background(), &models.DocumentInput{ID: "d", Text: "text"}); !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

// folderRemovingModel deletes the index folder while embedding so the commit fails.
type folderRemovingModel struct {
	embedding.Model
	folder string
}

func (m *folderRemovingModel) CreateEmbeddings(ctx context.Context, inputs []string) (*embedding.Response, error) {
	_ = os.RemoveAll(m.folder)
	return m.Model.CreateEmbeddings(ctx, inputs)
}

func TestIndexDocument_commitFailureRollsBackCatalog(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()
	if err := env.index.Load(ctx); err != nil {
		t.Fatal(err)
	}
	env.ix.model = &folderRemovingModel{Model: embedding.NewMock(8), folder: env.index.Folder()}

	_, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "d", Text: "text"})
	var se *index.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if env.index.InUpdate() {
		t.Error("failed update should be cancelled")
	}
	if n, _ := env.catalog.CountDocuments(ctx); n != 0 {
		t.Errorf("catalog has %d documents after failed commit", n)
	}
}

// documentBreakingModel puts a directory where the index document lives on its first
// armed call, so the side files of the update can be written but the document cannot.
type documentBreakingModel struct {
	embedding.Model
	path  string
	armed atomic.Bool
}

func (m *documentBreakingModel) CreateEmbeddings(ctx context.Context, inputs []string) (*embedding.Response, error) {
	if m.armed.CompareAndSwap(true, false) {
		_ = os.Remove(m.path)
		if err := os.Mkdir(m.path, 0o755); err != nil {
			return nil, err
		}
	}
	return m.Model.CreateEmbeddings(ctx, inputs)
}

func TestIndexDocument_commitFailureKeepsChunkPositions(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()
	cfg := index.CreateConfig{DeleteIfExists: true, MetadataConfig: index.MetadataConfig{Indexed: []string{MetaDocumentID}}}
	if err := env.index.CreateIndex(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "d", Text: "apples are red"}); err != nil {
		t.Fatal(err)
	}

	model := &documentBreakingModel{Model: embedding.NewMock(8), path: filepath.Join(env.index.Folder(), index.DefaultIndexName)}
	model.armed.Store(true)
	env.ix.model = model
	_, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "d", Text: "some other words, then apples are red"})
	var se *index.StorageError
	if !errors.As(err, &se) || se.Op != "commit" {
		t.Fatalf("expected commit StorageError, got %v", err)
	}

	results, err := env.ix.QueryDocuments(ctx, &models.QueryRequest{Text: "apples are red", TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if r := results[0]; r.StartPos != 0 || r.EndPos != len("apples are red")-1 || r.Text != "apples are red" {
		t.Errorf("result after failed commit = %+v", r)
	}
}

func TestQueryDocuments(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()
	for _, in := range []*models.DocumentInput{
		{ID: "a", URI: "memory://a", Text: "apples are red"},
		{ID: "b", URI: "memory://b", Text: "the sky is blue"},
	} {
		if _, err := env.ix.IndexDocument(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	results, err := env.ix.QueryDocuments(ctx, &models.QueryRequest{Text: "apples are red", TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	top := results[0]
	if top.DocumentID != "a" || top.URI != "memory://a" || top.Text != "apples are red" {
		t.Errorf("top result = %+v", top)
	}
	if top.Score < 0.999 {
		t.Errorf("identical text should score ~1, got %v", top.Score)
	}

	results, err = env.ix.QueryDocuments(ctx, &models.QueryRequest{
		Text:   "apples are red",
		Filter: metadata.Eq(MetaDocumentID, metadata.String("b")),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DocumentID != "b" || results[0].Text != "the sky is blue" {
		t.Errorf("filtered results = %+v", results)
	}

	if _, err := env.ix.QueryDocuments(ctx, &models.QueryRequest{}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestIndexFile_createSkipAndUpdate(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()

	path := filepath.Join(env.dir, "doc.md")
	if err := os.WriteFile(path, []byte("# Title\n\nHello world content."), 0600); err != nil {
		t.Fatal(err)
	}
	skipped, err := env.ix.IndexFile(ctx, path, []string{".md"})
	if err != nil || skipped {
		t.Fatalf("first IndexFile: skipped=%v err=%v", skipped, err)
	}
	id := fileid.FileDocID(path)
	doc, err := env.catalog.GetDocument(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.URI != path || doc.DocType != "md" {
		t.Errorf("catalog document = %+v", doc)
	}

	skipped, err = env.ix.IndexFile(ctx, path, nil)
	if err != nil || !skipped {
		t.Errorf("unchanged file should be skipped: skipped=%v err=%v", skipped, err)
	}

	if err := os.WriteFile(path, []byte("Different content that is longer than before."), 0600); err != nil {
		t.Fatal(err)
	}
	skipped, err = env.ix.IndexFile(ctx, path, nil)
	if err != nil || skipped {
		t.Errorf("changed file should be reindexed: skipped=%v err=%v", skipped, err)
	}
	doc, _ = env.catalog.GetDocument(ctx, id)
	if doc.Text != "Different content that is longer than before." {
		t.Errorf("text = %q", doc.Text)
	}

	// emptied file drops its chunks
	if err := os.WriteFile(path, []byte("   "), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ix.IndexFile(ctx, path, nil); err != nil {
		t.Fatal(err)
	}
	if items, _ := env.index.ListItems(ctx); len(items) != 0 {
		t.Errorf("expected no items for empty file, got %d", len(items))
	}

	if _, err := env.ix.IndexFile(ctx, path, []string{".txt"}); err == nil {
		t.Error("expected error for extension not in allowed list")
	}
	if _, err := env.ix.IndexFile(ctx, filepath.Join(env.dir, "missing.md"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIndexDirectory(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()

	root := filepath.Join(env.dir, "docs")
	files := map[string]string{
		"a.txt":         "first file",
		"b.md":          "second file",
		"c.bin":         "ignored",
		"sub/d.txt":     "nested file",
		".hidden/e.txt": "hidden file",
	}
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	exts := []string{".txt", ".md"}

	stats, err := env.ix.IndexDirectory(ctx, root, exts, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 2 || stats.Skipped != 0 {
		t.Errorf("non-recursive stats = %+v", stats)
	}
	stats, err = env.ix.IndexDirectory(ctx, root, exts, true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 || stats.Skipped != 2 {
		t.Errorf("recursive stats = %+v", stats)
	}

	if _, err := env.ix.IndexDirectory(ctx, filepath.Join(root, "a.txt"), exts, true); err == nil {
		t.Error("expected error for a file path")
	}
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()

	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "keep", Text: "keep me"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "drop", Text: longText}); err != nil {
		t.Fatal(err)
	}
	if err := env.ix.DeleteDocument(ctx, "drop"); err != nil {
		t.Fatal(err)
	}
	items, _ := env.index.ListItems(ctx)
	if len(items) != 1 || items[0].ID != ChunkID("keep", 0) {
		t.Errorf("items after delete = %d", len(items))
	}
	if _, err := env.catalog.GetDocument(ctx, "drop"); !errors.Is(err, storage.ErrDocumentNotFound) {
		t.Errorf("expected catalog row removed, got %v", err)
	}
	if err := env.ix.DeleteDocument(ctx, "never-indexed"); err != nil {
		t.Errorf("unknown id should be a no-op: %v", err)
	}

	stats, err := env.ix.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 || stats.Items != 1 || stats.Version != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestResetAndDrop(t *testing.T) {
	env := newTestEnv(t, embedding.NewMock(8))
	ctx := context.Background()
	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "d", Text: longText}); err != nil {
		t.Fatal(err)
	}

	if err := env.ix.Reset(ctx, index.CreateConfig{Version: 2}); err != nil {
		t.Fatal(err)
	}
	stats, err := env.ix.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Version != 2 || stats.Items != 0 || stats.Documents != 0 || stats.Chunks != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}

	if _, err := env.ix.IndexDocument(ctx, &models.DocumentInput{ID: "d", Text: "again"}); err != nil {
		t.Fatal(err)
	}
	if err := env.ix.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	if env.index.IsCreated() {
		t.Error("index folder should be gone after Drop")
	}
	if n, _ := env.catalog.CountDocuments(ctx); n != 0 {
		t.Errorf("catalog documents after Drop = %d", n)
	}
	if _, err := env.ix.Stats(ctx); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("Stats after Drop: expected ErrNotFound, got %v", err)
	}
}
