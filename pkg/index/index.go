// Package index implements a file-backed vector index.
//
// A LocalIndex persists its items as one JSON document inside a folder. Mutations go through an
// explicit update (BeginUpdate, EndUpdate, CancelUpdate) that edits a private working copy;
// reads and queries only ever see the last committed state. Single mutations called outside an
// update commit on their own.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/vectra/pkg/metadata"
	"go.uber.org/zap"
)

// state is the in-memory view of one index folder. committed is never mutated in place:
// updates edit working (a deep copy) and EndUpdate swaps it in.
type state struct {
	committed *IndexData
	working   *IndexData
	// dim is the vector length enforced for committed, workingDim for working. Zero means unset.
	dim        int
	workingDim int
	// pending holds the encoded side files of working, keyed by file name. They reach the disk
	// only in EndUpdate, so the committed side files stay as they were until then.
	pending map[string][]byte
}

// LocalIndex is a vector index stored in a folder on the local filesystem.
// It is safe for concurrent use within one process; it does not coordinate with other processes.
type LocalIndex struct {
	folder    string
	indexName string
	logger    *zap.Logger
	observer  Observer

	mu sync.RWMutex
	st state
}

// New returns a LocalIndex for folder. Nothing is read until the first operation that needs data.
func New(folder string, opts ...Option) *LocalIndex {
	li := &LocalIndex{
		folder:    folder,
		indexName: DefaultIndexName,
		logger:    zap.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(li)
	}
	return li
}

// Folder returns the index folder.
func (li *LocalIndex) Folder() string { return li.folder }

func (li *LocalIndex) indexPath() string {
	return filepath.Join(li.folder, li.indexName)
}

// IsCreated reports whether the index document exists on disk.
func (li *LocalIndex) IsCreated() bool {
	_, err := os.Stat(li.indexPath())
	return err == nil
}

// CreateIndex writes an empty index document. If the index exists it fails with ErrAlreadyExists
// unless cfg.DeleteIfExists is set, in which case the old folder is removed first. It fails with
// ErrUpdateInProgress while an update is open. On failure nothing created by this call is left
// behind.
func (li *LocalIndex) CreateIndex(ctx context.Context, cfg CreateConfig) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if li.st.working != nil {
		return ErrUpdateInProgress
	}

	if li.IsCreated() {
		if !cfg.DeleteIfExists {
			return ErrAlreadyExists
		}
		if err := li.deleteLocked(); err != nil {
			return err
		}
	}

	version := cfg.Version
	if version == 0 {
		version = 1
	}
	data := &IndexData{
		Version:        version,
		MetadataConfig: cfg.MetadataConfig.Clone(),
		Items:          []*Item{},
	}

	_, statErr := os.Stat(li.folder)
	createdFolder := errors.Is(statErr, fs.ErrNotExist)
	if err := os.MkdirAll(li.folder, 0o755); err != nil {
		return &StorageError{Op: "create", Path: li.folder, Err: err}
	}
	if err := li.writeDocument(data); err != nil {
		if createdFolder {
			_ = os.RemoveAll(li.folder)
		} else {
			_ = os.Remove(li.indexPath())
		}
		return &StorageError{Op: "create", Path: li.indexPath(), Err: err}
	}

	li.st = state{committed: data}
	li.logger.Debug("index created",
		zap.String("folder", li.folder),
		zap.Int("version", version),
		zap.Strings("indexed", data.MetadataConfig.Indexed))
	return nil
}

// DeleteIndex removes the index folder, including side files, and clears all in-memory state.
func (li *LocalIndex) DeleteIndex(ctx context.Context) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return li.deleteLocked()
}

func (li *LocalIndex) deleteLocked() error {
	li.st = state{}
	if err := os.RemoveAll(li.folder); err != nil {
		return &StorageError{Op: "delete", Path: li.folder, Err: err}
	}
	li.logger.Debug("index deleted", zap.String("folder", li.folder))
	return nil
}

// Load reads the index document if it has not been read yet. It returns ErrNotFound when the
// document does not exist and a *StorageError when it cannot be read or parsed; in both cases
// the index stays unloaded and a later call retries.
func (li *LocalIndex) Load(ctx context.Context) error {
	_, _, err := li.snapshot(ctx)
	return err
}

// snapshot returns the committed document and its dimensionality, loading it on first use.
// The returned document must not be modified.
func (li *LocalIndex) snapshot(ctx context.Context) (*IndexData, int, error) {
	li.mu.RLock()
	data, dim := li.st.committed, li.st.dim
	li.mu.RUnlock()
	if data != nil {
		return data, dim, nil
	}

	li.mu.Lock()
	defer li.mu.Unlock()
	if err := li.loadLocked(ctx); err != nil {
		return nil, 0, err
	}
	return li.st.committed, li.st.dim, nil
}

func (li *LocalIndex) loadLocked(ctx context.Context) error {
	if li.st.committed != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	path := li.indexPath()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return &StorageError{Op: "load", Path: path, Err: err}
	}

	var data IndexData
	if err := json.Unmarshal(raw, &data); err != nil {
		return &StorageError{Op: "load", Path: path, Err: err}
	}
	if data.Items == nil {
		data.Items = []*Item{}
	}
	dim := 0
	for _, it := range data.Items {
		if it == nil {
			return &StorageError{Op: "load", Path: path, Err: errors.New("null item")}
		}
		if it.Metadata == nil {
			it.Metadata = metadata.Metadata{}
		}
		if dim == 0 {
			dim = len(it.Vector)
		} else if len(it.Vector) != dim {
			return &StorageError{Op: "load", Path: path, Err: fmt.Errorf("item %q: %w", it.ID, &DimensionError{Expected: dim, Actual: len(it.Vector)})}
		}
	}

	li.st = state{committed: &data, dim: dim}
	li.observer.SetItems(li.folder, len(data.Items))
	li.observer.ObserveOperation("load", nil, time.Since(start))
	li.logger.Debug("index loaded", zap.String("path", path), zap.Int("items", len(data.Items)))
	return nil
}

// BeginUpdate opens an update by deep-copying the committed document into a working copy.
func (li *LocalIndex) BeginUpdate(ctx context.Context) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.beginLocked(ctx)
}

func (li *LocalIndex) beginLocked(ctx context.Context) error {
	if li.st.working != nil {
		return ErrUpdateInProgress
	}
	if err := li.loadLocked(ctx); err != nil {
		return err
	}
	li.st.working = li.st.committed.Clone()
	li.st.workingDim = li.st.dim
	li.st.pending = make(map[string][]byte)
	li.logger.Debug("update started", zap.String("folder", li.folder))
	return nil
}

// EndUpdate writes the staged side files and the working copy to disk and makes it the committed
// state. Every file is written to a temporary file in the index folder and renamed into place,
// side files first. If a side file cannot be written a *StorageError with Op "write metadata" is
// returned; if the document cannot be written it is a *StorageError with Op "commit" and the side
// files written by this call are put back. Either way the committed state is unchanged and the
// update stays open so the caller can retry or cancel.
func (li *LocalIndex) EndUpdate(ctx context.Context) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.endLocked(ctx)
}

func (li *LocalIndex) endLocked(ctx context.Context) error {
	if li.st.working == nil {
		return ErrNoUpdateInProgress
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	restore, err := li.writeSideFiles(li.st.pending)
	if err != nil {
		li.observer.ObserveOperation("commit", err, time.Since(start))
		return err
	}
	if err := li.writeDocument(li.st.working); err != nil {
		restore()
		serr := &StorageError{Op: "commit", Path: li.indexPath(), Err: err}
		li.observer.ObserveOperation("commit", serr, time.Since(start))
		return serr
	}

	li.st.committed = li.st.working
	li.st.working = nil
	li.st.pending = nil
	li.st.dim = li.st.workingDim
	if len(li.st.committed.Items) == 0 {
		li.st.dim = 0
	}
	li.st.workingDim = 0

	li.observer.ObserveOperation("commit", nil, time.Since(start))
	li.observer.SetItems(li.folder, len(li.st.committed.Items))
	li.logger.Debug("update committed",
		zap.String("folder", li.folder),
		zap.Int("items", len(li.st.committed.Items)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// CancelUpdate discards the working copy. It returns ErrNoUpdateInProgress when no update is open.
func (li *LocalIndex) CancelUpdate() error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.st.working == nil {
		return ErrNoUpdateInProgress
	}
	li.cancelLocked()
	return nil
}

func (li *LocalIndex) cancelLocked() {
	li.st.working = nil
	li.st.workingDim = 0
	li.st.pending = nil
	li.logger.Debug("update cancelled", zap.String("folder", li.folder))
}

// InUpdate reports whether an update is open.
func (li *LocalIndex) InUpdate() bool {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.st.working != nil
}

// mutate runs fn against the working copy. Without an open update it wraps fn in its own
// update: committed on success, cancelled when fn or the commit fails.
func (li *LocalIndex) mutate(ctx context.Context, op string, fn func(*IndexData) error) error {
	start := time.Now()
	li.mu.Lock()
	defer li.mu.Unlock()

	err := li.mutateLocked(ctx, fn)
	li.observer.ObserveOperation(op, err, time.Since(start))
	return err
}

func (li *LocalIndex) mutateLocked(ctx context.Context, fn func(*IndexData) error) error {
	implicit := li.st.working == nil
	if implicit {
		if err := li.beginLocked(ctx); err != nil {
			return err
		}
	}
	if err := fn(li.st.working); err != nil {
		if implicit {
			li.cancelLocked()
		}
		return err
	}
	if !implicit {
		return nil
	}
	if err := li.endLocked(ctx); err != nil {
		li.cancelLocked()
		return err
	}
	return nil
}

// writeDocument serializes data and replaces the index document atomically.
func (li *LocalIndex) writeDocument(data *IndexData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return li.writeFile(li.indexName, raw)
}

// writeSideFiles writes the staged side files in name order. The returned func puts back what
// the files held before, removing the ones that did not exist. When a write fails the files
// already written are put back and a *StorageError is returned.
func (li *LocalIndex) writeSideFiles(pending map[string][]byte) (restore func(), err error) {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	type previous struct {
		name   string
		raw    []byte
		exists bool
	}
	var written []previous
	restore = func() {
		for i := len(written) - 1; i >= 0; i-- {
			p := written[i]
			if !p.exists {
				_ = os.Remove(filepath.Join(li.folder, p.name))
				continue
			}
			if err := li.writeFile(p.name, p.raw); err != nil {
				li.logger.Warn("failed to restore side file", zap.String("file", p.name), zap.Error(err))
			}
		}
	}

	for _, name := range names {
		path := filepath.Join(li.folder, name)
		old, readErr := os.ReadFile(path)
		if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
			restore()
			return nil, &StorageError{Op: "write metadata", Path: path, Err: readErr}
		}
		if err := li.writeFile(name, pending[name]); err != nil {
			restore()
			return nil, &StorageError{Op: "write metadata", Path: path, Err: err}
		}
		written = append(written, previous{name: name, raw: old, exists: readErr == nil})
	}
	return restore, nil
}

// writeFile replaces name inside the index folder with raw through a temporary file and a rename.
func (li *LocalIndex) writeFile(name string, raw []byte) error {
	target := filepath.Join(li.folder, name)
	tmp, err := os.CreateTemp(li.folder, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
