package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hyperjump/vectra/pkg/metadata"
	"github.com/hyperjump/vectra/pkg/vector"
	"go.uber.org/zap"
)

// InsertItem adds a new item. It fails with ErrDuplicateID when an item with the same id exists.
// An empty id is replaced with a random UUID. Outside an update the insert commits immediately.
func (li *LocalIndex) InsertItem(ctx context.Context, in ItemInput) (*Item, error) {
	var out *Item
	err := li.mutate(ctx, "insert", func(data *IndexData) error {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := validateVector(in.Vector, li.st.workingDim); err != nil {
			return err
		}
		if data.find(id) >= 0 {
			return ErrDuplicateID
		}
		item, err := li.buildItem(data.MetadataConfig, id, in)
		if err != nil {
			return err
		}
		data.Items = append(data.Items, item)
		li.fixDimension(len(item.Vector))
		out = item.Clone()
		li.logger.Debug("item inserted", zap.String("id", id), zap.Bool("external", item.MetadataFile != ""))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertItem replaces the item with the same id in place, keeping its position, or appends it.
func (li *LocalIndex) UpsertItem(ctx context.Context, in ItemInput) (*Item, error) {
	var out *Item
	err := li.mutate(ctx, "upsert", func(data *IndexData) error {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := validateVector(in.Vector, li.st.workingDim); err != nil {
			return err
		}
		item, err := li.buildItem(data.MetadataConfig, id, in)
		if err != nil {
			return err
		}
		if i := data.find(id); i >= 0 {
			li.unstage(data.Items[i], item)
			data.Items[i] = item
			li.logger.Debug("item replaced", zap.String("id", id))
		} else {
			data.Items = append(data.Items, item)
			li.logger.Debug("item inserted", zap.String("id", id))
		}
		li.fixDimension(len(item.Vector))
		out = item.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteItem removes the item with the given id. Deleting an absent id is a no-op.
// Side files of deleted items are left on disk.
func (li *LocalIndex) DeleteItem(ctx context.Context, id string) error {
	return li.mutate(ctx, "delete", func(data *IndexData) error {
		i := data.find(id)
		if i < 0 {
			return nil
		}
		li.unstage(data.Items[i], nil)
		data.Items = append(data.Items[:i], data.Items[i+1:]...)
		li.logger.Debug("item deleted", zap.String("id", id))
		return nil
	})
}

// GetItem returns a copy of the committed item with the given id, or nil when it does not exist.
// Metadata is the inline metadata; use QueryItems for the complete externalized metadata.
func (li *LocalIndex) GetItem(ctx context.Context, id string) (*Item, error) {
	data, _, err := li.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if i := data.find(id); i >= 0 {
		return data.Items[i].Clone(), nil
	}
	return nil, nil
}

// ListItems returns copies of all committed items in storage order.
func (li *LocalIndex) ListItems(ctx context.Context) ([]*Item, error) {
	return li.ListItemsByMetadata(ctx, nil)
}

// ListItemsByMetadata returns copies of the committed items whose inline metadata matches filter.
func (li *LocalIndex) ListItemsByMetadata(ctx context.Context, filter *metadata.Filter) ([]*Item, error) {
	data, _, err := li.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Item, 0, len(data.Items))
	for _, it := range data.Items {
		if metadata.Evaluate(it.Metadata, filter) {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

// Stats summarizes the committed index.
func (li *LocalIndex) Stats(ctx context.Context) (Stats, error) {
	data, _, err := li.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Version:        data.Version,
		MetadataConfig: data.MetadataConfig.Clone(),
		Items:          len(data.Items),
	}, nil
}

func (li *LocalIndex) fixDimension(n int) {
	if li.st.workingDim == 0 {
		li.st.workingDim = n
	}
}

// validateVector checks that v is usable for storage or search against an index of dimension
// dim (zero means any length is accepted).
func validateVector(v []float64, dim int) error {
	if len(v) == 0 {
		return ErrVectorRequired
	}
	if dim != 0 && len(v) != dim {
		return &DimensionError{Expected: dim, Actual: len(v)}
	}
	if vector.IsZero(v) {
		return ErrZeroVector
	}
	return nil
}

// buildItem creates the stored form of in. When the index externalizes metadata and in carries
// any, the complete metadata is staged as a side file of the working copy, written by EndUpdate,
// and only the indexed keys stay inline.
func (li *LocalIndex) buildItem(cfg MetadataConfig, id string, in ItemInput) (*Item, error) {
	item := &Item{
		ID:     id,
		Vector: append([]float64(nil), in.Vector...),
		Norm:   vector.Norm(in.Vector),
	}
	if !cfg.externalizes() || len(in.Metadata) == 0 {
		item.Metadata = in.Metadata.Clone()
		if item.Metadata == nil {
			item.Metadata = metadata.Metadata{}
		}
		return item, nil
	}

	name := li.sideFileName(id)
	path := filepath.Join(li.folder, name)
	raw, err := json.MarshalIndent(in.Metadata, "", "  ")
	if err != nil {
		return nil, &StorageError{Op: "write metadata", Path: path, Err: err}
	}
	li.st.pending[name] = raw
	item.Metadata = in.Metadata.Pick(cfg.Indexed)
	item.MetadataFile = name
	return item, nil
}

// unstage drops the staged side file of old unless next still uses it.
func (li *LocalIndex) unstage(old, next *Item) {
	if old.MetadataFile == "" || (next != nil && next.MetadataFile == old.MetadataFile) {
		return
	}
	delete(li.st.pending, old.MetadataFile)
}

// sideFileName maps an item id to a file name inside the index folder. Ids made of safe
// characters are used as is; anything else, or a name that would collide with the index
// document, is replaced by the hex SHA-256 of the id.
func (li *LocalIndex) sideFileName(id string) string {
	if safeFileName(id) {
		if name := id + ".json"; name != li.indexName {
			return name
		}
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:]) + ".json"
}

func safeFileName(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 200 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// readSideFile loads the complete metadata of an item from its side file.
func (li *LocalIndex) readSideFile(name string) (metadata.Metadata, error) {
	path := filepath.Join(li.folder, name)
	if filepath.Base(name) != name {
		return nil, &StorageError{Op: "read metadata", Path: path, Err: fmt.Errorf("metadata file %q is outside the index folder", name)}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read metadata", Path: path, Err: err}
	}
	var md metadata.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, &StorageError{Op: "read metadata", Path: path, Err: err}
	}
	if md == nil {
		md = metadata.Metadata{}
	}
	return md, nil
}
