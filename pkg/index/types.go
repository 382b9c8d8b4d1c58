package index

import "github.com/hyperjump/vectra/pkg/metadata"

// DefaultIndexName is the file name of the index document inside the index folder.
const DefaultIndexName = "index.json"

// MetadataConfig controls which metadata keys stay inline in the index document.
// When Indexed is non-empty, the complete metadata of each item is also written to a side file
// and only the listed keys are kept inline (and are therefore filterable).
type MetadataConfig struct {
	Indexed []string `json:"indexed,omitempty"`
}

// externalizes reports whether items with metadata get a side file.
func (c MetadataConfig) externalizes() bool {
	return len(c.Indexed) > 0
}

// Clone returns an independent copy of c.
func (c MetadataConfig) Clone() MetadataConfig {
	if c.Indexed == nil {
		return MetadataConfig{}
	}
	return MetadataConfig{Indexed: append([]string(nil), c.Indexed...)}
}

// Item is one stored vector with its metadata.
//
// Metadata holds the inline metadata. When MetadataFile is set, the complete metadata lives in
// that file (relative to the index folder) and query results carry it instead.
type Item struct {
	ID           string            `json:"id"`
	Metadata     metadata.Metadata `json:"metadata"`
	Vector       []float64         `json:"vector"`
	Norm         float64           `json:"norm"`
	MetadataFile string            `json:"metadataFile,omitempty"`
}

// Clone returns a deep copy of it.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := *it
	out.Metadata = it.Metadata.Clone()
	if out.Metadata == nil {
		out.Metadata = metadata.Metadata{}
	}
	out.Vector = append([]float64(nil), it.Vector...)
	return &out
}

// IndexData is the persisted index document.
type IndexData struct {
	Version        int            `json:"version"`
	MetadataConfig MetadataConfig `json:"metadataConfig"`
	Items          []*Item        `json:"items"`
}

// Clone returns a deep copy of d. Mutating the copy never affects d.
func (d *IndexData) Clone() *IndexData {
	if d == nil {
		return nil
	}
	out := &IndexData{
		Version:        d.Version,
		MetadataConfig: d.MetadataConfig.Clone(),
		Items:          make([]*Item, len(d.Items)),
	}
	for i, it := range d.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

func (d *IndexData) find(id string) int {
	for i, it := range d.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// CreateConfig configures CreateIndex.
type CreateConfig struct {
	// Version is recorded in the document. Zero means 1.
	Version int
	// DeleteIfExists removes an existing index instead of failing with ErrAlreadyExists.
	DeleteIfExists bool
	MetadataConfig MetadataConfig
}

// ItemInput is the caller-supplied part of an item. An empty ID gets a generated UUID.
type ItemInput struct {
	ID       string
	Metadata metadata.Metadata
	Vector   []float64
}

// Stats summarizes the committed index.
type Stats struct {
	Version        int            `json:"version"`
	MetadataConfig MetadataConfig `json:"metadataConfig"`
	Items          int            `json:"items"`
}

// QueryResult is a scored query hit. Item is an independent copy carrying the complete metadata.
type QueryResult struct {
	Item  *Item   `json:"item"`
	Score float64 `json:"score"`
}
