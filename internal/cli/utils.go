// Package cli formats command results for the vectra CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/vectra/internal/indexer"
	"github.com/hyperjump/vectra/internal/models"
	"github.com/hyperjump/vectra/pkg/index"
	"github.com/hyperjump/vectra/pkg/metadata"
	"github.com/hyperjump/vectra/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --format flag value. The empty string means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// QueryResponse is the JSON shape of a document query.
type QueryResponse struct {
	Query     string                   `json:"query"`
	QueryTime int64                    `json:"query_time_ms"`
	Total     int                      `json:"total"`
	Results   []*models.DocumentResult `json:"results"`
}

// WriteQueryResults writes document query results to w in the given format.
func WriteQueryResults(w io.Writer, query string, took time.Duration, results []*models.DocumentResult, format OutputFormat) error {
	if results == nil {
		results = []*models.DocumentResult{}
	}
	resp := &QueryResponse{Query: query, QueryTime: took.Milliseconds(), Total: len(results), Results: results}
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", resp.Total, resp.QueryTime)
	for i, r := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, r.Score)
		fmt.Fprintf(w, "Document: %s (chunk %s, bytes %d-%d)\n", r.DocumentID, r.ChunkID, r.StartPos, r.EndPos)
		if r.URI != "" {
			fmt.Fprintf(w, "Source: %s\n", r.URI)
		}
		fmt.Fprintf(w, "\n%s\n\n", TruncateWords(r.Text, 60))
	}
	return nil
}

// WriteItemResults writes raw vector query hits.
func WriteItemResults(w io.Writer, results []*index.QueryResult, format OutputFormat) error {
	if results == nil {
		results = []*index.QueryResult{}
	}
	if format == OutputJSON {
		return writeJSON(w, results)
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s  score=%.4f  %s\n", i+1, r.Item.ID, r.Score, FormatMetadata(r.Item.Metadata))
	}
	return nil
}

const maxMetadataWidth = 120

// WriteItems lists items without their vectors in text mode.
func WriteItems(w io.Writer, items []*index.Item, format OutputFormat) error {
	if items == nil {
		items = []*index.Item{}
	}
	if format == OutputJSON {
		return writeJSON(w, items)
	}
	for _, it := range items {
		line := fmt.Sprintf("%s  dim=%d  %s", it.ID, len(it.Vector), utils.Truncate(FormatMetadata(it.Metadata), maxMetadataWidth))
		if it.MetadataFile != "" {
			line += "  (metadata in " + it.MetadataFile + ")"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	return nil
}

// DocumentSummary is a catalog document without its text.
type DocumentSummary struct {
	ID        string            `json:"id"`
	URI       string            `json:"uri,omitempty"`
	DocType   string            `json:"doc_type,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Metadata  metadata.Metadata `json:"metadata,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// WriteDocuments lists catalog documents. Document text is never printed.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	summaries := make([]*DocumentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = &DocumentSummary{ID: d.ID, URI: d.URI, DocType: d.DocType, Size: d.Size, Metadata: d.Metadata, UpdatedAt: d.UpdatedAt}
	}
	if format == OutputJSON {
		return writeJSON(w, summaries)
	}
	for _, d := range summaries {
		line := d.ID
		if d.URI != "" {
			line += "  " + d.URI
		}
		if d.DocType != "" {
			line += "  [" + d.DocType + "]"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// StatsOutput is the JSON shape of the stats command.
type StatsOutput struct {
	*indexer.Stats
	Folder    string `json:"folder"`
	DiskBytes int64  `json:"disk_bytes"`
}

// WriteStats writes index and catalog statistics.
func WriteStats(w io.Writer, stats *StatsOutput, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Index folder:   %s\n", stats.Folder)
	fmt.Fprintf(w, "Version:        %d\n", stats.Version)
	indexed := "(all inline)"
	if len(stats.MetadataConfig.Indexed) > 0 {
		indexed = strings.Join(stats.MetadataConfig.Indexed, ", ")
	}
	fmt.Fprintf(w, "Indexed fields: %s\n", indexed)
	fmt.Fprintf(w, "Items:          %d\n", stats.Items)
	fmt.Fprintf(w, "Documents:      %d\n", stats.Documents)
	fmt.Fprintf(w, "Chunks:         %d\n", stats.Chunks)
	fmt.Fprintf(w, "Disk usage:     %s\n", FormatBytes(stats.DiskBytes))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatMetadata renders metadata as sorted key=value pairs.
func FormatMetadata(md metadata.Metadata) string {
	keys := md.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + md[k].String()
	}
	return strings.Join(parts, " ")
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
