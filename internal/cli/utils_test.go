package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/vectra/internal/indexer"
	"github.com/hyperjump/vectra/internal/models"
	"github.com/hyperjump/vectra/pkg/index"
	"github.com/hyperjump/vectra/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "JSON": OutputJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestWriteQueryResults_JSON(t *testing.T) {
	results := []*models.DocumentResult{{
		DocumentID: "doc-1",
		URI:        "/tmp/a.txt",
		ChunkID:    "doc-1#0",
		Score:      0.9,
		Text:       "Content here",
		StartPos:   0,
		EndPos:     11,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteQueryResults(&buf, "test query", 42*time.Millisecond, results, OutputJSON))

	var decoded QueryResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded), buf.String())
	assert.Equal(t, "test query", decoded.Query)
	assert.Equal(t, int64(42), decoded.QueryTime)
	assert.Equal(t, 1, decoded.Total)
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "doc-1#0", decoded.Results[0].ChunkID)
}

func TestWriteQueryResults_JSON_empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteQueryResults(&buf, "q", 0, nil, OutputJSON))
	assert.Contains(t, buf.String(), `"results": []`)
	assert.Contains(t, buf.String(), `"total": 0`)
}

func TestWriteQueryResults_text(t *testing.T) {
	results := []*models.DocumentResult{
		{DocumentID: "doc-1", URI: "/docs/one.md", ChunkID: "doc-1#2", Score: 0.87654, Text: "first hit", StartPos: 10, EndPos: 18},
		{DocumentID: "doc-2", ChunkID: "doc-2#0", Score: 0.5, Text: "second hit"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteQueryResults(&buf, "hit", 3*time.Millisecond, results, OutputText))
	out := buf.String()

	assert.Contains(t, out, "Found 2 results in 3ms")
	assert.Contains(t, out, "Rank: 1 | Score: 0.8765")
	assert.Contains(t, out, "Document: doc-1 (chunk doc-1#2, bytes 10-18)")
	assert.Contains(t, out, "Source: /docs/one.md")
	assert.Contains(t, out, "first hit")
	assert.Contains(t, out, "Rank: 2 | Score: 0.5000")
	assert.Equal(t, 1, strings.Count(out, "Source:"), "results without a URI print no source line")
}

func TestWriteItemResults(t *testing.T) {
	results := []*index.QueryResult{{
		Item:  &index.Item{ID: "a", Vector: []float64{1, 0}, Metadata: metadata.Metadata{"lang": metadata.String("go"), "n": metadata.Number(2)}},
		Score: 1,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteItemResults(&buf, results, OutputText))
	assert.Equal(t, "1. a  score=1.0000  lang=go n=2\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteItemResults(&buf, nil, OutputJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteItems(t *testing.T) {
	items := []*index.Item{
		{ID: "a", Vector: []float64{1, 2, 3}, Metadata: metadata.Metadata{"k": metadata.Bool(true)}},
		{ID: "b", Vector: []float64{1, 2, 3}, MetadataFile: "b.json"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteItems(&buf, items, OutputText))
	assert.Equal(t, "a  dim=3  k=true\nb  dim=3    (metadata in b.json)\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteItems(&buf, items, OutputJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "b.json", decoded[1]["metadataFile"])
}

func TestWriteDocuments(t *testing.T) {
	docs := []*models.Document{
		{ID: "file-1", URI: "/docs/a.md", DocType: "md", Text: "secret body", Size: 11},
		{ID: "note"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteDocuments(&buf, docs, OutputText))
	assert.Equal(t, "file-1  /docs/a.md  [md]\nnote\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteDocuments(&buf, docs, OutputJSON))
	assert.NotContains(t, buf.String(), "secret body")
	var decoded []DocumentSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, int64(11), decoded[0].Size)
}

func TestWriteStats(t *testing.T) {
	stats := &StatsOutput{
		Stats: &indexer.Stats{
			Version:        1,
			MetadataConfig: index.MetadataConfig{Indexed: []string{"documentId"}},
			Documents:      2,
			Chunks:         5,
			Items:          5,
		},
		Folder:    "/data/index",
		DiskBytes: 2048,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteStats(&buf, stats, OutputText))
	out := buf.String()
	assert.Contains(t, out, "Index folder:   /data/index")
	assert.Contains(t, out, "Indexed fields: documentId")
	assert.Contains(t, out, "Documents:      2")
	assert.Contains(t, out, "Disk usage:     2.0 KiB")

	buf.Reset()
	require.NoError(t, WriteStats(&buf, stats, OutputJSON))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 5, decoded["chunks"])
	assert.EqualValues(t, 2048, decoded["disk_bytes"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.n))
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		s        string
		maxWords int
		want     string
	}{
		{"one two three", 5, "one two three"},
		{"one two three", 3, "one two three"},
		{"one two three four", 2, "one two..."},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := TruncateWords(tt.s, tt.maxWords); got != tt.want {
			t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
		}
	}
}
