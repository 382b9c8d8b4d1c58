// Package extract turns files into plain text for the ingestion pipeline.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes caps how much of a file is read.
const DefaultMaxBytes = 64 << 20

// Result is the text of a file plus the doc type used to pick split separators.
type Result struct {
	Text    string
	DocType string
}

// Extractor extracts plain text from document files.
type Extractor struct {
	maxBytes int64
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxBytes rejects files larger than n bytes. n <= 0 keeps the default.
func WithMaxBytes(n int64) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxBytes {
		return nil, fmt.Errorf("file %s is %d bytes, limit is %d", path, info.Size(), e.maxBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are read as
// plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Result, error) {
	ext = strings.ToLower(ext)
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".xlsx":
		text, err = extractExcel(content)
	default:
		text, err = extractPlain(content)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, DocType: DocType(ext)}, nil
}

// DocType maps a file extension to the doc type names used for splitting.
func DocType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "pdf", "xlsx", "txt", "":
		return ""
	case "h", "hpp", "cc", "cxx":
		return "cpp"
	case "rb":
		return "ruby"
	case "rs":
		return "rust"
	case "tex":
		return "latex"
	case "htm":
		return "html"
	}
	return ext
}
