package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("Hello world\nLine 2"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Hello world\nLine 2" {
		t.Errorf("got %q", got.Text)
	}
	if got.DocType != "" {
		t.Errorf("DocType = %q", got.DocType)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello\x80world"), ".rst")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "hello�world" {
		t.Errorf("got %q", got.Text)
	}
	if got.DocType != "rst" {
		t.Errorf("DocType = %q", got.DocType)
	}
}

func TestExtractBytes_plainBOMAndBinary(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("\xEF\xBB\xBFtitle"), ".md")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "title" {
		t.Errorf("BOM not stripped: %q", got.Text)
	}

	got, err = e.ExtractBytes([]byte("ELF\x00\x01\x02text"), ".bin")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "" {
		t.Errorf("binary content should yield no text, got %q", got.Text)
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".XLSX")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Text != "Sheet1\nTitle\nValue 1\tValue 2" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtractBytes_badPDF(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("not a pdf"), ".pdf"); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("# File content"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "# File content" || got.DocType != "md" {
		t.Errorf("got %+v", got)
	}
}

func TestExtract_sizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewExtractor(WithMaxBytes(5)).Extract(path); err == nil {
		t.Error("expected error for file over the limit")
	}
	if _, err := NewExtractor(WithMaxBytes(0)).Extract(path); err != nil {
		t.Errorf("non-positive limit should keep the default: %v", err)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestDocType(t *testing.T) {
	tests := map[string]string{
		".go":  "go",
		".PY":  "py",
		"md":   "md",
		".rs":  "rust",
		".hpp": "cpp",
		".tex": "latex",
		".pdf": "",
		"":     "",
	}
	for ext, want := range tests {
		if got := DocType(ext); got != want {
			t.Errorf("DocType(%q) = %q, want %q", ext, got, want)
		}
	}
}
