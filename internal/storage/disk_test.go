package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "index")
	catalog := filepath.Join(dir, "catalog.db")

	files := map[string]string{
		"index/index.json":       "0123456789",
		"index/a.json":           "abc",
		"index/nested/deep.json": "xy",
		"catalog.db":             "hello",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{catalog}, 5},
		{"folder is summed recursively", []string{folder}, 15},
		{"folder and catalog", []string{folder, catalog}, 20},
		{"missing path is skipped", []string{catalog, filepath.Join(dir, "nonexistent")}, 5},
		{"empty path is skipped", []string{"", catalog}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes(%q) = %d, want %d", tt.paths, got, tt.want)
			}
		})
	}
}
