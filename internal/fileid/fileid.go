// Package fileid derives stable document ids from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file-"

// FileDocID returns a stable document ID for the given absolute path. The id only uses
// characters that are safe in file names, so chunk metadata side files keep readable names.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:16])
}

// IsFileDocID reports whether id was produced by FileDocID.
func IsFileDocID(id string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+32
}
