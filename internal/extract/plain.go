package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain returns content as text. A leading byte order mark is dropped and invalid
// UTF-8 sequences become the replacement character. Content with a NUL byte near the start
// is treated as binary and yields no text.
func extractPlain(content []byte) (string, error) {
	if bytes.IndexByte(content[:min(len(content), binarySniffLen)], 0) >= 0 {
		return "", nil
	}
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return string(content), nil
}
