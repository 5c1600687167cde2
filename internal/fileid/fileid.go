// Package fileid provides deterministic IDs for page images and runs derived from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const pagePrefix = "page:"

// PageID returns a stable ID for the page image at the given path.
// Re-running the pipeline over the same input yields the same IDs, so ledger
// rows and index entries are replaced rather than duplicated.
func PageID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	hash := sha256.Sum256([]byte(filepath.Clean(abs)))
	return pagePrefix + hex.EncodeToString(hash[:12])
}
