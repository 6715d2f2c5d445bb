// Package resourceid derives stable resource IDs for records that arrive without one.
package resourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	filePrefix = "file:"
	rowPrefix  = "res:"
	hashLen    = 16
)

// FromPath returns a stable ID for the flyer at the given absolute path.
// Same path always yields the same ID, so re-importing a file updates the same resource.
func FromPath(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return filePrefix + hex.EncodeToString(hash[:])[:hashLen]
}

// FromFields returns a stable ID for a record identified by the given fields, typically
// name, organization and address. Fields are compared case-insensitively with
// surrounding whitespace ignored. It returns "" when every field is blank.
func FromFields(fields ...string) string {
	parts := make([]string, len(fields))
	blank := true
	for i, f := range fields {
		parts[i] = strings.ToLower(strings.Join(strings.Fields(f), " "))
		if parts[i] != "" {
			blank = false
		}
	}
	if blank {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return rowPrefix + hex.EncodeToString(hash[:])[:hashLen]
}
