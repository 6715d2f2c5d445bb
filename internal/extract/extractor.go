// Package extract pulls plain text out of resource flyers and tabular exports.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/tasuke/pkg/utils"
)

// ErrUnsupported is returned for file types with no text extractor.
var ErrUnsupported = errors.New("unsupported file type")

var extractors = map[string]func([]byte) (string, error){
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".xlsx": extractExcel,
	".txt":  extractPlain,
	".md":   extractPlain,
	".text": extractPlain,
	"":      extractPlain,
}

// Extractor extracts plain text from flyer files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has an extractor.
func (e *Extractor) Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// Extensions lists the supported extensions, sorted, with leading dots.
func (e *Extractor) Extensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its text with whitespace collapsed.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.Supported(ext) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := extractors[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", err
	}
	return utils.CollapseWhitespace(text), nil
}
