package indexer

import (
	"strings"
)

// Chunker splits long resource text into overlapping word windows for embedding.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
// A size of zero or less disables chunking.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into windows of at most chunkSize words, each starting
// chunkSize-chunkOverlap words after the previous. Text that fits in one window
// is returned as a single chunk with whitespace collapsed.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if c.chunkSize <= 0 || len(words) <= c.chunkSize {
		return []string{strings.Join(words, " ")}
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := min(i+c.chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return chunks
}
