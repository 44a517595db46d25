package knowledge

import (
	"fmt"
	"strings"
)

// Default chunking geometry, in words. Words approximate tokens closely
// enough for retrieval purposes; the embedding model tokenizes on its own.
const (
	DefaultChunkWords   = 500
	DefaultOverlapWords = 50
)

// Chunker splits text into overlapping word windows. The overlap carries
// context across chunk boundaries so a sentence cut in half is still
// retrievable from either side.
type Chunker struct {
	chunkWords   int
	overlapWords int
}

// NewChunker creates a chunker. Non-positive sizes use the defaults; the
// overlap is clamped below the chunk size so the window always advances.
func NewChunker(chunkWords, overlapWords int) *Chunker {
	if chunkWords <= 0 {
		chunkWords = DefaultChunkWords
	}
	if overlapWords < 0 {
		overlapWords = DefaultOverlapWords
	}
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 10
	}
	return &Chunker{chunkWords: chunkWords, overlapWords: overlapWords}
}

// Split breaks text into chunk contents in document order. Whitespace runs
// collapse to single spaces; empty input yields no chunks.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.chunkWords - c.overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+c.chunkWords, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// ChunkID derives the stable document ID for one chunk of a source.
func ChunkID(sourceID string, index int) string {
	return fmt.Sprintf("%s#%d", sourceID, index)
}
