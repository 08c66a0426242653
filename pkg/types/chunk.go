package types

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// EmbeddingDimension is the fixed length of every stored embedding vector.
const EmbeddingDimension = 1536

// Chunk is a unit of searchable text extracted from a source document.
type Chunk struct {
	// Identification
	ID               string
	SourceDocumentID string
	ChunkIndex       int  // 0-based, contiguous within a document
	PageNumber       *int // Nullable - plain text sources have no pages

	// Content
	Content    string // Whitespace-collapsed, newline-free
	TokenCount int
	WordCount  int
	CharCount  int // Rune count of Content

	// Nil until computed by the embedding service
	Embedding []float32
}

// ValidateContent checks the chunk content invariants.
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if strings.ContainsAny(c.Content, "\r\n") {
		return errors.New("chunk content must not contain line breaks")
	}

	if strings.Contains(c.Content, "  ") {
		return errors.New("chunk content must not contain doubled whitespace")
	}

	if c.ChunkIndex < 0 {
		return errors.New("chunk index must be non-negative")
	}

	if c.CharCount != utf8.RuneCountInString(c.Content) {
		return errors.New("char count does not match content length")
	}

	return nil
}

// HasEmbedding reports whether the chunk carries a vector of the stored dimension.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) == EmbeddingDimension
}
