package chunker

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dshills/studysearch/pkg/types"
)

const (
	// DefaultChunkSizeTokens is the target maximum token count per chunk
	DefaultChunkSizeTokens = 1000

	// DefaultOverlapTokens is the span shared by consecutive chunks
	DefaultOverlapTokens = 200

	// DefaultTokensPerWord is the heuristic for estimating tokens (words*1.3)
	DefaultTokensPerWord = 1.3

	// DefaultMinChunkSizeTokens is the size below which a trailing chunk is merged backward
	DefaultMinChunkSizeTokens = 100
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Config governs chunk sizing. It is fixed for the lifetime of a Chunker.
type Config struct {
	ChunkSizeTokens    int
	OverlapTokens      int
	TokensPerWord      float64
	MinChunkSizeTokens int
}

// DefaultConfig returns the standard chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSizeTokens:    DefaultChunkSizeTokens,
		OverlapTokens:      DefaultOverlapTokens,
		TokensPerWord:      DefaultTokensPerWord,
		MinChunkSizeTokens: DefaultMinChunkSizeTokens,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.ChunkSizeTokens <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSizeTokens)
	case c.OverlapTokens < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.OverlapTokens)
	case c.OverlapTokens >= c.ChunkSizeTokens:
		return fmt.Errorf("%w: overlap (%d) must be less than chunk size (%d)", ErrInvalidConfig, c.OverlapTokens, c.ChunkSizeTokens)
	case c.TokensPerWord <= 0 || math.IsNaN(c.TokensPerWord) || math.IsInf(c.TokensPerWord, 0):
		return fmt.Errorf("%w: tokens per word must be positive, got %v", ErrInvalidConfig, c.TokensPerWord)
	case c.MinChunkSizeTokens < 0:
		return fmt.Errorf("%w: minimum chunk size must not be negative, got %d", ErrInvalidConfig, c.MinChunkSizeTokens)
	}
	return nil
}

// Chunker splits normalized document text into overlapping, token-bounded
// chunks that respect sentence boundaries.
type Chunker struct {
	cfg          Config
	maxWords     int
	overlapWords int
}

// New creates a Chunker. The configuration is validated here so that no
// chunking call can fail on it later.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Chunker{cfg: cfg}

	c.maxWords = int(math.Floor(float64(cfg.ChunkSizeTokens) / cfg.TokensPerWord))
	for c.maxWords > 1 && c.EstimateWords(c.maxWords) > cfg.ChunkSizeTokens {
		c.maxWords--
	}
	if c.maxWords < 1 {
		c.maxWords = 1
	}

	if cfg.OverlapTokens > 0 {
		c.overlapWords = int(math.Floor(float64(cfg.OverlapTokens) / cfg.TokensPerWord))
		if c.overlapWords < 1 {
			c.overlapWords = 1
		}
	}
	if c.overlapWords >= c.maxWords {
		c.overlapWords = c.maxWords - 1
	}

	return c, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// EstimateWords returns the token estimate for n words, rounded up.
func (c *Chunker) EstimateWords(n int) int {
	if n <= 0 {
		return 0
	}
	// Round before ceiling so 10 * 1.3 is 13, not 14.
	est := float64(n) * c.cfg.TokensPerWord
	return int(math.Ceil(math.Round(est*1e6) / 1e6))
}

// EstimateTokens returns the token estimate for text.
func (c *Chunker) EstimateTokens(text string) int {
	return c.EstimateWords(len(strings.Fields(text)))
}

// Normalize collapses every run of whitespace to a single space and trims.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Page is one page of source text.
type Page struct {
	Number *int
	Text   string
}

// Chunk splits text into chunks for document docID. page is copied onto
// every chunk and may be nil.
func (c *Chunker) Chunk(text, docID string, page *int) []types.Chunk {
	return c.ChunkPages(docID, []Page{{Number: page, Text: text}})
}

// ChunkPages chunks each page independently and numbers the chunks
// contiguously across the whole document.
func (c *Chunker) ChunkPages(docID string, pages []Page) []types.Chunk {
	var chunks []types.Chunk
	for _, p := range pages {
		for _, words := range c.split(strings.Fields(p.Text)) {
			chunks = append(chunks, c.build(docID, len(chunks), p.Number, words))
		}
	}
	return chunks
}

func (c *Chunker) build(docID string, index int, page *int, words []string) types.Chunk {
	content := strings.Join(words, " ")

	var pageNumber *int
	if page != nil {
		n := *page
		pageNumber = &n
	}

	return types.Chunk{
		ID:               uuid.NewString(),
		SourceDocumentID: docID,
		ChunkIndex:       index,
		PageNumber:       pageNumber,
		Content:          content,
		TokenCount:       c.EstimateWords(len(words)),
		WordCount:        len(words),
		CharCount:        utf8.RuneCountInString(content),
	}
}

// pending is a chunk under construction. fresh counts the words that were
// not carried over from the previous chunk.
type pending struct {
	words []string
	fresh int
}

// split groups words into chunk word lists.
func (c *Chunker) split(words []string) [][]string {
	if len(words) == 0 {
		return nil
	}

	var out []pending
	cur := pending{}

	emit := func() {
		out = append(out, cur)
		tail := c.overlapWords
		if tail > len(cur.words) {
			tail = len(cur.words)
		}
		carried := make([]string, tail, c.maxWords)
		copy(carried, cur.words[len(cur.words)-tail:])
		cur = pending{words: carried}
	}

	for _, sentence := range splitSentences(words) {
		for len(sentence) > 0 {
			if len(cur.words)+len(sentence) <= c.maxWords {
				cur.words = append(cur.words, sentence...)
				cur.fresh += len(sentence)
				break
			}

			if cur.fresh > 0 {
				emit()
				continue
			}

			// Only carried overlap is left. Give up carried words, keeping at
			// least one so consecutive chunks still share a boundary, before
			// breaking a sentence that fits a chunk on its own.
			if len(sentence) <= c.maxWords {
				keep := max(c.maxWords-len(sentence), min(1, len(cur.words)))
				if keep < len(cur.words) {
					cur.words = cur.words[len(cur.words)-keep:]
					continue
				}
			}

			// No room even after trimming the overlap: split the sentence at
			// a word boundary.
			room := c.maxWords - len(cur.words)
			cur.words = append(cur.words, sentence[:room]...)
			cur.fresh += room
			sentence = sentence[room:]
		}
	}
	if cur.fresh > 0 {
		out = append(out, cur)
	}

	// Merge an undersized trailing chunk into its predecessor. Only the
	// fresh words move; the carried words already end the previous chunk.
	if n := len(out); n > 1 && c.EstimateWords(len(out[n-1].words)) < c.cfg.MinChunkSizeTokens {
		last := out[n-1]
		prev := &out[n-2]
		prev.words = append(prev.words, last.words[len(last.words)-last.fresh:]...)
		out = out[:n-1]
	}

	result := make([][]string, len(out))
	for i, p := range out {
		result[i] = p.words
	}
	return result
}
