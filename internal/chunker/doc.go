// Package chunker divides lecture text into overlapping, token-bounded chunks
// for embedding and retrieval.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range c.Chunk(text, lectureID, nil) {
//	    fmt.Printf("chunk %d: %d tokens\n", chunk.ChunkIndex, chunk.TokenCount)
//	}
//
// # Chunking Strategy
//
// Text is whitespace-normalized, split into sentences and greedily packed
// into chunks of at most ChunkSizeTokens. Each new chunk starts with the last
// OverlapTokens worth of words of the previous one. A sentence that cannot
// fit is split at word boundaries. A trailing chunk smaller than
// MinChunkSizeTokens is merged into its predecessor.
//
// Periods after common abbreviations ("Dr.", "vs.", "approx.", "Fig.") and
// single-letter initials do not end a sentence.
//
// Token estimation uses words * TokensPerWord, rounded up.
package chunker
