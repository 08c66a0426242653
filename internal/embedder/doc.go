// Package embedder generates fixed-width vector embeddings for lecture text.
//
// A Provider talks to one embedding backend (Gemini through the genai SDK,
// an OpenAI-compatible HTTP API, or a local feature-hashing model). A Client
// wraps a provider with the retry engine, an LRU cache and batching.
//
// # Basic Usage
//
//	provider, err := embedder.NewProvider(ctx, embedder.ProviderConfig{
//	    Provider: embedder.ProviderGemini,
//	    APIKey:   os.Getenv("GEMINI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := embedder.NewClient(provider, embedder.DefaultClientConfig(), logger, nil)
//	defer client.Close()
//
//	res := client.GenerateEmbedding(ctx, "The heart has four chambers.")
//	if !res.OK() {
//	    fmt.Println(res.Error, res.Permanent)
//	}
//
// # Batch Processing
//
// GenerateBatchEmbeddings splits input into batches of 100, embeds the items
// of a batch concurrently and waits one second between batches. Each item's
// result is independent and results keep input order:
//
//	results := client.GenerateBatchEmbeddings(ctx, texts)
//	for i, r := range results {
//	    if r.OK() {
//	        store(i, r.Embedding)
//	    }
//	}
//
// # Error Classification
//
// Rate limits (HTTP 429, RESOURCE_EXHAUSTED), timeouts and 5xx responses are
// retried, honoring Retry-After and RetryInfo delays. Malformed input and
// authentication failures fail on the first attempt.
//
// # Dimension Contract
//
// Vectors are always types.EmbeddingDimension wide. Providers are asked for
// that width; a longer vector is truncated and renormalized, a shorter one
// is a permanent error.
package embedder
