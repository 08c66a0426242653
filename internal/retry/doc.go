// Package retry executes operations under a declarative retry policy and a
// per-operation circuit breaker.
//
// Every network and database call in studysearch goes through Execute. The
// policy's classifier turns raw errors into an ErrorKind exactly once, so
// callers above this package never inspect provider-specific error fields:
//
//	res := retry.Execute(ctx, policy, "embed", func(ctx context.Context) ([]float32, error) {
//	    return provider.Embed(ctx, text, embedder.TaskQuery)
//	})
//	if !res.OK() {
//	    log.Warn().Str("kind", res.Err.Kind.String()).Msg("embedding failed")
//	}
//
// # Backoff
//
// The delay before retry n (zero-indexed) is min(MaxDelay, BaseDelay *
// Multiplier^n). A RetryAfter carried by a transient classification replaces
// the computed value for that attempt.
//
// # Circuit Breaker
//
// A Breaker shared across callers opens after Threshold consecutive
// infrastructure failures within Window. While open, Execute returns a
// KindCircuitOpen error without invoking the operation. After Cooldown one
// probe call is let through.
package retry
