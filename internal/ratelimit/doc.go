// Package ratelimit keeps a sliding one-minute log of embedding requests.
//
// A Limiter sits on top of a Window. MemoryWindow serves a single process;
// RedisWindow keeps the log in a sorted set so several instances share one
// provider budget.
package ratelimit
