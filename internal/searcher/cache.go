package searcher

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/studysearch/pkg/types"
)

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *types.SearchResponse
	expiresAt time.Time
}

// responseCache is an LRU of non-degraded responses with a TTL. A nil
// *responseCache caches nothing.
type responseCache struct {
	lru *lru.Cache[[32]byte, *cacheEntry]
	ttl time.Duration
	now func() time.Time
}

func newResponseCache(size int, ttl time.Duration, now func() time.Time) *responseCache {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		// lru.New only fails for a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &responseCache{lru: cache, ttl: ttl, now: now}
}

// get returns a deep copy of a live entry.
func (c *responseCache) get(key [32]byte) (*types.SearchResponse, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return copySearchResponse(entry.response), true
}

func (c *responseCache) put(key [32]byte, resp *types.SearchResponse) {
	if c == nil {
		return
	}
	c.lru.Add(key, &cacheEntry{
		response:  copySearchResponse(resp),
		expiresAt: c.now().Add(c.ttl),
	})
}

func (c *responseCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *responseCache) size() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *types.SearchResponse) *types.SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Pagination.NextOffset = copyPtr(src.Pagination.NextOffset)
	dst.Pagination.PrevOffset = copyPtr(src.Pagination.PrevOffset)
	if src.Error != nil {
		e := *src.Error
		dst.Error = &e
	}

	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		switch s := r.Source.(type) {
		case types.ChunkSource:
			s.PageNumber = copyPtr(s.PageNumber)
			r.Source = s
		case types.LectureSource:
			s.PublishedAt = copyPtr(s.PublishedAt)
			r.Source = s
		}
		dst.Results[i] = r
	}
	return &dst
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// computeQueryHash hashes the normalized request. Equivalent requests that
// differ only in query whitespace, letter case or course id order share a key.
func computeQueryHash(p params) [32]byte {
	var data strings.Builder
	data.WriteString(strings.Join(strings.Fields(strings.ToLower(p.query)), " "))

	courses := slices.Clone(p.filters.CourseIDs)
	slices.Sort(courses)
	fmt.Fprintf(&data, "|courses:%s", strings.Join(courses, ","))
	fmt.Fprintf(&data, "|category:%s", p.filters.Category)
	fmt.Fprintf(&data, "|from:%s|to:%s", formatTime(p.filters.DateFrom), formatTime(p.filters.DateTo))

	kinds := make([]string, len(p.kinds))
	for i, k := range p.kinds {
		kinds[i] = string(k)
	}
	fmt.Fprintf(&data, "|kinds:%s", strings.Join(kinds, ","))
	fmt.Fprintf(&data, "|limit:%d|offset:%d|boost:%t|weight:%g|min:%g",
		p.limit, p.offset, p.boost, p.vectorWeight, p.minSimilarity)

	return sha256.Sum256([]byte(data.String()))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
