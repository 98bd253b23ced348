package mapping

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
)

// Source provides raw mapping documents, typically the search engine's
// index-metadata endpoint.
type Source interface {
	Mapping(ctx context.Context, index string) (map[string]any, error)
}

// DefaultCacheSize bounds the number of compiled mappings held in memory.
// One entry per (index, document type) pair; indexes are few, so the bound
// exists only to keep retired indexes from accumulating.
const DefaultCacheSize = 128

// Cache memoizes compiled mappings per (index, document type) pair.
// Lookups are lock-free reads from the LRU; a miss triggers a fetch and
// compile that may run redundantly under concurrent first access.
// Compilation is a pure function of the schema, so duplicate builds are
// wasted work, not a correctness hazard.
type Cache struct {
	source Source
	lru    *lru.Cache[string, *Mapping]
}

// NewCache creates a mapping cache backed by the given source.
func NewCache(source Source, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[string, *Mapping](size)
	if err != nil {
		return nil, fmt.Errorf("mapping cache: %w", err)
	}
	return &Cache{source: source, lru: l}, nil
}

func cacheKey(index, docType string) string {
	return index + "/" + docType
}

// Get returns the compiled mapping for the (index, docType) pair, fetching
// and compiling it on first use. An index unknown to the engine, or one whose
// mapping serves a different document type, yields a not-found error.
func (c *Cache) Get(ctx context.Context, index, docType string) (*Mapping, error) {
	key := cacheKey(index, docType)
	if m, ok := c.lru.Get(key); ok {
		return m, nil
	}

	raw, err := c.source.Mapping(ctx, index)
	if err != nil {
		if engine.IsNotFound(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("mapping for index %q not found", index))
		}
		return nil, fmt.Errorf("fetch mapping for %s: %w", index, err)
	}

	m, err := Compile(raw, docType)
	if err != nil {
		return nil, err
	}

	c.lru.Add(key, m)
	return m, nil
}

// Invalidate drops any cached mappings for the index, forcing a rebuild on
// next use. Called when an index is created, deleted or re-aliased.
func (c *Cache) Invalidate(index string) {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, index+"/") {
			c.lru.Remove(key)
		}
	}
}
