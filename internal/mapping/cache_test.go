package mapping

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
)

type fakeSource struct {
	mappings map[string]map[string]any
	fetches  atomic.Int64
}

func (s *fakeSource) Mapping(_ context.Context, index string) (map[string]any, error) {
	s.fetches.Add(1)
	raw, ok := s.mappings[index]
	if !ok {
		return nil, &engine.Error{StatusCode: 404, Type: "index_not_found_exception", Index: index}
	}
	return raw, nil
}

func TestCache_MemoizesCompiledMappings(t *testing.T) {
	src := &fakeSource{mappings: map[string]map[string]any{
		"g-cloud-9": servicesMappings(),
	}}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	ctx := context.Background()
	m1, err := cache.Get(ctx, "g-cloud-9", "services")
	require.NoError(t, err)
	m2, err := cache.Get(ctx, "g-cloud-9", "services")
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.EqualValues(t, 1, src.fetches.Load())
}

func TestCache_UnknownIndexIsNotFound(t *testing.T) {
	cache, err := NewCache(&fakeSource{}, 0)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "no-such-index", "services")
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryNotFound, apperrors.CategoryOf(err))
}

func TestCache_WrongDocTypeNotCached(t *testing.T) {
	src := &fakeSource{mappings: map[string]map[string]any{
		"g-cloud-9": servicesMappings(),
	}}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "g-cloud-9", "briefs")
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryNotFound, apperrors.CategoryOf(err))
}

func TestCache_InvalidateForcesRebuild(t *testing.T) {
	src := &fakeSource{mappings: map[string]map[string]any{
		"g-cloud-9": servicesMappings(),
	}}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cache.Get(ctx, "g-cloud-9", "services")
	require.NoError(t, err)

	cache.Invalidate("g-cloud-9")

	_, err = cache.Get(ctx, "g-cloud-9", "services")
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.fetches.Load())
}
