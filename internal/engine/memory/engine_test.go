package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
)

func seedEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()
	ctx := context.Background()

	require.NoError(t, e.CreateIndex(ctx, "g-cloud-9", map[string]any{
		"mappings": map[string]any{
			"_meta":      map[string]any{"doc_type": "services"},
			"properties": map[string]any{},
		},
	}))

	docs := []map[string]any{
		{
			"text_serviceName": "Cloud email hosting",
			"filter_lot":       "saas",
			"agg_lot":          "SaaS",
			"sortonly_idHash":  "c",
		},
		{
			"text_serviceName": "Accounting software",
			"filter_lot":       "saas",
			"agg_lot":          "SaaS",
			"sortonly_idHash":  "a",
		},
		{
			"text_serviceName": "Cloud compute",
			"filter_lot":       "paas",
			"agg_lot":          "PaaS",
			"sortonly_idHash":  "b",
		},
	}
	for i, doc := range docs {
		require.NoError(t, e.Index(ctx, "g-cloud-9", string(rune('1'+i)), doc))
	}
	return e
}

func search(t *testing.T, e *Engine, query map[string]any) *engine.SearchResponse {
	t.Helper()
	resp, err := e.Search(context.Background(), "g-cloud-9", query)
	require.NoError(t, err)
	return resp
}

func TestSearch_MatchAll(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
	})
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Hits, 3)
}

func TestSearch_SimpleQueryStringIsConjunctive(t *testing.T) {
	e := seedEngine(t)

	resp := search(t, e, map[string]any{
		"query": map[string]any{
			"simple_query_string": map[string]any{
				"query":            "cloud email",
				"fields":           []string{"text_serviceName"},
				"default_operator": "and",
			},
		},
	})
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "1", resp.Hits[0].ID)
}

func TestSearch_TermFilter(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{"match_all": map[string]any{}},
				"filter": []any{
					map[string]any{"term": map[string]any{"filter_lot": "paas"}},
				},
			},
		},
	})
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "3", resp.Hits[0].ID)
}

func TestSearch_ShouldGroup(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{"match_all": map[string]any{}},
				"filter": []any{
					map[string]any{"bool": map[string]any{
						"should": []any{
							map[string]any{"term": map[string]any{"filter_lot": "saas"}},
							map[string]any{"term": map[string]any{"filter_lot": "paas"}},
						},
						"minimum_should_match": 1,
					}},
				},
			},
		},
	})
	assert.Equal(t, 3, resp.Total)
}

func TestSearch_SortByTieBreakDescending(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"sort": []any{
			map[string]any{"_score": "desc"},
			map[string]any{"sortonly_idHash": "desc"},
		},
	})

	var order []string
	for _, hit := range resp.Hits {
		order = append(order, hit.ID)
	}
	// idHash values c > b > a map to documents 1, 3, 2.
	assert.Equal(t, []string{"1", "3", "2"}, order)
}

func TestSearch_Pagination(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  2,
		"from":  2,
	})
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Hits, 1)
}

func TestSearch_ResultWindowOverflow(t *testing.T) {
	e := seedEngine(t)
	e.MaxResultWindow = 100

	_, err := e.Search(context.Background(), "g-cloud-9", map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  100,
		"from":  100,
	})
	require.Error(t, err)
	assert.True(t, engine.IsResultWindowTooLarge(err))
}

func TestSearch_Aggregations(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  0,
		"aggs": map[string]any{
			"lot": map[string]any{
				"terms": map[string]any{"field": "agg_lot", "size": 100},
			},
		},
	})

	require.Contains(t, resp.Aggregations, "lot")
	buckets := resp.Aggregations["lot"].Buckets
	counts := make(map[any]int)
	for _, b := range buckets {
		counts[b.Key] = b.DocCount
	}
	assert.Equal(t, map[any]int{"SaaS": 2, "PaaS": 1}, counts)
}

func TestSearch_HighlightMarksMatchedTerms(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{
			"simple_query_string": map[string]any{
				"query":            "email",
				"fields":           []string{"text_serviceName"},
				"default_operator": "and",
			},
		},
		"highlight": map[string]any{
			"pre_tags":  []string{"<mark>"},
			"post_tags": []string{"</mark>"},
			"fields": map[string]any{
				"text_serviceName": map[string]any{"no_match_size": 500},
			},
		},
	})

	require.Len(t, resp.Hits, 1)
	assert.Equal(t,
		[]string{"Cloud <mark>email</mark> hosting"},
		resp.Hits[0].Highlight["text_serviceName"],
	)
}

func TestSearch_HighlightTagsFromDecodedJSON(t *testing.T) {
	// A body that went through JSON decoding carries tags as []any.
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{
			"simple_query_string": map[string]any{
				"query":            "email",
				"fields":           []any{"text_serviceName"},
				"default_operator": "and",
			},
		},
		"highlight": map[string]any{
			"pre_tags":  []any{"<em>"},
			"post_tags": []any{"</em>"},
			"fields": map[string]any{
				"text_serviceName": map[string]any{},
			},
		},
	})

	require.Len(t, resp.Hits, 1)
	assert.Equal(t,
		[]string{"Cloud <em>email</em> hosting"},
		resp.Hits[0].Highlight["text_serviceName"],
	)
}

func TestSearch_HighlightNoMatchFragmentHasNoTags(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{"match_all": map[string]any{}},
				"filter": []any{
					map[string]any{"term": map[string]any{"filter_lot": "paas"}},
				},
			},
		},
		"highlight": map[string]any{
			"pre_tags":  []string{"<mark>"},
			"post_tags": []string{"</mark>"},
			"fields": map[string]any{
				"text_serviceName": map[string]any{"no_match_size": 500},
			},
		},
	})

	require.Len(t, resp.Hits, 1)
	assert.Equal(t,
		[]string{"Cloud compute"},
		resp.Hits[0].Highlight["text_serviceName"],
	)
}

func TestSearch_IDOnlyOmitsSource(t *testing.T) {
	resp := search(t, seedEngine(t), map[string]any{
		"query":   map[string]any{"match_all": map[string]any{}},
		"_source": false,
	})
	for _, hit := range resp.Hits {
		assert.Nil(t, hit.Source)
		assert.NotEmpty(t, hit.ID)
	}
}

func TestCount(t *testing.T) {
	n, err := seedEngine(t).Count(context.Background(), "g-cloud-9", map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{"match_all": map[string]any{}},
				"filter": []any{
					map[string]any{"term": map[string]any{"filter_lot": "saas"}},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetDeleteRoundTrip(t *testing.T) {
	e := seedEngine(t)
	ctx := context.Background()

	doc, err := e.Get(ctx, "g-cloud-9", "1")
	require.NoError(t, err)
	assert.Equal(t, "Cloud email hosting", doc["text_serviceName"])

	require.NoError(t, e.Delete(ctx, "g-cloud-9", "1"))

	_, err = e.Get(ctx, "g-cloud-9", "1")
	assert.True(t, engine.IsNotFound(err))

	err = e.Delete(ctx, "g-cloud-9", "1")
	assert.True(t, engine.IsNotFound(err))
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	e := seedEngine(t)
	err := e.CreateIndex(context.Background(), "g-cloud-9", nil)
	require.Error(t, err)
	assert.False(t, engine.IsNotFound(err))
}

func TestAliasResolution(t *testing.T) {
	e := seedEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpdateAlias(ctx, "g-cloud", "g-cloud-9"))

	resp, err := e.Search(ctx, "g-cloud", map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)

	err = e.UpdateAlias(ctx, "g-cloud", "missing")
	assert.True(t, engine.IsNotFound(err))
}

func TestMapping(t *testing.T) {
	e := seedEngine(t)
	ctx := context.Background()

	mappings, err := e.Mapping(ctx, "g-cloud-9")
	require.NoError(t, err)
	assert.Contains(t, mappings, "_meta")

	_, err = e.Mapping(ctx, "missing")
	assert.True(t, engine.IsNotFound(err))
}

func TestStatsAndInfo(t *testing.T) {
	e := seedEngine(t)
	ctx := context.Background()
	require.NoError(t, e.UpdateAlias(ctx, "g-cloud", "g-cloud-9"))

	stats, err := e.Stats(ctx, "g-cloud-9")
	require.NoError(t, err)
	indices := stats["indices"].(map[string]any)
	primaries := indices["g-cloud-9"].(map[string]any)["primaries"].(map[string]any)
	assert.Equal(t, float64(3), primaries["docs"].(map[string]any)["count"])

	info, err := e.Info(ctx, "g-cloud-9")
	require.NoError(t, err)
	idx := info["g-cloud-9"].(map[string]any)
	assert.Contains(t, idx["aliases"], "g-cloud")

	missing, err := e.Search(ctx, "nope", map[string]any{})
	assert.Nil(t, missing)
	assert.True(t, engine.IsNotFound(err))
}

func TestStatsAndInfo_UnknownIndexIsNotFound(t *testing.T) {
	e := seedEngine(t)
	ctx := context.Background()

	_, err := e.Stats(ctx, "missing")
	assert.True(t, engine.IsNotFound(err))

	_, err = e.Info(ctx, "missing")
	assert.True(t, engine.IsNotFound(err))

	// _all stays valid even when no index exists yet.
	stats, err := e.Stats(ctx, "_all")
	require.NoError(t, err)
	assert.Contains(t, stats["indices"], "g-cloud-9")
}
