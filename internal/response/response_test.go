package response

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/query"
)

func servicesMapping(t *testing.T) *mapping.Mapping {
	t.Helper()
	raw := map[string]any{
		"_meta": map[string]any{"doc_type": "services"},
		"properties": map[string]any{
			"text_serviceName":    map[string]any{"type": "text"},
			"text_serviceSummary": map[string]any{"type": "text"},
			"filter_lot":          map[string]any{"type": "keyword"},
			"agg_lot":             map[string]any{"type": "keyword"},
			"sortonly_idHash":     map[string]any{"type": "keyword"},
		},
	}
	m, err := mapping.Compile(raw, "services")
	require.NoError(t, err)
	return m
}

func parsedRequest(t *testing.T, rawQuery string) *query.Request {
	t.Helper()
	params, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	req, err := query.ParseRequest(params, params["aggregations"])
	require.NoError(t, err)
	return req
}

func TestConvertResults_StripsStoragePrefixes(t *testing.T) {
	resp := &engine.SearchResponse{
		Took:  5,
		Total: 1,
		Hits: []engine.Hit{{
			ID: "123",
			Source: map[string]any{
				"text_serviceName": "Email hosting",
				"filter_lot":       "saas",
				"sortonly_idHash":  "abc",
			},
		}},
	}

	out := ConvertResults(servicesMapping(t), resp, parsedRequest(t, "q=email"), 100)

	require.Len(t, out.Documents, 1)
	doc := out.Documents[0]
	assert.Equal(t, "123", doc["id"])
	assert.Equal(t, "Email hosting", doc["serviceName"])

	// Filter and sort-only copies are internal.
	assert.NotContains(t, doc, "lot")
	assert.NotContains(t, doc, "filter_lot")
	assert.NotContains(t, doc, "idHash")
}

func TestConvertResults_Meta(t *testing.T) {
	resp := &engine.SearchResponse{Took: 12, Total: 250}
	out := ConvertResults(servicesMapping(t), resp, parsedRequest(t, "q=cloud&page=2"), 100)

	assert.Equal(t, 250, out.Meta.Total)
	assert.Equal(t, 12, out.Meta.Took)
	assert.Equal(t, 100, out.Meta.ResultsPerPage)
	assert.Equal(t, "cloud", out.Meta.Query["q"])
	assert.Equal(t, "2", out.Meta.Query["page"])
}

func TestConvertResults_IDOnlyDropsEverythingButID(t *testing.T) {
	resp := &engine.SearchResponse{
		Total: 1,
		Hits: []engine.Hit{{
			ID:     "42",
			Source: map[string]any{"text_serviceName": "x"},
			Highlight: map[string][]string{
				"text_serviceName": {"<mark>x</mark>"},
			},
		}},
	}

	out := ConvertResults(servicesMapping(t), resp, parsedRequest(t, "idOnly="), 100)
	assert.Equal(t, []map[string]any{{"id": "42"}}, out.Documents)
}

func TestConvertResults_HighlightKeysAreLogicalNames(t *testing.T) {
	resp := &engine.SearchResponse{
		Total: 1,
		Hits: []engine.Hit{{
			ID:     "1",
			Source: map[string]any{"text_serviceName": "Email hosting"},
			Highlight: map[string][]string{
				"text_serviceName": {"<em>Email</em> hosting"},
			},
		}},
	}

	out := ConvertResults(servicesMapping(t), resp, parsedRequest(t, "q=email"), 100)
	highlight := out.Documents[0]["highlight"].(map[string][]string)
	assert.Equal(t, []string{"<em>Email</em> hosting"}, highlight["serviceName"])
	assert.NotContains(t, highlight, "text_serviceName")
}

func TestConvertResults_Aggregations(t *testing.T) {
	resp := &engine.SearchResponse{
		Total: 30,
		Aggregations: map[string]engine.Aggregation{
			"lot": {Buckets: []engine.Bucket{
				{Key: "saas", DocCount: 20},
				{Key: "paas", DocCount: 10},
			}},
		},
	}

	out := ConvertResults(servicesMapping(t), resp, parsedRequest(t, "aggregations=lot"), 100)
	assert.Equal(t, map[string]int{"saas": 20, "paas": 10}, out.Aggregations["lot"])
}

func TestConvertResults_NumericBucketKeys(t *testing.T) {
	resp := &engine.SearchResponse{
		Aggregations: map[string]engine.Aggregation{
			"lot": {Buckets: []engine.Bucket{{Key: float64(3), DocCount: 7}}},
		},
	}

	out := ConvertResults(servicesMapping(t), resp, parsedRequest(t, ""), 100)
	assert.Equal(t, map[string]int{"3": 7}, out.Aggregations["lot"])
}

func TestPaginationLinks(t *testing.T) {
	m := servicesMapping(t)

	// Middle page has both neighbours.
	out := ConvertResults(m, &engine.SearchResponse{Total: 350},
		parsedRequest(t, "q=cloud&page=2"), 100)
	assert.Equal(t, "?page=1&q=cloud", out.Links["prev"])
	assert.Equal(t, "?page=3&q=cloud", out.Links["next"])

	// First page of a short result set has no links at all.
	out = ConvertResults(m, &engine.SearchResponse{Total: 50},
		parsedRequest(t, "q=cloud"), 100)
	assert.Nil(t, out.Links)

	// Last page only links backwards.
	out = ConvertResults(m, &engine.SearchResponse{Total: 350},
		parsedRequest(t, "q=cloud&page=4"), 100)
	assert.Equal(t, "?page=3&q=cloud", out.Links["prev"])
	assert.NotContains(t, out.Links, "next")
}

func TestConvertStatus(t *testing.T) {
	stats := map[string]any{
		"indices": map[string]any{
			"g-cloud-9": map[string]any{
				"primaries": map[string]any{
					"docs":  map[string]any{"count": float64(10500)},
					"store": map[string]any{"size": "25mb"},
				},
			},
		},
	}
	info := map[string]any{
		"g-cloud-9": map[string]any{
			"aliases": map[string]any{
				"g-cloud": map[string]any{},
			},
			"mappings": map[string]any{
				"_meta": map[string]any{
					"version":                  "9.0.0",
					"generated_from_framework": "g-cloud-9",
				},
			},
			"settings": map[string]any{
				"index": map[string]any{"max_result_window": "10000"},
			},
		},
	}

	status := ConvertStatus("g-cloud-9", stats, info)
	assert.Equal(t, float64(10500), status["num_docs"])
	assert.Equal(t, "25mb", status["primary_size"])
	assert.Equal(t, "9.0.0", status["mapping_version"])
	assert.Equal(t, "g-cloud-9", status["mapping_generated_from_framework"])
	assert.Equal(t, "10000", status["max_result_window"])
	assert.Equal(t, []string{"g-cloud"}, status["aliases"])
}

func TestConvertStatus_MissingFieldsDegradeToNull(t *testing.T) {
	status := ConvertStatus("g-cloud-9", map[string]any{}, map[string]any{})

	for _, key := range []string{
		"num_docs", "primary_size", "mapping_version",
		"mapping_generated_from_framework", "max_result_window",
	} {
		assert.Nil(t, status[key], key)
	}
	assert.Equal(t, []string{}, status["aliases"])
}
