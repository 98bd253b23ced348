package response

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/query"
)

// Results is the external shape of a search or aggregation response.
// Documents carry logical field names only; the prefixed storage keys never
// leave this package.
type Results struct {
	Meta         Meta                      `json:"meta"`
	Documents    []map[string]any          `json:"documents,omitempty"`
	Aggregations map[string]map[string]int `json:"aggregations,omitempty"`
	Links        map[string]string         `json:"links,omitempty"`
}

// Meta echoes the request and reports result totals.
type Meta struct {
	Query          map[string]any `json:"query"`
	Total          int            `json:"total"`
	Took           int            `json:"took"`
	ResultsPerPage int            `json:"results_per_page"`
}

// ConvertResults translates a raw engine response into the external shape.
// pageSize is the effective page size the engine was queried with, already
// including any idOnly scaling, and drives pagination links and
// results_per_page.
func ConvertResults(m *mapping.Mapping, resp *engine.SearchResponse, req *query.Request, pageSize int) *Results {
	out := &Results{
		Meta: Meta{
			Query:          echoParams(req.Params),
			Total:          resp.Total,
			Took:           resp.Took,
			ResultsPerPage: pageSize,
		},
		Documents: make([]map[string]any, 0, len(resp.Hits)),
	}

	for _, hit := range resp.Hits {
		out.Documents = append(out.Documents, convertHit(m, hit, req.IDOnly))
	}

	if len(resp.Aggregations) > 0 {
		out.Aggregations = convertAggregations(resp.Aggregations)
	}

	out.Links = paginationLinks(req, resp.Total, pageSize)
	return out
}

// convertHit strips storage prefixes from the hit. Only text fields are
// response-eligible; filter, aggregation and sort-only copies stay internal.
func convertHit(m *mapping.Mapping, hit engine.Hit, idOnly bool) map[string]any {
	doc := map[string]any{mapping.IDField: hit.ID}
	if idOnly {
		return doc
	}

	for _, field := range m.TextFields {
		if value, ok := hit.Source[mapping.StorageKey(mapping.PrefixText, field)]; ok {
			doc[field] = value
		}
	}

	if len(hit.Highlight) > 0 {
		highlight := make(map[string][]string, len(hit.Highlight))
		for key, fragments := range hit.Highlight {
			field, _ := cutStoragePrefix(key)
			highlight[field] = fragments
		}
		doc["highlight"] = highlight
	}
	return doc
}

func cutStoragePrefix(key string) (string, bool) {
	for _, prefix := range []string{
		mapping.PrefixText, mapping.PrefixFilter,
		mapping.PrefixAggregatable, mapping.PrefixSortOnly,
	} {
		full := mapping.StorageKey(prefix, "")
		if len(key) > len(full) && key[:len(full)] == full {
			return key[len(full):], true
		}
	}
	return key, false
}

func convertAggregations(aggs map[string]engine.Aggregation) map[string]map[string]int {
	out := make(map[string]map[string]int, len(aggs))
	for field, agg := range aggs {
		buckets := make(map[string]int, len(agg.Buckets))
		for _, b := range agg.Buckets {
			buckets[bucketKey(b.Key)] = b.DocCount
		}
		out[field] = buckets
	}
	return out
}

func bucketKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// paginationLinks builds prev/next links as query strings relative to the
// current resource, preserving every parameter except page.
func paginationLinks(req *query.Request, total, pageSize int) map[string]string {
	if pageSize <= 0 {
		return nil
	}
	page := req.Page
	if page == 0 {
		page = 1
	}
	maxPage := int(math.Ceil(float64(total) / float64(pageSize)))

	links := make(map[string]string, 2)
	if page > 1 {
		links["prev"] = pageLink(req.Params, page-1)
	}
	if page < maxPage {
		links["next"] = pageLink(req.Params, page+1)
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

func pageLink(params url.Values, page int) string {
	out := make(url.Values, len(params))
	for k, v := range params {
		out[k] = v
	}
	out.Set("page", strconv.Itoa(page))
	return "?" + out.Encode()
}

// echoParams flattens single-valued parameters for readability while keeping
// repeated parameters as lists.
func echoParams(params url.Values) map[string]any {
	echo := make(map[string]any, len(params))
	for key, values := range params {
		if len(values) == 1 {
			echo[key] = values[0]
			continue
		}
		echo[key] = append([]string(nil), values...)
	}
	return echo
}

// ConvertStatus extracts the externally reported status fields for one index
// from the engine's raw stats and info documents. Any field the engine does
// not report degrades to null (aliases to an empty list) rather than failing
// the whole status call.
func ConvertStatus(index string, stats, info map[string]any) map[string]any {
	indexStats := dig(stats, "indices", index)
	indexInfo := dig(info, index)
	meta := dig(indexInfo, "mappings", "_meta")

	aliases := []string{}
	if raw, ok := dig(indexInfo, "aliases").(map[string]any); ok {
		for alias := range raw {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
	}

	return map[string]any{
		"num_docs":                         dig(indexStats, "primaries", "docs", "count"),
		"primary_size":                     dig(indexStats, "primaries", "store", "size"),
		"mapping_version":                  dig(meta, "version"),
		"mapping_generated_from_framework": dig(meta, "generated_from_framework"),
		"max_result_window":                dig(indexInfo, "settings", "index", "max_result_window"),
		"aliases":                          aliases,
	}
}

// dig walks nested maps, returning nil as soon as a step is missing or not
// a map.
func dig(doc any, path ...string) any {
	current := doc
	for _, step := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = node[step]
	}
	return current
}
