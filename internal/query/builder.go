package query

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
)

// Highlighting is pinned so downstream consumers can rely on the exact
// markup in highlighted fragments.
const (
	HighlightPreTag      = "<mark class='search-result-highlight'>"
	HighlightPostTag     = "</mark>"
	HighlightEncoder     = "html"
	HighlightNoMatchSize = 500
)

// maxAggregationBuckets caps the number of buckets returned per
// aggregated field.
const maxAggregationBuckets = 100

// Options controls the sizing of the compiled query body.
type Options struct {
	// PageSize is the number of hits per page. Zero compiles a count-only
	// body holding nothing but the query clause.
	PageSize int

	// IDOnlyMultiplier scales PageSize for idOnly requests. Values below
	// one are treated as one.
	IDOnlyMultiplier int
}

func errInvalidPage(v string) error {
	return apperrors.InvalidInput(fmt.Sprintf("Invalid page %q", v))
}

// Build compiles a parsed request into the engine's query DSL using the
// supplied mapping. The request never reaches the engine verbatim; every
// field reference is rewritten to its prefixed storage key.
func Build(m *mapping.Mapping, req *Request, opts Options) (map[string]any, error) {
	root := rootClause(m, req)

	if len(req.Aggregations) > 0 {
		aggs, err := aggregationClause(m, req.Aggregations)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"query": root,
			"aggs":  aggs,
			"size":  0,
		}, nil
	}

	if opts.PageSize == 0 {
		return map[string]any{"query": root}, nil
	}

	size := opts.PageSize
	if req.IDOnly && opts.IDOnlyMultiplier > 1 {
		size *= opts.IDOnlyMultiplier
	}

	body := map[string]any{
		"query": root,
		"size":  size,
		"sort":  m.SortClause,
	}
	if req.Page > 1 {
		body["from"] = (req.Page - 1) * size
	}
	if req.IDOnly {
		body["_source"] = false
	} else {
		body["highlight"] = highlightClause(m)
	}
	return body, nil
}

// rootClause combines the keyword match and the filter terms. With no
// filters the keyword clause stands alone.
func rootClause(m *mapping.Mapping, req *Request) map[string]any {
	keyword := keywordClause(m, req.Keywords)
	filters := filterClauses(m, req.Filters)
	if len(filters) == 0 {
		return keyword
	}
	return map[string]any{
		"bool": map[string]any{
			"must":   keyword,
			"filter": filters,
		},
	}
}

func keywordClause(m *mapping.Mapping, keywords string) map[string]any {
	if keywords == "" {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"simple_query_string": map[string]any{
			"query":            keywords,
			"fields":           m.TextStorageKeys(),
			"default_operator": "and",
		},
	}
}

// filterClauses turns the recognized filter parameters into term queries.
// A field whose single value contains a comma matches any of the
// comma-split parts; every other shape requires all values to match.
// Distinct fields always combine conjunctively. Fields the mapping does
// not list as filterable are ignored.
func filterClauses(m *mapping.Mapping, filters map[string][]string) []any {
	fields := make([]string, 0, len(filters))
	for field := range filters {
		if m.IsFilterField(field) {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	var clauses []any
	for _, field := range fields {
		values := filters[field]
		if len(values) == 1 && strings.Contains(values[0], ",") {
			var should []any
			for _, part := range strings.Split(values[0], ",") {
				should = append(should, termClause(field, part))
			}
			clauses = append(clauses, map[string]any{
				"bool": map[string]any{
					"should":               should,
					"minimum_should_match": 1,
				},
			})
			continue
		}
		for _, value := range values {
			clauses = append(clauses, termClause(field, value))
		}
	}
	return clauses
}

func termClause(field, value string) map[string]any {
	key := mapping.StorageKey(mapping.PrefixFilter, field)
	return map[string]any{
		"term": map[string]any{key: mapping.NormalizeTerm(value)},
	}
}

func aggregationClause(m *mapping.Mapping, fields []string) (map[string]any, error) {
	var unsupported []string
	for _, field := range fields {
		if !m.IsAggregatableField(field) {
			unsupported = append(unsupported, field)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"aggregations are not supported for: %s", strings.Join(unsupported, ", ")))
	}

	aggs := make(map[string]any, len(fields))
	for _, field := range fields {
		aggs[field] = map[string]any{
			"terms": map[string]any{
				"field": mapping.StorageKey(mapping.PrefixAggregatable, field),
				"size":  maxAggregationBuckets,
			},
		}
	}
	return aggs, nil
}

func highlightClause(m *mapping.Mapping) map[string]any {
	fields := make(map[string]any)
	for _, key := range m.TextStorageKeys() {
		fields[key] = map[string]any{"no_match_size": HighlightNoMatchSize}
	}
	return map[string]any{
		"encoder":   HighlightEncoder,
		"pre_tags":  []string{HighlightPreTag},
		"post_tags": []string{HighlightPostTag},
		"fields":    fields,
	}
}
