package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
)

// DefaultMaxResultWindow mirrors Elasticsearch's default deep-pagination
// limit.
const DefaultMaxResultWindow = 10000

// Engine is an in-memory implementation of the SearchEngine interface. It
// interprets the query DSL subset emitted by the query compiler: match_all,
// simple_query_string with "and" semantics, bool must/filter/should, term
// clauses, terms aggregations, sort, pagination and highlighting.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	indexes map[string]*index
	aliases map[string]string

	// MaxResultWindow bounds from+size per search, as the real engine does.
	MaxResultWindow int
}

type index struct {
	definition map[string]any
	docs       map[string]map[string]any
	order      []string
}

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		indexes:         make(map[string]*index),
		aliases:         make(map[string]string),
		MaxResultWindow: DefaultMaxResultWindow,
	}
}

// resolve follows an alias to its concrete index. Callers must hold the lock.
func (e *Engine) resolve(name string) (string, *index, error) {
	if idx, ok := e.indexes[name]; ok {
		return name, idx, nil
	}
	if target, ok := e.aliases[name]; ok {
		if idx, ok := e.indexes[target]; ok {
			return target, idx, nil
		}
	}
	return "", nil, &engine.Error{
		StatusCode: 404,
		Type:       "index_not_found_exception",
		Reason:     fmt.Sprintf("no such index [%s]", name),
		Index:      name,
	}
}

func (e *Engine) Search(_ context.Context, name string, query map[string]any) (*engine.SearchResponse, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	resolved, idx, err := e.resolve(name)
	if err != nil {
		return nil, err
	}

	size := intValue(query["size"], 10)
	from := intValue(query["from"], 0)
	if from+size > e.MaxResultWindow {
		return nil, &engine.Error{
			StatusCode: 400,
			Type:       "search_phase_execution_exception",
			Reason: fmt.Sprintf(
				"Result window is too large, from + size must be less than or equal to: [%d] but was [%d]",
				e.MaxResultWindow, from+size),
			Index: resolved,
		}
	}

	matched := idx.match(query["query"])
	sortDocs(idx, matched, query["sort"])

	resp := &engine.SearchResponse{Total: len(matched)}

	if aggs, ok := query["aggs"].(map[string]any); ok {
		resp.Aggregations = aggregate(idx, matched, aggs)
	}

	start := from
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	includeSource := query["_source"] != false
	highlight, _ := query["highlight"].(map[string]any)

	for _, id := range matched[start:end] {
		hit := engine.Hit{ID: id}
		if includeSource {
			hit.Source = idx.docs[id]
			if highlight != nil {
				hit.Highlight = highlightDoc(idx.docs[id], query["query"], highlight)
			}
		}
		resp.Hits = append(resp.Hits, hit)
	}
	return resp, nil
}

func (e *Engine) Count(_ context.Context, name string, query map[string]any) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, idx, err := e.resolve(name)
	if err != nil {
		return 0, err
	}
	return len(idx.match(query["query"])), nil
}

func (e *Engine) Get(_ context.Context, name, id string) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	resolved, idx, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, notFound(resolved, id)
	}
	return doc, nil
}

func (e *Engine) Delete(_ context.Context, name, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, idx, err := e.resolve(name)
	if err != nil {
		return err
	}
	if _, ok := idx.docs[id]; !ok {
		return notFound(resolved, id)
	}
	delete(idx.docs, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	return nil
}

func (e *Engine) Index(_ context.Context, name, id string, document map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, idx, err := e.resolve(name)
	if err != nil {
		// The real engine auto-creates missing indexes on write.
		idx = newIndex(nil)
		e.indexes[name] = idx
	}
	if _, exists := idx.docs[id]; !exists {
		idx.order = append(idx.order, id)
	}
	idx.docs[id] = document
	return nil
}

func (e *Engine) CreateIndex(_ context.Context, name string, definition map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.indexes[name]; exists {
		return &engine.Error{
			StatusCode: 400,
			Type:       "resource_already_exists_exception",
			Reason:     fmt.Sprintf("index [%s] already exists", name),
			Index:      name,
		}
	}
	e.indexes[name] = newIndex(definition)
	return nil
}

func (e *Engine) DeleteIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, _, err := e.resolve(name)
	if err != nil {
		return err
	}
	delete(e.indexes, resolved)
	for alias, target := range e.aliases {
		if target == resolved {
			delete(e.aliases, alias)
		}
	}
	return nil
}

func (e *Engine) UpdateAlias(_ context.Context, alias, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.indexes[target]; !exists {
		return &engine.Error{
			StatusCode: 404,
			Type:       "index_not_found_exception",
			Reason:     fmt.Sprintf("no such index [%s]", target),
			Index:      target,
		}
	}
	e.aliases[alias] = target
	return nil
}

func (e *Engine) Refresh(_ context.Context, name string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, _, err := e.resolve(name)
	return err
}

func (e *Engine) Mapping(_ context.Context, name string) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	resolved, idx, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	mappings, ok := idx.definition["mappings"].(map[string]any)
	if !ok {
		return nil, &engine.Error{
			StatusCode: 404,
			Type:       "mapping_not_found_exception",
			Reason:     fmt.Sprintf("index [%s] has no mapping", resolved),
			Index:      resolved,
		}
	}
	return mappings, nil
}

func (e *Engine) Stats(_ context.Context, name string) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if name != "_all" {
		if _, _, err := e.resolve(name); err != nil {
			return nil, err
		}
	}
	indices := make(map[string]any)
	for idxName, idx := range e.indexes {
		if name != "_all" && idxName != e.concreteName(name) {
			continue
		}
		indices[idxName] = map[string]any{
			"primaries": map[string]any{
				"docs":  map[string]any{"count": float64(len(idx.docs))},
				"store": map[string]any{"size": fmt.Sprintf("%dkb", len(idx.docs))},
			},
		}
	}
	return map[string]any{"indices": indices}, nil
}

func (e *Engine) Info(_ context.Context, name string) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if name != "_all" {
		if _, _, err := e.resolve(name); err != nil {
			return nil, err
		}
	}
	out := make(map[string]any)
	for idxName, idx := range e.indexes {
		if name != "_all" && idxName != e.concreteName(name) {
			continue
		}
		aliases := make(map[string]any)
		for alias, target := range e.aliases {
			if target == idxName {
				aliases[alias] = map[string]any{}
			}
		}
		info := map[string]any{
			"aliases": aliases,
			"settings": map[string]any{
				"index": map[string]any{
					"max_result_window": strconv.Itoa(e.MaxResultWindow),
				},
			},
		}
		if mappings, ok := idx.definition["mappings"]; ok {
			info["mappings"] = mappings
		}
		out[idxName] = info
	}
	return out, nil
}

func (e *Engine) Ping(_ context.Context) error { return nil }

func (e *Engine) concreteName(name string) string {
	if target, ok := e.aliases[name]; ok {
		return target
	}
	return name
}

func newIndex(definition map[string]any) *index {
	if definition == nil {
		definition = make(map[string]any)
	}
	return &index{
		definition: definition,
		docs:       make(map[string]map[string]any),
	}
}

func notFound(index, id string) *engine.Error {
	return &engine.Error{
		StatusCode: 404,
		Type:       "document_missing_exception",
		Reason:     fmt.Sprintf("[%s]: document missing", id),
		Index:      index,
	}
}

// match returns the ids of documents satisfying the query clause, in
// insertion order.
func (idx *index) match(clause any) []string {
	var matched []string
	for _, id := range idx.order {
		if evalClause(idx.docs[id], clause) {
			matched = append(matched, id)
		}
	}
	return matched
}

func evalClause(doc map[string]any, clause any) bool {
	node, ok := clause.(map[string]any)
	if !ok {
		return true
	}
	switch {
	case node["match_all"] != nil:
		return true
	case node["simple_query_string"] != nil:
		return evalSimpleQueryString(doc, node["simple_query_string"].(map[string]any))
	case node["bool"] != nil:
		return evalBool(doc, node["bool"].(map[string]any))
	case node["term"] != nil:
		return evalTerm(doc, node["term"].(map[string]any))
	}
	return true
}

// evalSimpleQueryString requires, per the "and" default operator, that every
// term of the query appears in at least one of the listed fields.
func evalSimpleQueryString(doc map[string]any, clause map[string]any) bool {
	keywords, _ := clause["query"].(string)
	fields := fieldList(clause["fields"])

	for _, term := range strings.Fields(strings.ToLower(keywords)) {
		found := false
		for _, field := range fields {
			if text, ok := doc[field].(string); ok &&
				strings.Contains(strings.ToLower(text), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func evalBool(doc map[string]any, clause map[string]any) bool {
	for _, sub := range clauseList(clause["must"]) {
		if !evalClause(doc, sub) {
			return false
		}
	}
	for _, sub := range clauseList(clause["filter"]) {
		if !evalClause(doc, sub) {
			return false
		}
	}
	if should := clauseList(clause["should"]); len(should) > 0 {
		for _, sub := range should {
			if evalClause(doc, sub) {
				return true
			}
		}
		return false
	}
	return true
}

func evalTerm(doc map[string]any, clause map[string]any) bool {
	for field, want := range clause {
		switch value := doc[field].(type) {
		case []any:
			for _, v := range value {
				if v == want {
					return true
				}
			}
			return false
		default:
			return value == want
		}
	}
	return false
}

// sortDocs orders matched ids by the sort clause. Score clauses are skipped
// since relevance is not modelled; remaining keys compare document values as
// strings.
func sortDocs(idx *index, matched []string, clause any) {
	specs, ok := clause.([]any)
	if !ok {
		return
	}
	type sortKey struct {
		field string
		desc  bool
	}
	var keys []sortKey
	for _, spec := range specs {
		node, ok := spec.(map[string]any)
		if !ok {
			continue
		}
		for field, dir := range node {
			if field == "_score" {
				continue
			}
			order, _ := dir.(string)
			if nested, ok := dir.(map[string]any); ok {
				order, _ = nested["order"].(string)
			}
			keys = append(keys, sortKey{field: field, desc: order == "desc"})
		}
	}
	if len(keys) == 0 {
		return
	}

	sort.SliceStable(matched, func(i, j int) bool {
		di, dj := idx.docs[matched[i]], idx.docs[matched[j]]
		for _, key := range keys {
			vi := fmt.Sprintf("%v", di[key.field])
			vj := fmt.Sprintf("%v", dj[key.field])
			if vi == vj {
				continue
			}
			if key.desc {
				return vi > vj
			}
			return vi < vj
		}
		return false
	})
}

func aggregate(idx *index, matched []string, aggs map[string]any) map[string]engine.Aggregation {
	out := make(map[string]engine.Aggregation, len(aggs))
	for name, spec := range aggs {
		terms, ok := spec.(map[string]any)["terms"].(map[string]any)
		if !ok {
			continue
		}
		field, _ := terms["field"].(string)

		counts := make(map[any]int)
		var order []any
		for _, id := range matched {
			for _, value := range valueSlice(idx.docs[id][field]) {
				if counts[value] == 0 {
					order = append(order, value)
				}
				counts[value]++
			}
		}

		agg := engine.Aggregation{}
		for _, key := range order {
			agg.Buckets = append(agg.Buckets, engine.Bucket{Key: key, DocCount: counts[key]})
		}
		out[name] = agg
	}
	return out
}

// highlightDoc emulates the highlighter: fields containing a query term get
// the term wrapped in the configured tags, and fields with no match still
// yield a plain leading fragment when no_match_size asks for one.
func highlightDoc(doc map[string]any, queryClause any, highlight map[string]any) map[string][]string {
	fields, ok := highlight["fields"].(map[string]any)
	if !ok {
		return nil
	}
	pre := firstTag(highlight["pre_tags"])
	post := firstTag(highlight["post_tags"])
	terms := queryTerms(queryClause)

	out := make(map[string][]string)
	for field, spec := range fields {
		text, ok := doc[field].(string)
		if !ok {
			continue
		}
		if fragment, matched := markTerms(text, terms, pre, post); matched {
			out[field] = []string{fragment}
			continue
		}
		noMatchSize := 0
		if node, ok := spec.(map[string]any); ok {
			noMatchSize = intValue(node["no_match_size"], 0)
		}
		if noMatchSize > 0 {
			fragment := text
			if len(fragment) > noMatchSize {
				fragment = fragment[:noMatchSize]
			}
			out[field] = []string{fragment}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func markTerms(text string, terms []string, pre, post string) (string, bool) {
	matched := false
	for _, term := range terms {
		lower := strings.ToLower(text)
		pos := strings.Index(lower, term)
		if pos < 0 {
			continue
		}
		matched = true
		text = text[:pos] + pre + text[pos:pos+len(term)] + post + text[pos+len(term):]
	}
	return text, matched
}

func queryTerms(clause any) []string {
	node, ok := clause.(map[string]any)
	if !ok {
		return nil
	}
	if sqs, ok := node["simple_query_string"].(map[string]any); ok {
		keywords, _ := sqs["query"].(string)
		return strings.Fields(strings.ToLower(keywords))
	}
	if boolClause, ok := node["bool"].(map[string]any); ok {
		for _, sub := range clauseList(boolClause["must"]) {
			if terms := queryTerms(sub); terms != nil {
				return terms
			}
		}
	}
	return nil
}

func clauseList(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

func fieldList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstTag(raw any) string {
	switch v := raw.(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	case string:
		return v
	}
	return ""
}

func valueSlice(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

func intValue(raw any, fallback int) int {
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
