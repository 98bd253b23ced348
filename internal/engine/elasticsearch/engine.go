package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
)

// Engine is an Elasticsearch-backed implementation of the SearchEngine interface.
type Engine struct {
	client *elasticsearch.Client
	logger *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Source    map[string]any      `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      any `json:"key"`
			DocCount int `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		RootCause []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
			Index  string `json:"index"`
		} `json:"root_cause"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine connected to the given URL.
// Transient transport failures are retried a bounded number of times with
// exponential backoff.
func New(esURL string, logger *slog.Logger) (*Engine, error) {
	retryBackoff := backoff.NewExponentialBackOff()

	cfg := elasticsearch.Config{
		Addresses:     []string{esURL},
		RetryOnStatus: []int{502, 503, 504},
		MaxRetries:    3,
		RetryBackoff: func(attempt int) time.Duration {
			if attempt == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Engine{client: client, logger: logger}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// Search executes a compiled query and returns the raw hits.
func (e *Engine) Search(ctx context.Context, index string, query map[string]any) (*engine.SearchResponse, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	resp := &engine.SearchResponse{
		Took:  esResp.Took,
		Total: esResp.Hits.Total.Value,
		Hits:  make([]engine.Hit, 0, len(esResp.Hits.Hits)),
	}
	for _, hit := range esResp.Hits.Hits {
		resp.Hits = append(resp.Hits, engine.Hit{
			ID:        hit.ID,
			Source:    hit.Source,
			Highlight: hit.Highlight,
		})
	}
	if len(esResp.Aggregations) > 0 {
		resp.Aggregations = make(map[string]engine.Aggregation, len(esResp.Aggregations))
		for field, agg := range esResp.Aggregations {
			buckets := make([]engine.Bucket, 0, len(agg.Buckets))
			for _, b := range agg.Buckets {
				buckets = append(buckets, engine.Bucket{Key: b.Key, DocCount: b.DocCount})
			}
			resp.Aggregations[field] = engine.Aggregation{Buckets: buckets}
		}
	}

	return resp, nil
}

// Count executes a count-only query and returns the matching document count.
func (e *Engine) Count(ctx context.Context, index string, query map[string]any) (int, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: marshal query: %w", err)
	}

	res, err := e.client.Count(
		e.client.Count.WithIndex(index),
		e.client.Count.WithBody(bytes.NewReader(data)),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return 0, decodeError("count", res)
	}

	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}
	return countResp.Count, nil
}

// Get fetches a single stored document by id.
func (e *Engine) Get(ctx context.Context, index, id string) (map[string]any, error) {
	res, err := e.client.Get(index, id, e.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("get", res)
	}

	var getResp struct {
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&getResp); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	return getResp.Source, nil
}

// Delete removes a single document by id. A missing document surfaces as an
// engine error with a 404 status.
func (e *Engine) Delete(ctx context.Context, index, id string) error {
	res, err := e.client.Delete(index, id, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("delete", res)
	}

	e.logger.Debug("deleted document", "index", index, "id", id)
	return nil
}

// Index adds or replaces a single document.
func (e *Engine) Index(ctx context.Context, index, id string, document map[string]any) error {
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		index,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("index", res)
	}

	e.logger.Debug("indexed document", "index", index, "id", id)
	return nil
}

// CreateIndex creates an index from a full schema definition.
func (e *Engine) CreateIndex(ctx context.Context, index string, definition map[string]any) error {
	data, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: marshal definition: %w", err)
	}

	res, err := e.client.Indices.Create(
		index,
		e.client.Indices.Create.WithBody(bytes.NewReader(data)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", index)
	return nil
}

// DeleteIndex removes an index.
func (e *Engine) DeleteIndex(ctx context.Context, index string) error {
	res, err := e.client.Indices.Delete(
		[]string{index},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", "index", index)
	return nil
}

// UpdateAlias points an alias at the target index. The alias is removed from
// any index it previously pointed at.
func (e *Engine) UpdateAlias(ctx context.Context, alias, target string) error {
	actions := map[string]any{
		"actions": []any{
			map[string]any{"remove": map[string]any{"index": "_all", "alias": alias, "must_exist": false}},
			map[string]any{"add": map[string]any{"index": target, "alias": alias}},
		},
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("elasticsearch update alias: marshal actions: %w", err)
	}

	res, err := e.client.Indices.UpdateAliases(
		bytes.NewReader(data),
		e.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch update alias: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("update alias", res)
	}

	e.logger.Info("elasticsearch alias updated", "alias", alias, "target", target)
	return nil
}

// Refresh makes recent writes visible to search.
func (e *Engine) Refresh(ctx context.Context, index string) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(index),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("refresh", res)
	}
	return nil
}

// Mapping returns the index's mapping metadata. Aliases are resolved by the
// engine, so the response is keyed by the concrete index name.
func (e *Engine) Mapping(ctx context.Context, index string) (map[string]any, error) {
	res, err := e.client.Indices.GetMapping(
		e.client.Indices.GetMapping.WithIndex(index),
		e.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get mapping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("get mapping", res)
	}

	var body map[string]struct {
		Mappings map[string]any `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch get mapping: decode response: %w", err)
	}
	for _, entry := range body {
		return entry.Mappings, nil
	}
	return nil, &engine.Error{StatusCode: 404, Type: "index_not_found_exception", Reason: "no mapping returned", Index: index}
}

// Stats returns the raw stats document for the index.
func (e *Engine) Stats(ctx context.Context, index string) (map[string]any, error) {
	res, err := e.client.Indices.Stats(
		e.client.Indices.Stats.WithIndex(index),
		e.client.Indices.Stats.WithHuman(),
		e.client.Indices.Stats.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch stats: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("stats", res)
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch stats: decode response: %w", err)
	}
	return body, nil
}

// Info returns the raw per-index metadata (settings, mappings, aliases).
func (e *Engine) Info(ctx context.Context, index string) (map[string]any, error) {
	res, err := e.client.Indices.Get(
		[]string{index},
		e.client.Indices.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("get index", res)
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch get index: decode response: %w", err)
	}
	return body, nil
}

// decodeError turns an Elasticsearch error response into an engine.Error,
// preferring the root cause so callers see "type: reason (index)" rather
// than transport internals.
func decodeError(op string, res *esapi.Response) error {
	engErr := &engine.Error{StatusCode: res.StatusCode}

	var errResp esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&errResp); err != nil {
		engErr.Reason = fmt.Sprintf("%s: unexpected status %s", op, res.Status())
		return engErr
	}

	engErr.Type = errResp.Error.Type
	engErr.Reason = errResp.Error.Reason
	if len(errResp.Error.RootCause) > 0 {
		root := errResp.Error.RootCause[0]
		engErr.Type = root.Type
		engErr.Reason = root.Reason
		engErr.Index = root.Index
	}
	if errResp.Status != 0 {
		engErr.StatusCode = errResp.Status
	}
	return engErr
}
