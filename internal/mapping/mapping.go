package mapping

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/validator"
)

// Storage-key category prefixes. Every physical field in an index mapping
// carries exactly one of these; the prefix decides how the query compiler may
// use the field. Keys without a recognized prefix are discarded at compile
// time and never indexed.
const (
	PrefixText         = "text"
	PrefixFilter       = "filter"
	PrefixAggregatable = "agg"
	PrefixSortOnly     = "sortonly"
)

// prefixSeparator joins a category prefix to a logical field name in a
// physical storage key, e.g. "filter_lot".
const prefixSeparator = "_"

// IDField is the logical identifier field of every document.
const IDField = "id"

// TieBreakField is the logical name of the deterministic secondary sort key
// derived from the document identifier.
const TieBreakField = "idHash"

// TieBreakKey is the physical storage key of the tie-break digest.
var TieBreakKey = StorageKey(PrefixSortOnly, TieBreakField)

// StorageKey builds the physical storage key for a field under a category prefix.
func StorageKey(prefix, field string) string {
	return prefix + prefixSeparator + field
}

// Transform rule types.
const (
	RuleAppendConditionally = "append_conditionally"
	RuleSetConditionally    = "set_conditionally"
	RuleHashTo              = "hash_to"
)

// TransformRule is a single declarative ingestion transformation. Rules run
// in declaration order against a shared working copy of the document, so
// later rules observe earlier rules' output.
type TransformRule struct {
	Type        string   `json:"type" validate:"required,oneof=append_conditionally set_conditionally hash_to"`
	Field       string   `json:"field" validate:"required"`
	TargetField string   `json:"target_field,omitempty"`
	AnyOf       []string `json:"any_of,omitempty"`
	AppendValue []any    `json:"append_value,omitempty"`
	SetValue    any      `json:"set_value,omitempty"`
}

// Target returns the field the rule writes to, defaulting to the source field.
func (r TransformRule) Target() string {
	if r.TargetField != "" {
		return r.TargetField
	}
	return r.Field
}

// Mapping is the compiled form of an index's schema definition: which
// logical fields belong to which category, how inbound documents are
// transformed, and how results are ordered. Compiled once per
// (index, document type) and never mutated afterwards.
type Mapping struct {
	DocType                string
	Version                string
	GeneratedFromFramework string

	// Sorted logical field names per category.
	FilterFields       []string
	TextFields         []string
	AggregatableFields []string
	SortOnlyFields     []string

	TransformRules []TransformRule

	// SortClause is the engine sort specification, guaranteeing a
	// deterministic total order for paginated results.
	SortClause []any

	prefixesByField map[string][]string
	filterSet       map[string]struct{}
	textSet         map[string]struct{}
	aggSet          map[string]struct{}
}

// rawMappings mirrors the engine-stored mapping document.
type rawMappings struct {
	Meta struct {
		DocType                string          `json:"doc_type"`
		Version                string          `json:"version"`
		GeneratedFromFramework string          `json:"generated_from_framework"`
		Transformations        []TransformRule `json:"transformations"`
		SortClause             []any           `json:"sort_clause"`
	} `json:"_meta"`
	Properties map[string]any `json:"properties"`
}

// Compile turns a raw mapping document (the engine's mappings sub-document:
// properties plus _meta) into a Mapping for the given document type. It
// fails with a not-found error when the mapping serves a different document
// type, matching the behaviour for an index with no mapping at all.
func Compile(raw map[string]any, docType string) (*Mapping, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("compile mapping: marshal: %w", err)
	}
	var parsed rawMappings
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("compile mapping: unmarshal: %w", err)
	}

	if parsed.Meta.DocType != docType {
		return nil, apperrors.NotFound(fmt.Sprintf("mapping for document type %q not found", docType))
	}

	for i, rule := range parsed.Meta.Transformations {
		if err := validator.Validate(rule); err != nil {
			return nil, fmt.Errorf("compile mapping: transformation %d: %w", i, err)
		}
	}

	m := &Mapping{
		DocType:                parsed.Meta.DocType,
		Version:                parsed.Meta.Version,
		GeneratedFromFramework: parsed.Meta.GeneratedFromFramework,
		TransformRules:         parsed.Meta.Transformations,
		SortClause:             parsed.Meta.SortClause,
		prefixesByField:        make(map[string][]string),
		filterSet:              make(map[string]struct{}),
		textSet:                make(map[string]struct{}),
		aggSet:                 make(map[string]struct{}),
	}

	for key := range parsed.Properties {
		prefix, field, ok := strings.Cut(key, prefixSeparator)
		if !ok || field == "" {
			continue
		}
		switch prefix {
		case PrefixText:
			m.TextFields = append(m.TextFields, field)
			m.textSet[field] = struct{}{}
		case PrefixFilter:
			m.FilterFields = append(m.FilterFields, field)
			m.filterSet[field] = struct{}{}
		case PrefixAggregatable:
			m.AggregatableFields = append(m.AggregatableFields, field)
			m.aggSet[field] = struct{}{}
		case PrefixSortOnly:
			m.SortOnlyFields = append(m.SortOnlyFields, field)
		default:
			// Unrecognized prefix: the key is invisible to the compiler.
			continue
		}
		m.prefixesByField[field] = append(m.prefixesByField[field], prefix)
	}

	sort.Strings(m.FilterFields)
	sort.Strings(m.TextFields)
	sort.Strings(m.AggregatableFields)
	sort.Strings(m.SortOnlyFields)
	for _, prefixes := range m.prefixesByField {
		sort.Strings(prefixes)
	}

	if len(m.SortClause) == 0 {
		m.SortClause = []any{
			map[string]any{"_score": "desc"},
			map[string]any{TieBreakKey: "desc"},
		}
	}

	return m, nil
}

// PrefixesFor returns the category prefixes a logical field appears under.
func (m *Mapping) PrefixesFor(field string) []string {
	return m.prefixesByField[field]
}

// IsFilterField reports whether the field is eligible for exact-match filtering.
func (m *Mapping) IsFilterField(field string) bool {
	_, ok := m.filterSet[field]
	return ok
}

// IsTextField reports whether the field is eligible for full-text search.
func (m *Mapping) IsTextField(field string) bool {
	_, ok := m.textSet[field]
	return ok
}

// IsAggregatableField reports whether the field is eligible for term aggregation.
func (m *Mapping) IsAggregatableField(field string) bool {
	_, ok := m.aggSet[field]
	return ok
}

// TextStorageKeys returns the physical storage keys of all text-category
// fields, in sorted order.
func (m *Mapping) TextStorageKeys() []string {
	keys := make([]string, 0, len(m.TextFields))
	for _, field := range m.TextFields {
		keys = append(keys, StorageKey(PrefixText, field))
	}
	return keys
}
