package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
)

// Transform converts a raw inbound document into its engine-ready form: the
// mapping's transformation rules run in declaration order against a working
// copy, then every field the mapping recognizes is fanned out to each of its
// category-prefixed storage keys. Fields with no recognized category are
// dropped. The identifier, when present, additionally yields the sort-only
// tie-break digest so every document has a deterministic secondary sort key.
func Transform(m *mapping.Mapping, raw map[string]any) map[string]any {
	working := make(map[string]any, len(raw))
	for k, v := range raw {
		working[k] = v
	}

	for _, rule := range m.TransformRules {
		applyRule(rule, working)
	}

	out := make(map[string]any)
	for field, value := range working {
		for _, prefix := range m.PrefixesFor(field) {
			if prefix == mapping.PrefixFilter {
				out[mapping.StorageKey(prefix, field)] = normalizeValue(value)
			} else {
				out[mapping.StorageKey(prefix, field)] = value
			}
		}
	}

	if id, ok := raw[mapping.IDField]; ok {
		out[mapping.TieBreakKey] = HashString(stringify(id))
	}

	return out
}

// applyRule mutates the working document according to a single rule. A rule
// whose source field is absent is a no-op.
func applyRule(rule mapping.TransformRule, working map[string]any) {
	source, ok := working[rule.Field]
	if !ok {
		return
	}

	switch rule.Type {
	case mapping.RuleAppendConditionally:
		if !anyValueMatches(source, rule.AnyOf) {
			return
		}
		target := valueList(working[rule.Target()])
		// Deliberately no dedup: a rule that fires against a document already
		// containing the value appends another copy. Several rule sets rely
		// on triggering the same append from different source conditions.
		working[rule.Target()] = append(target, rule.AppendValue...)

	case mapping.RuleSetConditionally:
		if !anyValueMatches(source, rule.AnyOf) {
			return
		}
		working[rule.Target()] = rule.SetValue

	case mapping.RuleHashTo:
		working[rule.Target()] = HashString(stringify(source))
	}
}

// anyValueMatches reports whether any element of the (possibly list-typed)
// source value equals any of the rule's trigger values.
func anyValueMatches(source any, anyOf []string) bool {
	for _, v := range valueList(source) {
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, trigger := range anyOf {
			if s == trigger {
				return true
			}
		}
	}
	return false
}

// valueList treats scalars as single-element lists, matching how list-typed
// fields behave element-wise elsewhere. A nil value is an empty list.
func valueList(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(vv))
		copy(out, vv)
		return out
	default:
		return []any{v}
	}
}

// normalizeValue applies the filter-term normalization to string values,
// element-wise for lists. Non-string values are stored verbatim.
func normalizeValue(v any) any {
	switch vv := v.(type) {
	case string:
		return mapping.NormalizeTerm(vv)
	case []any:
		out := make([]any, len(vv))
		for i, el := range vv {
			out[i] = normalizeValue(el)
		}
		return out
	default:
		return v
	}
}

// HashString returns the lowercase hex sha256 digest of the string.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
