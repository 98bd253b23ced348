package mapping

import "strings"

// NormalizeTerm reduces a filter term to its canonical stored form:
// lowercased with everything but letters and digits removed. Applied to
// filter-category values at both ingestion and query time, so exact-match
// filtering is insensitive to case, whitespace and punctuation.
func NormalizeTerm(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
