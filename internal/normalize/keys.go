package normalize

import (
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`\s+`)

// Key lowercases, collapses whitespace, and trims the input. Catalog lookup
// keys and lookup probes must go through the same function or exact matching
// silently degrades.
func Key(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return multiSpace.ReplaceAllString(s, " ")
}

// HeaderKey converts a spreadsheet header cell into a claim attribute name:
// trim, lowercase, split on whitespace, camel-join. "Claim Number" becomes
// "claimNumber".
func HeaderKey(s string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

// StripQuotes removes a single pair of surrounding double quotes, which
// some source sheets leave on item and diagnosis cells.
func StripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
