package normalize

import (
	"regexp"
	"strings"
)

var capitalRuns = regexp.MustCompile(`[A-Z][^A-Z]*`)

// SplitDiagnosis breaks combined diagnosis cells into individual
// descriptions. Sheets frequently pack several diagnoses into one cell
// without a separator, each starting with a capital letter
// ("MalariaTyphoid fever"). Fragments starting with a lowercase letter are
// continuations of the previous diagnosis and re-attach with a comma.
func SplitDiagnosis(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(StripQuotes(v))
		if v == "" {
			continue
		}
		if startsLower(v) && len(out) > 0 {
			out[len(out)-1] += ", " + v
			continue
		}
		parts := capitalRuns.FindAllString(v, -1)
		if len(parts) == 0 {
			out = append(out, v)
			continue
		}
		for _, p := range parts {
			p = strings.TrimSpace(strings.TrimRight(p, ","))
			if p == "" {
				continue
			}
			if startsLower(p) && len(out) > 0 {
				out[len(out)-1] += ", " + p
			} else {
				out = append(out, p)
			}
		}
	}
	return dedupeFold(out)
}

func startsLower(s string) bool {
	return s != "" && s[0] >= 'a' && s[0] <= 'z'
}

// dedupeFold removes case-insensitive duplicates, preserving first-seen
// order.
func dedupeFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
