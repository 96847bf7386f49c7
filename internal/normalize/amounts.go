package normalize

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount parses a money or quantity cell. Cells arrive as strings with
// optional thousands separators; formula artifacts and anything unparseable
// count as zero, matching how the source sheets treat them.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "Formula: ") {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Round2 rounds to two decimal places, the precision of every amount column
// in the claims schema.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
