package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "placefinder"

// GenerationKey holds the counter bumped on every place write. Result keys
// embed the generation they were computed under, so bumping it orphans them.
func GenerationKey() string { return prefix + ":gen" }

// NearbyKey is the result cache key for one proximity query. Coordinates are
// hashed from their exact decimal form so two centers never share an entry.
func NearbyKey(gen int64, lat, lng float64, radiusM int, category string) string {
	center := strconv.FormatFloat(lat, 'g', -1, 64) + "," + strconv.FormatFloat(lng, 'g', -1, 64)
	sum := xxhash.Sum64String(center)
	return fmt.Sprintf("%s:nearby:g=%d:cat=%s:r=%d:c=%016x", prefix, gen, sanitize(category), radiusM, sum)
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "all"
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
