package courses

import (
	"strings"

	"mmls-attendance/lib/textutil"

	"github.com/antzucaro/matchr"
)

// minSimilarity is the lowest Jaro-Winkler score accepted as a fuzzy match.
const minSimilarity = 0.7

// FindSubject looks up a subject by its code, falling back to the closest
// code or name when nothing matches exactly.
func (c *Courses) FindSubject(query string) *Subject {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	code := textutil.NormalizeName(query)
	for _, s := range c.Subjects {
		if textutil.NormalizeName(s.Code) == code {
			return s
		}
	}

	var best *Subject
	var bestScore float64
	for _, s := range c.Subjects {
		for _, candidate := range []string{s.Code, s.Name} {
			score := matchr.JaroWinkler(strings.ToLower(candidate), strings.ToLower(query), false)
			if score > bestScore {
				best = s
				bestScore = score
			}
		}
	}
	if bestScore < minSimilarity {
		return nil
	}
	return best
}
