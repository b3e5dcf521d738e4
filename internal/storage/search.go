package storage

import (
	"strings"

	"golang.org/x/text/cases"

	"podcast-api/internal/models"
)

// matcher performs case-insensitive substring checks using Unicode case
// folding, so "émission" matches "ÉMISSION". A Caser keeps internal state and
// is not safe for concurrent use, so callers build one matcher per query.
type matcher struct {
	fold cases.Caser
}

func newMatcher() *matcher {
	return &matcher{fold: cases.Fold()}
}

func (m *matcher) normalize(value string) string {
	return m.fold.String(strings.TrimSpace(value))
}

// contains reports whether needle is empty or occurs in any of haystacks.
func (m *matcher) contains(needle string, haystacks ...string) bool {
	needle = m.normalize(needle)
	if needle == "" {
		return true
	}
	for _, candidate := range haystacks {
		if strings.Contains(m.fold.String(candidate), needle) {
			return true
		}
	}
	return false
}

func (m *matcher) matchesOwner(needle string, owner models.User, ok bool) bool {
	if strings.TrimSpace(needle) == "" {
		return true
	}
	if !ok {
		return false
	}
	return m.contains(needle, owner.Nom, owner.Prenom, owner.FullName(), owner.Nom+" "+owner.Prenom)
}

// escapeLike escapes the LIKE wildcards so user input matches literally.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(strings.TrimSpace(value))
}

func likePattern(value string) string {
	return "%" + escapeLike(value) + "%"
}
