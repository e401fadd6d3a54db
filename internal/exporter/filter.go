package exporter

import (
	"slices"

	"github.com/starford/feta/internal/vault"
)

// Include reports whether a note passes every non-empty criterion: it must
// carry requiredTag (exact, case-sensitive) and have requiredKey among its
// frontmatter keys, whatever the value. Empty criteria are ignored.
func Include(tags []string, frontmatterKeys map[string]struct{}, requiredTag, requiredKey string) bool {
	if requiredTag != "" && !slices.Contains(tags, requiredTag) {
		return false
	}
	if requiredKey != "" {
		if _, ok := frontmatterKeys[requiredKey]; !ok {
			return false
		}
	}
	return true
}

// Criteria is the pair of optional filters applied to every note of a run.
type Criteria struct {
	Tag            string
	FrontmatterKey string
}

// Match applies Include to the note's metadata.
func (c Criteria) Match(m *vault.Metadata) bool {
	return Include(m.Tags, m.FrontmatterKeys(), c.Tag, c.FrontmatterKey)
}
