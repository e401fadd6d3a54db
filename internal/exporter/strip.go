package exporter

import (
	"strings"

	"github.com/starford/feta/internal/vault"
)

// StripFrontmatter drops lines 0 through endLine of raw and trims the rest.
// With endLine == vault.NoFrontmatter the text is returned unchanged.
// The block itself is never parsed.
func StripFrontmatter(raw string, endLine int) string {
	if endLine == vault.NoFrontmatter {
		return raw
	}
	lines := strings.Split(raw, "\n")
	if endLine+1 >= len(lines) {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[endLine+1:], "\n"))
}
