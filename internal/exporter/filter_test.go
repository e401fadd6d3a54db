package exporter

import (
	"testing"

	"github.com/starford/feta/internal/vault"
)

func keys(ks ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ks))
	for _, k := range ks {
		out[k] = struct{}{}
	}
	return out
}

func TestInclude_NoCriteria(t *testing.T) {
	if !Include(nil, nil, "", "") {
		t.Error("empty criteria must include every note")
	}
}

func TestInclude_Conjunction(t *testing.T) {
	tags := []string{"x", "project/alpha"}
	fm := keys("publish", "draft")

	tests := []struct {
		name string
		tag  string
		key  string
		want bool
	}{
		{"tag only match", "x", "", true},
		{"tag only miss", "y", "", false},
		{"tag is case sensitive", "X", "", false},
		{"nested tag exact", "project/alpha", "", true},
		{"tag prefix is not a match", "project", "", false},
		{"key only match", "", "publish", true},
		{"key only miss", "", "slug", false},
		{"both match", "x", "draft", true},
		{"tag match key miss", "x", "slug", false},
		{"tag miss key match", "y", "draft", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Include(tags, fm, tt.tag, tt.key); got != tt.want {
				t.Errorf("Include(%q, %q) = %v, want %v", tt.tag, tt.key, got, tt.want)
			}
		})
	}
}

func TestCriteria_MatchFalsyValue(t *testing.T) {
	m := &vault.Metadata{
		Frontmatter:    map[string]any{"publish": false, "empty": nil},
		FrontmatterEnd: 3,
	}
	if !(Criteria{FrontmatterKey: "publish"}).Match(m) {
		t.Error("false value should still count as present")
	}
	if !(Criteria{FrontmatterKey: "empty"}).Match(m) {
		t.Error("null value should still count as present")
	}
}

func TestCriteria_MatchNoFrontmatter(t *testing.T) {
	m := &vault.Metadata{FrontmatterEnd: vault.NoFrontmatter}
	if (Criteria{FrontmatterKey: "publish"}).Match(m) {
		t.Error("note without frontmatter cannot match a key filter")
	}
}
