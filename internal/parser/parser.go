// Package parser extracts frontmatter and tags from Markdown content.
package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// NoFrontmatter is the FrontmatterEnd value of a note without a frontmatter block.
const NoFrontmatter = -1

const delim = "---"

var (
	tagRe        = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/-]+)`)
	tagListSepRe = regexp.MustCompile(`[,\s]+`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	// Frontmatter is nil when the note has no (valid) frontmatter block.
	Frontmatter map[string]any
	// FrontmatterEnd is the zero-based line index of the closing delimiter,
	// or NoFrontmatter.
	FrontmatterEnd int
	Body           string
	Tags           []string
}

// HasFrontmatter reports whether a frontmatter block was detected.
func (r *Result) HasFrontmatter() bool {
	return r.FrontmatterEnd != NoFrontmatter
}

// Parse extracts frontmatter, body and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, end, body := splitFrontmatter(string(data))
	return &Result{
		Frontmatter:    fm,
		FrontmatterEnd: end,
		Body:           body,
		Tags:           extractTags(body, fm),
	}, nil
}

// splitFrontmatter separates a YAML block fenced by "---" lines at the very
// start of the text. A missing closing fence or invalid YAML means the whole
// text is body.
func splitFrontmatter(text string) (map[string]any, int, string) {
	lines := strings.Split(text, "\n")
	if !isDelim(lines[0]) {
		return nil, NoFrontmatter, text
	}

	end := NoFrontmatter
	for i := 1; i < len(lines); i++ {
		if isDelim(lines[i]) {
			end = i
			break
		}
	}
	if end == NoFrontmatter {
		return nil, NoFrontmatter, text
	}

	fm, ok := decodeFrontmatter(strings.Join(lines[1:end], "\n"))
	if !ok {
		return nil, NoFrontmatter, text
	}
	return fm, end, strings.Join(lines[end+1:], "\n")
}

func isDelim(line string) bool {
	return strings.TrimRight(line, " \t\r") == delim
}

// decodeFrontmatter decodes a YAML mapping into JSON-ready values. ok is
// false for invalid YAML or a document that is not a mapping.
func decodeFrontmatter(src string) (map[string]any, bool) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, false
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return map[string]any{}, true
	}
	root := doc.Content[0]
	if root.Kind == yaml.AliasNode {
		root = root.Alias
	}
	if root.Kind != yaml.MappingNode {
		return nil, false
	}
	fm := make(map[string]any, len(root.Content)/2)
	mergeMapping(fm, root)
	return fm, true
}

// nodeValue converts a YAML node into a value encoding/json can marshal.
// Scalars whose decoded form would not round-trip to their source text
// (timestamps, octal or zero-padded ints, non-finite floats, custom tags)
// are kept as the source string.
func nodeValue(n *yaml.Node) any {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		mergeMapping(out, n)
		return out
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			out[i] = nodeValue(c)
		}
		return out
	}
	return scalarValue(n)
}

func scalarValue(n *yaml.Node) any {
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!int":
		if v, err := strconv.ParseInt(n.Value, 10, 64); err == nil &&
			strconv.FormatInt(v, 10) == strings.TrimPrefix(n.Value, "+") {
			return v
		}
	case "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return n.Value
}

// mergeMapping copies the pairs of mapping node m into out. Merge keys
// ("<<") contribute their pairs without overriding explicit keys.
func mergeMapping(out map[string]any, m *yaml.Node) {
	var merges []*yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.ShortTag() == "!!merge" {
			merges = append(merges, v)
			continue
		}
		out[keyString(k)] = nodeValue(v)
	}
	for _, v := range merges {
		if v.Kind == yaml.AliasNode {
			v = v.Alias
		}
		var sources []*yaml.Node
		switch v.Kind {
		case yaml.MappingNode:
			sources = []*yaml.Node{v}
		case yaml.SequenceNode:
			sources = v.Content
		}
		for _, src := range sources {
			if src.Kind == yaml.AliasNode {
				src = src.Alias
			}
			if src.Kind != yaml.MappingNode {
				continue
			}
			extra := make(map[string]any)
			mergeMapping(extra, src)
			for k, val := range extra {
				if _, set := out[k]; !set {
					out[k] = val
				}
			}
		}
	}
}

func keyString(k *yaml.Node) string {
	if k.Kind == yaml.ScalarNode {
		return k.Value
	}
	return fmt.Sprint(nodeValue(k))
}

// extractTags collects tags from the frontmatter "tags"/"tag" fields and
// inline #tags in the body, in that order, without duplicates. Leading '#'
// is dropped; nested tags keep their "parent/child" form.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" || !validTag(t) {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, key := range []string{"tags", "tag"} {
		switch v := fm[key].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range tagListSepRe.Split(v, -1) {
				add(s)
			}
		}
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
	}
	return out
}

// validTag rejects purely numeric tags.
func validTag(t string) bool {
	for _, r := range t {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
