package render

import (
	"bytes"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/russross/blackfriday/v2"
)

// DefaultStyle is the chroma style used for fenced code blocks.
const DefaultStyle = "github"

// Markdown converts note bodies to HTML. Fenced code blocks that name a
// language are syntax highlighted with inline styles.
type Markdown struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// NewMarkdown creates a converter using the named chroma style; unknown
// names fall back to chroma's default style.
func NewMarkdown(style string) *Markdown {
	if style == "" {
		style = DefaultStyle
	}
	return &Markdown{
		style:     styles.Get(style),
		formatter: chromahtml.New(),
	}
}

// HTML renders Markdown source to an HTML fragment.
func (m *Markdown) HTML(src []byte) string {
	r := &highlightRenderer{
		HTMLRenderer: blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
			Flags: blackfriday.CommonHTMLFlags,
		}),
		md: m,
	}
	out := blackfriday.Run(src,
		blackfriday.WithRenderer(r),
		blackfriday.WithExtensions(blackfriday.CommonExtensions))
	return strings.TrimSpace(string(out))
}

// highlightRenderer is blackfriday's HTML renderer with chroma for code blocks.
type highlightRenderer struct {
	*blackfriday.HTMLRenderer
	md *Markdown
}

func (r *highlightRenderer) RenderNode(w io.Writer, node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
	if node.Type == blackfriday.CodeBlock {
		if lang := codeLanguage(node.Info); lang != "" {
			if html, ok := r.md.highlight(string(node.Literal), lang); ok {
				_, _ = w.Write(html)
				return blackfriday.GoToNext
			}
		}
	}
	return r.HTMLRenderer.RenderNode(w, node, entering)
}

func codeLanguage(info []byte) string {
	fields := strings.Fields(string(info))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (m *Markdown) highlight(code, lang string) ([]byte, bool) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		return nil, false
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := m.formatter.Format(&buf, m.style, it); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
