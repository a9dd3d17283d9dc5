package textsrc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// StripMarkdown reduces markdown to speakable plain text: one line per
// block, each ending in punctuation, with code and HTML dropped and links
// and images replaced by their text.
func StripMarkdown(markdown string) string {
	source := removeFrontmatter([]byte(markdown))
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	w := &plainWriter{source: source}
	w.walk(doc)
	return strings.TrimSpace(string(w.out))
}

type plainWriter struct {
	source []byte
	out    []byte
}

func (w *plainWriter) walk(node ast.Node) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		w.out = append(w.out, n.Segment.Value(w.source)...)
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.out = append(w.out, ' ')
		}
		return

	case *ast.String:
		w.out = append(w.out, n.Value...)
		return

	case *ast.AutoLink:
		w.out = append(w.out, n.Label(w.source)...)
		return

	case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
		w.children(n)
		w.endBlock()
		return

	case *ast.ThematicBreak:
		w.endBlock()
		return
	}

	w.children(node)
}

func (w *plainWriter) children(node ast.Node) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.walk(c)
	}
}

// endBlock terminates the current line so engines pause between blocks.
func (w *plainWriter) endBlock() {
	w.out = bytes.TrimRight(w.out, " \t")
	if len(w.out) == 0 || w.out[len(w.out)-1] == '\n' {
		return
	}
	last, _ := utf8.DecodeLastRune(w.out)
	if !strings.ContainsRune(".!?:;…", last) {
		w.out = append(w.out, '.')
	}
	w.out = append(w.out, '\n')
}

// removeFrontmatter drops a leading YAML block delimited by "---" lines.
func removeFrontmatter(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("---\n")) && !bytes.HasPrefix(b, []byte("---\r\n")) {
		return b
	}
	rest := b[3:]
	for {
		i := bytes.Index(rest, []byte("\n---"))
		if i < 0 {
			return b
		}
		after := rest[i+4:]
		if len(after) == 0 {
			return nil
		}
		switch after[0] {
		case '\n':
			return after[1:]
		case '\r':
			return bytes.TrimPrefix(after[1:], []byte("\n"))
		}
		rest = after
	}
}
