package duplication

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is one heading-delimited slice of a markdown document.
type Section struct {
	Ref   string // "<path>#<heading>", or just the path for heading-less files
	Title string
	Text  string
}

// ExtractSections splits a markdown document at its headings using the
// goldmark AST. Content before the first heading is attributed to the file
// itself; a document without headings yields a single whole-file section.
func ExtractSections(path string, src []byte) []Section {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var sections []Section
	currentTitle := ""
	var currentText bytes.Buffer

	flush := func() {
		t := strings.TrimSpace(currentText.String())
		if t == "" {
			currentText.Reset()
			return
		}
		ref := path
		if currentTitle != "" {
			ref = fmt.Sprintf("%s#%s", path, currentTitle)
		}
		sections = append(sections, Section{Ref: ref, Title: currentTitle, Text: t})
		currentText.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			currentTitle = string(nodeText(h, src))
			continue
		}
		if t := nodeText(n, src); t != "" {
			if currentText.Len() > 0 {
				currentText.WriteString("\n\n")
			}
			currentText.WriteString(t)
		}
	}
	flush()

	return sections
}

// nodeText collects the raw text content of a goldmark AST node, including
// nested inlines.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(nodeText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
