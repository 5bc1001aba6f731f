package align

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/source"
)

// stubTemplate renders the primary document of a freshly created doc module.
// The Files bullet list uses the "- `name`: description" shape that
// doctree.Load parses back.
const stubTemplate = `{{.FrontMatter}}
# {{.Title}}

{{.Description}}

## Overview

This module contains {{.FileCount}} source {{if eq .FileCount 1}}file{{else}}files{{end}} ({{.Category}}).

## Files

{{range .Components}}- ` + "`{{.Name}}`" + `: {{.Description}}
{{end}}
## Usage

See the module source for API details.
`

var stubTmpl = template.Must(template.New("stub").Parse(stubTemplate))

type stubData struct {
	FrontMatter string
	Title       string
	Description string
	FileCount   int
	Category    string
	Components  []doctree.ComponentFile
}

// RenderStub produces the primary document for a source module that has no
// documentation yet.
func RenderStub(m source.Module, components []doctree.ComponentFile, now time.Time) ([]byte, error) {
	meta := doctree.Meta{
		Title:       fmt.Sprintf("%s Module", titleFromPath(m.Path)),
		Description: m.Description,
		LastUpdated: now.Format(doctree.DateLayout),
	}
	data := stubData{
		FrontMatter: doctree.RenderFrontMatter(meta),
		Title:       meta.Title,
		Description: m.Description,
		FileCount:   m.FileCount,
		Category:    m.Category,
		Components:  components,
	}
	var buf bytes.Buffer
	if err := stubTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("align: render stub: %w", err)
	}
	return buf.Bytes(), nil
}

// titleFromPath returns the last path segment, e.g. "net/proxy" yields "proxy".
func titleFromPath(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
