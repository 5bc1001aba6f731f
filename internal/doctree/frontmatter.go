package doctree

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the wire format of the last_updated front matter field.
const DateLayout = "2006-01-02"

// Meta is the typed front matter block at the top of a module's primary
// document.
type Meta struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	LastUpdated string `yaml:"last_updated"`
}

// ParseFrontMatter separates the YAML front matter (between leading ---
// delimiters) from the markdown body. A document without front matter, or
// with front matter that fails to parse, yields a nil Meta and the full
// content as body — malformed metadata marks a module as unaligned, it is
// never an error.
func ParseFrontMatter(data []byte) (*Meta, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var m Meta
	if err := yaml.Unmarshal(yamlBlock, &m); err != nil {
		return nil, string(data)
	}
	return &m, body
}

// RenderFrontMatter serializes a Meta back into a front matter block.
func RenderFrontMatter(m Meta) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", m.Title)
	fmt.Fprintf(&b, "description: %q\n", m.Description)
	fmt.Fprintf(&b, "last_updated: %s\n", m.LastUpdated)
	b.WriteString("---\n")
	return b.String()
}

// SetLastUpdated rewrites only the last_updated line of the front matter
// block, leaving every other byte of the document intact. User-added keys
// survive. Returns false when the document has no parsable front matter.
func SetLastUpdated(data []byte, date string) ([]byte, bool) {
	if meta, _ := ParseFrontMatter(data); meta == nil {
		return data, false
	}

	lines := strings.SplitAfter(string(data), "\n")

	// Locate the opening delimiter, skipping leading blank lines.
	open := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "---" {
			open = i
		}
		break
	}
	if open < 0 {
		return data, false
	}

	updated := "last_updated: " + date + "\n"
	for i := open + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "---" {
			// Key absent, insert it before the closing delimiter.
			out := slices.Insert(lines, i, updated)
			return []byte(strings.Join(out, "")), true
		}
		if strings.HasPrefix(trimmed, "last_updated:") {
			lines[i] = updated
			return []byte(strings.Join(lines, "")), true
		}
	}
	return data, false
}

// ParsedDate returns the last_updated field as a time, or the zero time when
// absent or malformed.
func (m *Meta) ParsedDate() time.Time {
	if m == nil || m.LastUpdated == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, m.LastUpdated)
	if err != nil {
		return time.Time{}
	}
	return t
}
