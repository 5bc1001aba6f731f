// Package doctree loads the on-disk documentation tree into memory. A doc
// module is any directory under the docs root whose primary document is a
// README.md with a front matter block. The doc tree is the single mutable
// store in the system; everything else is computed from it per invocation.
package doctree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// PrimaryDoc is the filename of a module's primary document.
const PrimaryDoc = "README.md"

// ArchiveDir is the reserved subdirectory holding archived content. It is
// inventoried but never parsed, and excluded from alignment and duplicate
// scanning.
const ArchiveDir = "archive"

// ComponentFile is one source file listed in a module's primary document.
type ComponentFile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Module is the documentation-tree counterpart of a source module.
type Module struct {
	Path         string          `json:"path"` // relative to the docs root, slash-separated
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	LastUpdated  time.Time       `json:"last_updated"`
	Components   []ComponentFile `json:"components,omitempty"`
	ArchiveFiles []string        `json:"archive_files,omitempty"` // relative to the module dir
	Reserved     bool            `json:"reserved"`                // exempt from alignment checks
	MetadataOK   bool            `json:"metadata_ok"`             // false when front matter is malformed
}

// DocFile returns the module's primary document path relative to the docs root.
func (m Module) DocFile() string {
	return m.Path + "/" + PrimaryDoc
}

// Result holds the modules found by one Load walk plus any per-module read
// errors that were skipped over.
type Result struct {
	Modules []Module
	Errors  []error
}

// ErrorSummary folds the accumulated read errors into one error, or nil.
func (r *Result) ErrorSummary() error {
	var errs *multierror.Error
	for _, e := range r.Errors {
		errs = multierror.Append(errs, e)
	}
	return errs.ErrorOrNil()
}

// Load parses every doc module under docsRoot. Reserved names the top-level
// namespaces exempt from alignment. A missing docs root yields an empty tree
// (first sync creates it). Unreadable entries are skipped and accumulated in
// Result.Errors; a module whose primary document exists but cannot be parsed
// stays in the tree with MetadataOK false, so it is never mistaken for a
// missing doc.
func Load(docsRoot string, reserved []string) (*Result, error) {
	res := &Result{}

	absRoot, err := filepath.Abs(docsRoot)
	if err != nil {
		return nil, fmt.Errorf("doctree: resolve root: %w", err)
	}
	if _, err := os.Stat(absRoot); os.IsNotExist(err) {
		return res, nil
	}

	reservedSet := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		reservedSet[strings.ToLower(r)] = struct{}{}
	}

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if p == absRoot {
				return werr
			}
			res.Errors = append(res.Errors, fmt.Errorf("doctree: read %s: %w", p, werr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() || p == absRoot {
			return nil
		}
		rel, _ := filepath.Rel(absRoot, p)
		rel = filepath.ToSlash(rel)

		// Archive subtrees belong to their module; never modules themselves.
		if d.Name() == ArchiveDir || underArchive(rel) {
			return fs.SkipDir
		}

		docPath := filepath.Join(p, PrimaryDoc)
		if _, statErr := os.Stat(docPath); statErr != nil {
			return nil
		}

		mod, loadErr := loadModule(p, rel)
		if loadErr != nil {
			res.Errors = append(res.Errors, loadErr)
		}
		if _, ok := reservedSet[strings.ToLower(topSegment(rel))]; ok {
			mod.Reserved = true
		}
		res.Modules = append(res.Modules, mod)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("doctree: load: %w", err)
	}

	sort.Slice(res.Modules, func(i, j int) bool { return res.Modules[i].Path < res.Modules[j].Path })
	return res, nil
}

func loadModule(dir, rel string) (Module, error) {
	mod := Module{Path: rel}

	data, err := os.ReadFile(filepath.Join(dir, PrimaryDoc))
	if err != nil {
		return mod, fmt.Errorf("doctree: read %s: %w", rel, err)
	}

	meta, body := ParseFrontMatter(data)
	if meta != nil && meta.Title != "" {
		mod.Title = meta.Title
		mod.Description = meta.Description
		mod.LastUpdated = meta.ParsedDate()
		mod.MetadataOK = true
	}
	mod.Components = parseComponents(body)

	mod.ArchiveFiles, err = listArchive(dir)
	if err != nil {
		return mod, err
	}
	return mod, nil
}

// parseComponents extracts the bullet list under the "## Files" heading.
// Lines have the shape "- `name`: description".
func parseComponents(body string) []ComponentFile {
	var out []ComponentFile
	inFiles := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inFiles = strings.EqualFold(trimmed, "## Files")
			continue
		}
		if !inFiles || !strings.HasPrefix(trimmed, "- `") {
			continue
		}
		rest := strings.TrimPrefix(trimmed, "- `")
		end := strings.Index(rest, "`")
		if end < 0 {
			continue
		}
		cf := ComponentFile{Name: rest[:end]}
		if tail := strings.TrimPrefix(rest[end+1:], ":"); tail != rest[end+1:] {
			cf.Description = strings.TrimSpace(tail)
		}
		out = append(out, cf)
	}
	return out
}

// listArchive inventories the module's archive subtree, if any.
func listArchive(dir string) ([]string, error) {
	archiveRoot := filepath.Join(dir, ArchiveDir)
	if _, err := os.Stat(archiveRoot); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(archiveRoot, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, p)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("doctree: list archive: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func underArchive(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == ArchiveDir {
			return true
		}
	}
	return false
}

func topSegment(rel string) string {
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return rel
}
