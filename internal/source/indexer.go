// Package source walks a source tree and discovers modules: directories
// that contain at least one compilable source file. The index is a derived
// view of the filesystem at a point in time and is never persisted.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// DefaultDescription is used when a module has no readable entry-file comment.
const DefaultDescription = "Core functionality"

// Module is one discovered source module.
type Module struct {
	Path        string `json:"path"`        // relative to the source root, slash-separated
	FileCount   int    `json:"file_count"`  // source files directly or recursively under the module
	Description string `json:"description"` // first entry-file comment line, or DefaultDescription
	Category    string `json:"category"`    // informational, derived from the path
}

// Result holds the modules found by one Index run plus any per-directory
// errors that were skipped over.
type Result struct {
	Modules []Module
	Errors  []error
}

// Options control module discovery.
type Options struct {
	// Extensions are the file suffixes that count as compilable source,
	// e.g. [".rs"].
	Extensions []string
	// EntryFiles are checked in order for the module description,
	// e.g. ["mod.rs", "lib.rs", "main.rs"].
	EntryFiles []string
	// Workers bounds the metadata-extraction pool; 0 means automatic.
	Workers int
}

func (o *Options) workers(moduleCount int) int {
	n := o.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if moduleCount > 0 && moduleCount < n {
		n = moduleCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Index discovers all modules under root. Unreadable directories are skipped
// and accumulated in Result.Errors; only a missing root is fatal.
func Index(ctx context.Context, root string, opts Options) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("source: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("source: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: root is not a directory: %s", absRoot)
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".rs"}
	}
	if len(opts.EntryFiles) == 0 {
		opts.EntryFiles = []string{"mod.rs", "lib.rs", "main.rs"}
	}

	res := &Result{}

	// Single walk: count matching files per directory, then roll counts up
	// to ancestors so nested modules report recursive file counts.
	direct := make(map[string]int)
	var dirs []string
	walkErr := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("source: read %s: %w", p, werr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != absRoot {
				rel, _ := filepath.Rel(absRoot, p)
				dirs = append(dirs, filepath.ToSlash(rel))
			}
			return nil
		}
		if !hasExtension(d.Name(), opts.Extensions) {
			return nil
		}
		rel, _ := filepath.Rel(absRoot, filepath.Dir(p))
		if rel == "." {
			return nil // files directly under root belong to no module
		}
		direct[filepath.ToSlash(rel)]++
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("source: walk: %w", walkErr)
	}

	recursive := make(map[string]int, len(direct))
	for dir, n := range direct {
		for p := dir; p != "."; p = parentPath(p) {
			recursive[p] += n
		}
	}

	var modulePaths []string
	for _, d := range dirs {
		if recursive[d] > 0 {
			modulePaths = append(modulePaths, d)
		}
	}
	sort.Strings(modulePaths)

	// Description extraction is independent per module; fan out.
	modules := make([]Module, len(modulePaths))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers(len(modulePaths)))
	for i, rel := range modulePaths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			desc, derr := readDescription(filepath.Join(absRoot, filepath.FromSlash(rel)), opts.EntryFiles)
			if derr != nil {
				mu.Lock()
				res.Errors = append(res.Errors, derr)
				mu.Unlock()
				desc = DefaultDescription
			}
			modules[i] = Module{
				Path:        rel,
				FileCount:   recursive[rel],
				Description: desc,
				Category:    categoryOf(rel),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Modules = modules
	return res, nil
}

// ErrorSummary folds the accumulated per-directory errors into one error,
// or nil when the run was clean.
func (r *Result) ErrorSummary() error {
	var errs *multierror.Error
	for _, e := range r.Errors {
		errs = multierror.Append(errs, e)
	}
	return errs.ErrorOrNil()
}

func hasExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func parentPath(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "."
	}
	return p[:i]
}

func categoryOf(rel string) string {
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return "core"
}

// readDescription returns the first leading comment line of the first entry
// file present in dir, with the comment marker stripped.
func readDescription(dir string, entryFiles []string) (string, error) {
	for _, name := range entryFiles {
		p := filepath.Join(dir, name)
		f, err := os.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("source: read %s: %w", p, err)
		}
		desc := firstCommentLine(f)
		f.Close()
		if desc != "" {
			return desc, nil
		}
		return DefaultDescription, nil
	}
	return DefaultDescription, nil
}

// firstCommentLine scans the first line of r and strips a leading comment
// marker. Only lines that begin with a marker yield a description.
func firstCommentLine(r *os.File) string {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return ""
	}
	line := strings.TrimSpace(scanner.Text())
	for _, marker := range []string{"//!", "///", "//", "/*", "#!", "#"} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker))
		}
	}
	return ""
}
