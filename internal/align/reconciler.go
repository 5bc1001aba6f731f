package align

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/Anya-org/docalign/internal/apperr"
	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/source"
	"github.com/Anya-org/docalign/internal/storage"
)

// ArchiveNamespace is where orphaned doc modules are moved, never deleted.
const ArchiveNamespace = "archive/removed_modules"

// archiveSuffixLimit bounds the disambiguating suffixes tried before giving
// up with apperr.ErrArchiveConflict.
const archiveSuffixLimit = 100

// ApplyOptions configure one reconciliation pass.
type ApplyOptions struct {
	// Now stamps stub front matter and archive directory names.
	Now time.Time
	// DryRun records intended operations without touching disk.
	DryRun bool
	// Workers bounds the per-module pool; 0 means automatic.
	Workers int
	// SourceRoot, when set, is used to list a new module's files for the
	// stub's Files section. Extensions filters that listing.
	SourceRoot string
	Extensions []string
}

// ArchiveMove records one orphaned doc module being moved aside.
type ArchiveMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ApplyResult summarizes one reconciliation pass. Per-module failures are
// collected in Errors; they never abort the remaining modules.
type ApplyResult struct {
	Created        []string      `json:"created"`
	Archived       []ArchiveMove `json:"archived"`
	Refreshed      []string      `json:"refreshed"`
	SkippedRefresh []string      `json:"skipped_refresh,omitempty"`
	Errors         []error       `json:"-"`
}

// ErrorSummary folds per-module failures into one error, or nil.
func (r *ApplyResult) ErrorSummary() error {
	var errs *multierror.Error
	for _, e := range r.Errors {
		errs = multierror.Append(errs, e)
	}
	return errs.ErrorOrNil()
}

// Apply executes a plan against the doc tree: stubs for ToCreate, archive
// moves for ToArchive, timestamp refreshes for ToRefresh. Creates and
// refreshes run on a bounded pool; archive moves are serialized because
// they share the removed_modules namespace.
func Apply(ctx context.Context, plan *Plan, store storage.Provider, opts ApplyOptions) (*ApplyResult, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	res := &ApplyResult{}
	var mu sync.Mutex

	record := func(fn func(*ApplyResult)) {
		mu.Lock()
		fn(res)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers, len(plan.ToCreate)+len(plan.ToRefresh)))

	for _, m := range plan.ToCreate {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := createStub(m, store, opts); err != nil {
				record(func(r *ApplyResult) { r.Errors = append(r.Errors, err) })
				return nil
			}
			record(func(r *ApplyResult) { r.Created = append(r.Created, m.Path) })
			return nil
		})
	}

	for _, d := range plan.ToRefresh {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refreshed, err := refreshTimestamp(d, store, opts)
			switch {
			case err != nil:
				record(func(r *ApplyResult) { r.Errors = append(r.Errors, err) })
			case refreshed:
				record(func(r *ApplyResult) { r.Refreshed = append(r.Refreshed, d.Path) })
			default:
				record(func(r *ApplyResult) { r.SkippedRefresh = append(r.SkippedRefresh, d.Path) })
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	archiveOrphans(plan.ToArchive, store, opts, res)

	sort.Strings(res.Created)
	sort.Strings(res.Refreshed)
	sort.Strings(res.SkippedRefresh)
	sort.Slice(res.Archived, func(i, j int) bool { return res.Archived[i].From < res.Archived[j].From })
	return res, nil
}

func workers(n, moduleCount int) int {
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

func createStub(m source.Module, store storage.Provider, opts ApplyOptions) error {
	components := listComponents(opts.SourceRoot, m.Path, opts.Extensions)
	content, err := RenderStub(m, components, opts.Now)
	if err != nil {
		return err
	}
	if opts.DryRun {
		return nil
	}
	if err := store.Write(m.Path+"/"+doctree.PrimaryDoc, content); err != nil {
		return fmt.Errorf("align: create %s: %w", m.Path, err)
	}
	return nil
}

// listComponents returns the module's direct source files for the stub's
// Files section. Listing failures just produce an empty section.
func listComponents(sourceRoot, modulePath string, extensions []string) []doctree.ComponentFile {
	if sourceRoot == "" {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(sourceRoot, filepath.FromSlash(modulePath)))
	if err != nil {
		return nil
	}
	var out []doctree.ComponentFile
	for _, e := range entries {
		if e.IsDir() || !matchesAny(e.Name(), extensions) {
			continue
		}
		out = append(out, doctree.ComponentFile{Name: e.Name(), Description: "Source file"})
	}
	return out
}

func matchesAny(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return strings.HasSuffix(name, ".rs")
	}
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// refreshTimestamp rewrites only the front matter last_updated line of an
// aligned module, leaving every other byte intact so user-added metadata
// keys survive. Modules with unparsable metadata are skipped.
func refreshTimestamp(d doctree.Module, store storage.Provider, opts ApplyOptions) (bool, error) {
	docPath := d.DocFile()
	data, err := store.Read(docPath)
	if err != nil {
		return false, fmt.Errorf("align: refresh read %s: %w", d.Path, err)
	}
	updated, ok := doctree.SetLastUpdated(data, opts.Now.Format(doctree.DateLayout))
	if !ok {
		return false, nil
	}
	if opts.DryRun {
		return true, nil
	}
	if err := store.Write(docPath, updated); err != nil {
		return false, fmt.Errorf("align: refresh write %s: %w", d.Path, err)
	}
	return true, nil
}

// archiveOrphans moves orphaned doc modules under the removed_modules
// namespace. Moves are serialized: the namespace is the one shared resource
// in the system, and a conflicting date-stamped name must get a fresh
// suffix rather than an overwrite. Modules nested under an already-archived
// ancestor travel with it and are skipped.
func archiveOrphans(orphans []doctree.Module, store storage.Provider, opts ApplyOptions, res *ApplyResult) {
	sorted := make([]doctree.Module, len(orphans))
	copy(sorted, orphans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var movedPrefixes []string
	for _, d := range sorted {
		if hasArchivedAncestor(d.Path, movedPrefixes) {
			continue
		}
		target, err := archiveTarget(d.Path, store, opts.Now)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if !opts.DryRun {
			if err := store.MoveDir(d.Path, target); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("align: archive %s: %w", d.Path, err))
				continue
			}
		}
		movedPrefixes = append(movedPrefixes, d.Path+"/")
		res.Archived = append(res.Archived, ArchiveMove{From: d.Path, To: target})
	}
}

func hasArchivedAncestor(path string, movedPrefixes []string) bool {
	for _, prefix := range movedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// archiveTarget computes a conflict-free destination for an orphaned module:
// archive/removed_modules/<name>-<YYYYMMDD>, with a numeric suffix when the
// date-stamped name is already taken.
func archiveTarget(modulePath string, store storage.Provider, now time.Time) (string, error) {
	name := strings.ReplaceAll(modulePath, "/", "_")
	base := fmt.Sprintf("%s/%s-%s", ArchiveNamespace, name, now.Format("20060102"))
	if !store.Exists(base) {
		return base, nil
	}
	for i := 2; i <= archiveSuffixLimit; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !store.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("align: %s: %w", modulePath, apperr.ErrArchiveConflict)
}
