package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Anya-org/docalign/internal/align"
	"github.com/Anya-org/docalign/internal/apperr"
	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/duplication"
	"github.com/Anya-org/docalign/internal/gitmeta"
	"github.com/Anya-org/docalign/internal/ledger"
	"github.com/Anya-org/docalign/internal/migrate"
	"github.com/Anya-org/docalign/internal/report"
	"github.com/Anya-org/docalign/internal/source"
	"github.com/Anya-org/docalign/internal/storage"
	"github.com/Anya-org/docalign/internal/watch"
)

// Pipeline coordinates the indexer, planner, reconciler, migrator, and
// duplication detector around one configuration.
type Pipeline struct {
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline builds a pipeline from options. A config is required.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: p.cfg.App.LogLevel,
		}))
	}
	return p, nil
}

// SyncOutcome bundles everything one sync produced.
type SyncOutcome struct {
	Plan       *align.Plan
	Apply      *align.ApplyResult
	ScanErrors []error
}

// plan runs the read-only half of the pipeline: index, load, diff. The
// returned errors are the skipped-entry failures from both tree scans.
func (p *Pipeline) plan(ctx context.Context) (*align.Plan, []error, error) {
	srcRes, err := source.Index(ctx, p.cfg.Source.Root, source.Options{
		Extensions: p.cfg.Source.Extensions,
		EntryFiles: p.cfg.Source.EntryFiles,
		Workers:    p.cfg.App.Workers,
	})
	if err != nil {
		return nil, nil, err
	}
	if summary := srcRes.ErrorSummary(); summary != nil {
		p.logger.Warn("index: directories skipped", slog.String("error", summary.Error()))
	}

	docRes, err := doctree.Load(p.cfg.Docs.Root, p.cfg.Docs.Reserved)
	if err != nil {
		return nil, nil, err
	}
	if summary := docRes.ErrorSummary(); summary != nil {
		p.logger.Warn("doctree: files skipped", slog.String("error", summary.Error()))
	}

	scanErrs := make([]error, 0, len(srcRes.Errors)+len(docRes.Errors))
	scanErrs = append(scanErrs, srcRes.Errors...)
	scanErrs = append(scanErrs, docRes.Errors...)

	return align.ComputePlan(srcRes.Modules, docRes.Modules), scanErrs, nil
}

// Sync brings the doc tree into alignment with the source tree.
func (p *Pipeline) Sync(ctx context.Context, dryRun bool) (*SyncOutcome, error) {
	started := p.now()

	plan, scanErrs, err := p.plan(ctx)
	if err != nil {
		return nil, err
	}

	var store storage.Provider
	if dryRun {
		// A dry run must not touch the docs tree, not even to create its
		// root. A missing root means there are no docs to read either.
		fsStore, err := storage.NewFS(p.cfg.Docs.Root)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if fsStore != nil {
			store = fsStore
		}
	} else {
		if err := os.MkdirAll(p.cfg.Docs.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create docs root: %w", err)
		}
		fsStore, err := storage.NewFS(p.cfg.Docs.Root)
		if err != nil {
			return nil, err
		}
		store = fsStore
	}

	res, err := align.Apply(ctx, plan, store, align.ApplyOptions{
		Now:        started,
		DryRun:     dryRun,
		Workers:    p.cfg.App.Workers,
		SourceRoot: p.cfg.Source.Root,
		Extensions: p.cfg.Source.Extensions,
	})
	if err != nil {
		return nil, err
	}

	for _, e := range res.Errors {
		p.logger.Warn("sync: module failed", slog.String("error", e.Error()))
	}
	p.logger.Info("sync: done",
		slog.Int("created", len(res.Created)),
		slog.Int("archived", len(res.Archived)),
		slog.Int("refreshed", len(res.Refreshed)),
		slog.Float64("coverage", plan.Coverage),
		slog.Bool("dry_run", dryRun))

	if !dryRun {
		p.recordRun(ledger.Run{
			Kind:      "sync",
			StartedAt: started,
			Coverage:  plan.Coverage,
			Created:   len(res.Created),
			Archived:  len(res.Archived),
			Refreshed: len(res.Refreshed),
			Errors:    len(res.Errors) + len(scanErrs),
		})
	}

	return &SyncOutcome{Plan: plan, Apply: res, ScanErrors: scanErrs}, nil
}

// Validate runs the read-only drift check. The returned plan is always
// non-nil so callers can print a summary; the error is apperr.ErrDrift when
// the trees are out of alignment.
func (p *Pipeline) Validate(ctx context.Context) (*align.Plan, error) {
	started := p.now()

	plan, scanErrs, err := p.plan(ctx)
	if err != nil {
		return nil, err
	}

	p.recordRun(ledger.Run{
		Kind:      "validate",
		StartedAt: started,
		Coverage:  plan.Coverage,
		Created:   len(plan.ToCreate),
		Archived:  len(plan.ToArchive),
		Errors:    len(scanErrs),
	})

	if !plan.Empty() {
		return plan, fmt.Errorf("%d missing, %d orphaned: %w",
			len(plan.ToCreate), len(plan.Orphans), apperr.ErrDrift)
	}
	p.logger.Info("validate: aligned", slog.Float64("coverage", plan.Coverage))
	return plan, nil
}

// MigrateModule rescues substantive legacy content for one doc module.
func (p *Pipeline) MigrateModule(ctx context.Context, modulePath string) ([]migrate.Migrated, error) {
	if err := os.MkdirAll(p.cfg.Docs.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create docs root: %w", err)
	}
	store, err := storage.NewFS(p.cfg.Docs.Root)
	if err != nil {
		return nil, err
	}
	migrated, err := migrate.Migrate(ctx, p.cfg.Migration.LegacyRoot, modulePath, store, migrate.Options{
		Threshold: p.cfg.Migration.SubstantiveLines,
		Now:       p.now(),
	})
	if err != nil {
		return nil, err
	}
	for _, m := range migrated {
		if m.Skipped {
			p.logger.Debug("migrate: skipped",
				slog.String("file", m.OriginalPath),
				slog.String("reason", m.Reason))
		} else {
			p.logger.Info("migrate: archived",
				slog.String("file", m.OriginalPath),
				slog.String("to", m.ArchivePath))
		}
	}
	return migrated, nil
}

// Duplication scans active docs for duplicate content. With strict set, any
// finding yields apperr.ErrDuplicates alongside the groups.
func (p *Pipeline) Duplication(ctx context.Context, strict bool) ([]duplication.Group, error) {
	started := p.now()

	groups, scanErrs, err := p.detectDuplicates(ctx)
	if err != nil {
		return nil, err
	}

	p.recordRun(ledger.Run{
		Kind:       "duplication",
		StartedAt:  started,
		Duplicates: len(groups),
		Errors:     len(scanErrs),
	})

	if strict && len(groups) > 0 {
		return groups, fmt.Errorf("%d groups: %w", len(groups), apperr.ErrDuplicates)
	}
	return groups, nil
}

func (p *Pipeline) detectDuplicates(ctx context.Context) ([]duplication.Group, []error, error) {
	strategy, err := duplication.ForName(p.cfg.Duplication.Strategy, p.cfg.Duplication.SimilarityThreshold)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewFS(p.cfg.Docs.Root)
	if err != nil {
		// No docs tree yet means nothing to scan.
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	docs, scanErrs, err := duplication.Collect(store, p.cfg.Duplication.Ignore)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range scanErrs {
		p.logger.Warn("duplication: file skipped", slog.String("error", e.Error()))
	}
	groups, err := strategy.Detect(ctx, docs)
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("duplication: scanned",
		slog.String("strategy", strategy.Name()),
		slog.Int("files", len(docs)),
		slog.Int("groups", len(groups)))
	return groups, scanErrs, nil
}

// Report recomputes the read-only pipeline and renders it. History rows are
// included when the ledger is enabled and historyLimit > 0.
func (p *Pipeline) Report(ctx context.Context, format string, historyLimit int) ([]byte, error) {
	plan, scanErrs, err := p.plan(ctx)
	if err != nil {
		return nil, err
	}
	groups, dupErrs, err := p.detectDuplicates(ctx)
	if err != nil {
		return nil, err
	}

	data := report.Data{
		Plan:        plan,
		Duplicates:  groups,
		Git:         gitmeta.Head(ctx, p.cfg.Source.Root),
		GeneratedAt: p.now(),
	}
	for _, e := range scanErrs {
		data.Errors = append(data.Errors, e.Error())
	}
	for _, e := range dupErrs {
		data.Errors = append(data.Errors, e.Error())
	}
	if historyLimit > 0 && p.cfg.Ledger.Path != "" {
		if db, openErr := ledger.Open(p.cfg.Ledger.Path); openErr == nil {
			if runs, recentErr := db.Recent(historyLimit); recentErr == nil {
				data.History = runs
			}
			db.Close()
		}
	}
	return report.Render(data, format)
}

// Clean removes leftover atomic-write temp files and empty directories from
// the docs tree. Archive subtrees are never touched.
func (p *Pipeline) Clean(ctx context.Context) ([]string, error) {
	store, err := storage.NewFS(p.cfg.Docs.Root)
	if err != nil {
		return nil, err
	}

	var removed []string
	absRoot, err := filepath.Abs(p.cfg.Docs.Root)
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), storage.TempPrefix) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return rmErr
		}
		rel, _ := filepath.Rel(absRoot, path)
		removed = append(removed, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("clean: sweep temp files: %w", err)
	}

	prunedDirs, err := store.RemoveEmptyDirs("")
	if err != nil {
		return removed, err
	}
	removed = append(removed, prunedDirs...)

	p.logger.Info("clean: done", slog.Int("removed", len(removed)))
	return removed, nil
}

// Watch re-plans on filesystem changes until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context) error {
	replan := func(ctx context.Context) (*align.Plan, error) {
		plan, _, err := p.plan(ctx)
		return plan, err
	}
	return watch.Run(ctx, p.cfg.Source.Root, p.cfg.Docs.Root, replan, p.logger)
}

// recordRun appends a run summary to the ledger when one is configured.
// Ledger failures are logged and otherwise ignored.
func (p *Pipeline) recordRun(r ledger.Run) {
	if p.cfg.Ledger.Path == "" {
		return
	}
	db, err := ledger.Open(p.cfg.Ledger.Path)
	if err != nil {
		p.logger.Warn("ledger: open failed", slog.String("error", err.Error()))
		return
	}
	defer db.Close()
	if err := db.Record(r); err != nil {
		p.logger.Warn("ledger: record failed", slog.String("error", err.Error()))
	}
}
