// Package watch re-plans alignment whenever the source or docs tree
// changes, logging drift as it appears. It never mutates anything; a sync
// still has to be run explicitly.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Anya-org/docalign/internal/align"
	"github.com/Anya-org/docalign/internal/storage"
)

// Replan recomputes the alignment plan from the current state on disk.
type Replan func(ctx context.Context) (*align.Plan, error)

// debounce coalesces editor save bursts into one re-plan.
const debounce = 500 * time.Millisecond

// Run watches sourceRoot and docsRoot until ctx is cancelled. New
// directories created at runtime are added to the watch list. After each
// quiet period it calls replan and logs the resulting drift summary.
func Run(ctx context.Context, sourceRoot, docsRoot string, replan Replan, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range []string{sourceRoot, docsRoot} {
		if err := addDirsRecursive(w, root); err != nil {
			return err
		}
	}

	logger.Info("watch: started",
		slog.String("source_root", sourceRoot),
		slog.String("docs_root", docsRoot))

	// Report the initial state before any change arrives.
	logPlan(ctx, replan, logger)

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watch: stopped")
			return nil

		case <-timerCh:
			logPlan(ctx, replan, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// Ignore the reconciler's own atomic-write temp files.
			if strings.Contains(filepath.Base(ev.Name), storage.TempPrefix) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watch: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

func logPlan(ctx context.Context, replan Replan, logger *slog.Logger) {
	plan, err := replan(ctx)
	if err != nil {
		logger.Warn("watch: replan failed", slog.String("error", err.Error()))
		return
	}
	if plan.Empty() {
		logger.Info("watch: aligned", slog.Float64("coverage", plan.Coverage))
		return
	}
	logger.Warn("watch: drift detected",
		slog.Float64("coverage", plan.Coverage),
		slog.Int("missing_docs", len(plan.ToCreate)),
		slog.Int("orphaned_docs", len(plan.Orphans)))
	for _, m := range plan.ToCreate {
		logger.Warn("watch: missing doc", slog.String("module", m.Path))
	}
	for _, d := range plan.Orphans {
		logger.Warn("watch: orphaned doc", slog.String("module", d.Path))
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
