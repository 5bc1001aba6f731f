// Package migrate rescues substantive content from a legacy documentation
// tree into a module's archive, with provenance. Boilerplate stubs below
// the substantiveness threshold are left behind on purpose.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/storage"
)

// DefaultThreshold is the substantive-line count a legacy file must exceed
// to be worth archiving. Inherited from the original tooling.
const DefaultThreshold = 10

// labelRe matches tracking-label lines like "[AIR-3]" that carry no prose.
var labelRe = regexp.MustCompile(`^\[[A-Za-z]+-\d+\]`)

// Options configure a migration run.
type Options struct {
	// Threshold overrides DefaultThreshold when > 0.
	Threshold int
	// Now stamps the provenance header.
	Now time.Time
}

// Migrated describes the outcome for one legacy file.
type Migrated struct {
	OriginalPath string `json:"original_path"`          // relative to the legacy root
	ArchivePath  string `json:"archive_path,omitempty"` // relative to the docs root, empty when skipped
	Score        int    `json:"score"`
	Skipped      bool   `json:"skipped"`
	Reason       string `json:"reason,omitempty"`
}

// Migrate copies each substantive legacy markdown file belonging to
// modulePath into <modulePath>/archive/legacy_<name>, where name is the
// file's path below the module dir with slashes flattened, prefixed with a
// provenance header. Files at or below the threshold are reported skipped.
// Already-archived names are left alone, so re-running is a no-op.
func Migrate(ctx context.Context, legacyRoot, modulePath string, store storage.Provider, opts Options) ([]Migrated, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	candidates, err := collectCandidates(legacyRoot, modulePath)
	if err != nil {
		return nil, err
	}

	var out []Migrated
	for _, rel := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m, err := migrateFile(legacyRoot, rel, modulePath, store, threshold, opts.Now)
		if err != nil {
			m = Migrated{OriginalPath: rel, Skipped: true, Reason: err.Error()}
		}
		out = append(out, m)
	}
	return out, nil
}

// collectCandidates lists legacy markdown files that correspond to the
// module: everything under legacyRoot/<modulePath>/ plus a top-level file
// named after the module's last path segment.
func collectCandidates(legacyRoot, modulePath string) ([]string, error) {
	absRoot, err := filepath.Abs(legacyRoot)
	if err != nil {
		return nil, fmt.Errorf("migrate: resolve legacy root: %w", err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("migrate: stat legacy root: %w", err)
	}

	var out []string
	moduleDir := filepath.Join(absRoot, filepath.FromSlash(modulePath))
	if info, statErr := os.Stat(moduleDir); statErr == nil && info.IsDir() {
		walkErr := filepath.WalkDir(moduleDir, func(p string, d fs.DirEntry, werr error) error {
			if werr != nil {
				return werr
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
				return nil
			}
			rel, _ := filepath.Rel(absRoot, p)
			out = append(out, filepath.ToSlash(rel))
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("migrate: walk legacy tree: %w", walkErr)
		}
	}

	base := modulePath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	flat := base + ".md"
	if _, statErr := os.Stat(filepath.Join(absRoot, flat)); statErr == nil {
		out = append(out, flat)
	}

	sort.Strings(out)
	return out, nil
}

func migrateFile(legacyRoot, rel, modulePath string, store storage.Provider, threshold int, now time.Time) (Migrated, error) {
	data, err := os.ReadFile(filepath.Join(legacyRoot, filepath.FromSlash(rel)))
	if err != nil {
		return Migrated{}, fmt.Errorf("migrate: read %s: %w", rel, err)
	}

	score := SubstantiveLines(data)
	m := Migrated{OriginalPath: rel, Score: score}
	if score <= threshold {
		m.Skipped = true
		m.Reason = fmt.Sprintf("below threshold (%d substantive lines)", score)
		return m, nil
	}

	// Flatten the path below the module dir into the archive name, so two
	// legacy files sharing a basename get distinct targets.
	name := strings.TrimPrefix(rel, modulePath+"/")
	name = strings.ReplaceAll(name, "/", "_")
	target := fmt.Sprintf("%s/%s/legacy_%s", modulePath, doctree.ArchiveDir, name)
	if store.Exists(target) {
		m.Skipped = true
		m.ArchivePath = target
		m.Reason = "already archived"
		return m, nil
	}

	content := provenanceHeader(rel, now) + string(data)
	if err := store.Write(target, []byte(content)); err != nil {
		return Migrated{}, fmt.Errorf("migrate: archive %s: %w", rel, err)
	}
	m.ArchivePath = target
	return m, nil
}

// provenanceHeader records where archived content came from and when it was
// moved.
func provenanceHeader(originalPath string, now time.Time) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("status: archived\n")
	fmt.Fprintf(&b, "migrated: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "original: %s\n", originalPath)
	b.WriteString("---\n\n")
	return b.String()
}

// SubstantiveLines counts lines that carry real content: not headers, not
// front matter delimiters, not tracking labels, not blank.
func SubstantiveLines(data []byte) int {
	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
		case trimmed == "---":
		case labelRe.MatchString(trimmed):
		default:
			count++
		}
	}
	return count
}
