// Package report renders pipeline outputs into human-readable summaries.
// It formats the typed results of the other packages and never scans the
// filesystem itself.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Anya-org/docalign/internal/align"
	"github.com/Anya-org/docalign/internal/duplication"
	"github.com/Anya-org/docalign/internal/gitmeta"
	"github.com/Anya-org/docalign/internal/ledger"
	"github.com/Anya-org/docalign/internal/migrate"
)

// Formats accepted by Render.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Data aggregates everything one report can cover. Nil or empty fields are
// simply omitted from the output.
type Data struct {
	Plan        *align.Plan          `json:"plan,omitempty"`
	Apply       *align.ApplyResult   `json:"apply,omitempty"`
	Duplicates  []duplication.Group  `json:"duplicates,omitempty"`
	Migrated    []migrate.Migrated   `json:"migrated,omitempty"`
	Git         *gitmeta.Info        `json:"git,omitempty"`
	History     []ledger.Run         `json:"history,omitempty"`
	Errors      []string             `json:"errors,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// Render formats d as markdown or JSON.
func Render(d Data, format string) ([]byte, error) {
	switch format {
	case "", FormatMarkdown, "md":
		return renderMarkdown(d), nil
	case FormatJSON:
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("report: marshal: %w", err)
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("report: unknown format %q", format)
	}
}

func renderMarkdown(d Data) []byte {
	var b strings.Builder
	b.WriteString("# Documentation Alignment Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", d.GeneratedAt.Format(time.RFC3339))
	if d.Git != nil {
		fmt.Fprintf(&b, "Commit: `%s` (%s)\n", d.Git.Commit, d.Git.Date.Format("2006-01-02"))
	}
	b.WriteString("\n")

	if d.Plan != nil {
		writePlan(&b, d.Plan)
	}
	if d.Apply != nil {
		writeApply(&b, d.Apply)
	}
	if len(d.Migrated) > 0 {
		writeMigrated(&b, d.Migrated)
	}
	if len(d.Duplicates) > 0 {
		writeDuplicates(&b, d.Duplicates)
	} else if d.Plan == nil && d.Apply == nil && len(d.Migrated) == 0 && len(d.History) == 0 {
		b.WriteString("No duplicate documentation found.\n\n")
	}
	if len(d.History) > 0 {
		writeHistory(&b, d.History)
	}
	if len(d.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range d.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func writePlan(b *strings.Builder, p *align.Plan) {
	b.WriteString("## Alignment\n\n")
	fmt.Fprintf(b, "Coverage: %.1f%%\n\n", p.Coverage)
	fmt.Fprintf(b, "| Status | Count |\n|---|---|\n")
	fmt.Fprintf(b, "| Aligned | %d |\n", len(p.ToRefresh))
	fmt.Fprintf(b, "| Missing docs | %d |\n", len(p.ToCreate))
	fmt.Fprintf(b, "| Orphaned docs | %d |\n\n", len(p.Orphans))

	for _, m := range p.ToCreate {
		fmt.Fprintf(b, "- MissingDoc: %s\n", m.Path)
	}
	for _, m := range p.Orphans {
		fmt.Fprintf(b, "- OrphanedDoc: %s\n", m.Path)
	}
	if len(p.ToCreate)+len(p.Orphans) > 0 {
		b.WriteString("\n")
	}
}

func writeApply(b *strings.Builder, a *align.ApplyResult) {
	b.WriteString("## Reconciliation\n\n")
	fmt.Fprintf(b, "Created %d, archived %d, refreshed %d.\n\n",
		len(a.Created), len(a.Archived), len(a.Refreshed))
	for _, p := range a.Created {
		fmt.Fprintf(b, "- created %s\n", p)
	}
	for _, mv := range a.Archived {
		fmt.Fprintf(b, "- archived %s to %s\n", mv.From, mv.To)
	}
	if len(a.Created)+len(a.Archived) > 0 {
		b.WriteString("\n")
	}
	if len(a.Errors) > 0 {
		fmt.Fprintf(b, "%d modules failed:\n\n", len(a.Errors))
		for _, e := range a.Errors {
			fmt.Fprintf(b, "- %s\n", e.Error())
		}
		b.WriteString("\n")
	}
}

func writeMigrated(b *strings.Builder, ms []migrate.Migrated) {
	b.WriteString("## Migration\n\n")
	copied := 0
	for _, m := range ms {
		if !m.Skipped {
			copied++
		}
	}
	fmt.Fprintf(b, "Scanned %d legacy files, archived %d.\n\n", len(ms), copied)
	for _, m := range ms {
		if m.Skipped {
			fmt.Fprintf(b, "- skipped %s (%s)\n", m.OriginalPath, m.Reason)
		} else {
			fmt.Fprintf(b, "- archived %s to %s (%d substantive lines)\n", m.OriginalPath, m.ArchivePath, m.Score)
		}
	}
	b.WriteString("\n")
}

func writeDuplicates(b *strings.Builder, groups []duplication.Group) {
	b.WriteString("## Duplicates\n\n")
	fmt.Fprintf(b, "%d duplicate groups found.\n\n", len(groups))
	for i, g := range groups {
		fmt.Fprintf(b, "### Group %d (similarity %.2f)\n\n", i+1, g.Similarity)
		fmt.Fprintf(b, "Hash: `%s`\n\n", g.Hash)
		for _, m := range g.Members {
			fmt.Fprintf(b, "- %s\n", m)
		}
		b.WriteString("\n")
	}
}

func writeHistory(b *strings.Builder, runs []ledger.Run) {
	b.WriteString("## Recent Runs\n\n")
	b.WriteString("| When | Kind | Coverage | Created | Archived | Duplicates | Errors |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		fmt.Fprintf(b, "| %s | %s | %.1f%% | %d | %d | %d | %d |\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Kind, r.Coverage,
			r.Created, r.Archived, r.Duplicates, r.Errors)
	}
	b.WriteString("\n")
}
