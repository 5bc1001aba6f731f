// Package align computes and applies the reconciliation between a source
// tree and its documentation tree. Planning is pure set arithmetic over the
// two path sets; all disk I/O lives in the reconciler.
package align

import (
	"path"
	"sort"
	"strings"

	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/source"
)

// Status classifies one source/doc path pair.
type Status string

const (
	StatusAligned     Status = "aligned"
	StatusMissingDoc  Status = "missing_doc"
	StatusOrphanedDoc Status = "orphaned_doc"
)

// Record is one row of the alignment diff.
type Record struct {
	SourcePath string `json:"source_path,omitempty"`
	DocPath    string `json:"doc_path,omitempty"`
	Status     Status `json:"status"`
}

// Plan is the typed output of a planning run. Applying it brings the doc
// tree into alignment with the source tree.
type Plan struct {
	ToCreate  []source.Module  `json:"to_create"`  // source modules with no doc counterpart
	ToArchive []doctree.Module `json:"to_archive"` // non-reserved docs whose source vanished
	ToRefresh []doctree.Module `json:"to_refresh"` // aligned docs due a timestamp refresh
	Orphans   []doctree.Module `json:"orphans"`    // same set as ToArchive, kept for read-only reporting
	Records   []Record         `json:"records"`
	Coverage  float64          `json:"coverage"` // percent of source modules with an aligned doc
}

// Empty reports whether the plan has no structural work (refreshes are
// intentionally not structural).
func (p *Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToArchive) == 0
}

// ComputePlan diffs the source modules against the doc modules. Reserved doc
// modules are exempt from orphan detection. Paths are canonicalized (slash
// separators, case folded) before comparison so that case-insensitive
// filesystems do not produce false diffs.
func ComputePlan(sourceModules []source.Module, docModules []doctree.Module) *Plan {
	srcByKey := make(map[string]source.Module, len(sourceModules))
	for _, m := range sourceModules {
		srcByKey[canonical(m.Path)] = m
	}
	docByKey := make(map[string]doctree.Module, len(docModules))
	for _, m := range docModules {
		docByKey[canonical(m.Path)] = m
	}

	plan := &Plan{}
	aligned := 0

	for _, m := range sourceModules {
		if doc, ok := docByKey[canonical(m.Path)]; ok {
			aligned++
			plan.ToRefresh = append(plan.ToRefresh, doc)
			plan.Records = append(plan.Records, Record{
				SourcePath: m.Path,
				DocPath:    doc.Path,
				Status:     StatusAligned,
			})
		} else {
			plan.ToCreate = append(plan.ToCreate, m)
			plan.Records = append(plan.Records, Record{
				SourcePath: m.Path,
				Status:     StatusMissingDoc,
			})
		}
	}

	for _, d := range docModules {
		if _, ok := srcByKey[canonical(d.Path)]; ok || d.Reserved {
			continue
		}
		// A nested doc module under an archived parent is archived with it.
		plan.ToArchive = append(plan.ToArchive, d)
		plan.Orphans = append(plan.Orphans, d)
		plan.Records = append(plan.Records, Record{
			DocPath: d.Path,
			Status:  StatusOrphanedDoc,
		})
	}

	sortModules(plan.ToCreate)
	sortDocs(plan.ToArchive)
	sortDocs(plan.ToRefresh)
	sortDocs(plan.Orphans)

	if len(sourceModules) == 0 {
		plan.Coverage = 100.0
	} else {
		plan.Coverage = float64(aligned) / float64(len(sourceModules)) * 100.0
	}
	return plan
}

// canonical normalizes a relative path for set membership: forward slashes,
// no leading "./", no trailing "/", case folded.
func canonical(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	return strings.ToLower(p)
}

func sortModules(ms []source.Module) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Path < ms[j].Path })
}

func sortDocs(ms []doctree.Module) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Path < ms[j].Path })
}
