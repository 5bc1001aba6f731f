// Package duplication finds documentation files that share content. The
// default strategy is exact SHA-256 matching; a similarity strategy scans
// per markdown section with normalized-content hashing plus Jaccard word
// overlap, so near-duplicates surface without changing the interface.
package duplication

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-zglob"
	"golang.org/x/sync/errgroup"

	"github.com/Anya-org/docalign/internal/checksum"
	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/storage"
)

// DefaultSimilarityThreshold is the Jaccard score above which two sections
// count as near-duplicates. Inherited from the original tooling.
const DefaultSimilarityThreshold = 0.80

// Document is one active documentation file to scan.
type Document struct {
	Path    string // relative to the docs root, slash-separated
	Content []byte
}

// Group is a set of documents (or document sections) sharing content.
type Group struct {
	Hash       string   `json:"hash"`
	Similarity float64  `json:"similarity"` // 1.0 for exact matches
	Members    []string `json:"members"`
}

// Strategy detects duplicate groups over a document set.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, docs []Document) ([]Group, error)
}

// ForName returns the strategy for a config name.
func ForName(name string, threshold float64) (Strategy, error) {
	switch name {
	case "", "exact":
		return &ExactHash{}, nil
	case "similarity":
		if threshold <= 0 || threshold > 1 {
			threshold = DefaultSimilarityThreshold
		}
		return &Similarity{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("duplication: unknown strategy %q", name)
	}
}

// Collect loads every active .md file from the docs store. Archive subtrees
// and paths matching an ignore glob are excluded. Files that cannot be read
// are skipped and their errors accumulated; only a failed listing is fatal.
func Collect(store storage.Provider, ignore []string) ([]Document, []error, error) {
	listing, err := store.List("")
	if err != nil {
		return nil, nil, fmt.Errorf("duplication: list docs: %w", err)
	}

	scanErrs := append([]error(nil), listing.Errors...)
	var docs []Document
	for _, f := range listing.Files {
		if underArchive(f.Path) || matchesIgnore(f.Path, ignore) {
			continue
		}
		data, err := store.Read(f.Path)
		if err != nil {
			scanErrs = append(scanErrs, fmt.Errorf("duplication: collect %s: %w", f.Path, err))
			continue
		}
		docs = append(docs, Document{Path: f.Path, Content: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, scanErrs, nil
}

func underArchive(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == doctree.ArchiveDir {
			return true
		}
	}
	return false
}

func matchesIgnore(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := zglob.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// ExactHash groups whole documents by raw-content SHA-256.
type ExactHash struct {
	// Workers bounds the hashing pool; 0 means automatic.
	Workers int
}

func (s *ExactHash) Name() string { return "exact" }

func (s *ExactHash) Detect(ctx context.Context, docs []Document) ([]Group, error) {
	hashes := make([]string, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(s.Workers, len(docs)))
	for i, d := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hashes[i] = checksum.Sum(d.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byHash := make(map[string][]string)
	for i, d := range docs {
		byHash[hashes[i]] = append(byHash[hashes[i]], d.Path)
	}
	return groupsFrom(byHash, 1.0), nil
}

// Similarity groups markdown sections: exact matches via normalized-content
// hash, near matches via Jaccard word-set overlap at or above Threshold.
type Similarity struct {
	Threshold float64
	// Workers bounds the section-extraction pool; 0 means automatic.
	Workers int
}

func (s *Similarity) Name() string { return "similarity" }

func (s *Similarity) Detect(ctx context.Context, docs []Document) ([]Group, error) {
	threshold := s.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	var mu sync.Mutex
	var sections []Section

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(s.Workers, len(docs)))
	for _, d := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			extracted := ExtractSections(d.Path, d.Content)
			mu.Lock()
			sections = append(sections, extracted...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Ref < sections[j].Ref })

	normalized := make([]string, len(sections))
	byHash := make(map[string][]string)
	for i, sec := range sections {
		normalized[i] = Normalize(sec.Text)
		if normalized[i] == "" {
			continue
		}
		h := checksum.Sum([]byte(normalized[i]))
		byHash[h] = append(byHash[h], sec.Ref)
	}
	groups := groupsFrom(byHash, 1.0)

	// Near matches: pairwise Jaccard over word sets, greedily paired so a
	// section lands in at most one fuzzy group.
	wordSets := make([]map[string]struct{}, len(sections))
	for i := range sections {
		wordSets[i] = wordSet(normalized[i])
	}
	used := make([]bool, len(sections))
	for i := range sections {
		if used[i] || len(wordSets[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(sections); j++ {
			if used[j] || len(wordSets[j]) == 0 {
				continue
			}
			if normalized[i] == normalized[j] {
				continue // already in an exact group
			}
			score := jaccard(wordSets[i], wordSets[j])
			if score >= threshold {
				groups = append(groups, Group{
					Hash:       checksum.Sum([]byte(normalized[i] + "\x00" + normalized[j])),
					Similarity: score,
					Members:    []string{sections[i].Ref, sections[j].Ref},
				})
				used[i], used[j] = true, true
				break
			}
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Members[0] < groups[j].Members[0] })
	return groups, nil
}

func groupsFrom(byHash map[string][]string, similarity float64) []Group {
	var groups []Group
	for h, members := range byHash {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		groups = append(groups, Group{Hash: h, Similarity: similarity, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Members[0] < groups[j].Members[0] })
	return groups
}

// Normalize strips markdown formatting and collapses whitespace so cosmetic
// differences do not defeat duplicate detection.
func Normalize(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lower))
	lastSpace := true
	for _, r := range lower {
		switch r {
		case '#', '*', '_', '~', '`', '>', '|':
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func wordSet(normalized string) map[string]struct{} {
	if normalized == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |A ∩ B| / |A ∪ B| over word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func poolSize(n, count int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if count > 0 && count < n {
		n = count
	}
	if n < 1 {
		n = 1
	}
	return n
}
