package duplication

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Anya-org/docalign/internal/testutil"
)

const installDoc = "# Install\n\nRun the installer and restart the shell.\nCheck the version afterwards.\n"

func detect(t *testing.T, s Strategy, docs []Document) []Group {
	t.Helper()
	groups, err := s.Detect(context.Background(), docs)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	return groups
}

func TestExactHashGroupsIdenticalFiles(t *testing.T) {
	docs := []Document{
		{Path: "auth/README.md", Content: []byte(installDoc)},
		{Path: "cache/README.md", Content: []byte(installDoc)},
		{Path: "storage/README.md", Content: []byte("# Storage\n\nEntirely different.\n")},
	}
	groups := detect(t, &ExactHash{}, docs)
	if len(groups) != 1 {
		t.Fatalf("groups = %+v, want exactly one", groups)
	}
	g := groups[0]
	if g.Similarity != 1.0 {
		t.Errorf("similarity = %f", g.Similarity)
	}
	want := []string{"auth/README.md", "cache/README.md"}
	if len(g.Members) != 2 || g.Members[0] != want[0] || g.Members[1] != want[1] {
		t.Errorf("members = %v, want %v", g.Members, want)
	}
}

func TestExactHashSingleByteBreaksGroup(t *testing.T) {
	modified := strings.Replace(installDoc, "Run", "run", 1)
	docs := []Document{
		{Path: "a/README.md", Content: []byte(installDoc)},
		{Path: "b/README.md", Content: []byte(modified)},
	}
	if groups := detect(t, &ExactHash{}, docs); len(groups) != 0 {
		t.Errorf("groups = %+v, want none after a one-byte change", groups)
	}
}

func TestCollectSkipsArchiveAndIgnored(t *testing.T) {
	docsRoot, store := testutil.TestDocsTree(t)
	testutil.WriteFile(t, docsRoot, "auth/README.md", installDoc)
	testutil.WriteFile(t, docsRoot, "auth/archive/legacy_old.md", installDoc)
	testutil.WriteFile(t, docsRoot, "archive/removed_modules/gone-20250101/README.md", installDoc)
	testutil.WriteFile(t, docsRoot, "drafts/wip.md", installDoc)
	testutil.WriteFile(t, docsRoot, "auth/notes.txt", "not markdown")

	docs, scanErrs, err := Collect(store, []string{"drafts/**"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(scanErrs) != 0 {
		t.Fatalf("scan errors = %v, want none", scanErrs)
	}
	if len(docs) != 1 || docs[0].Path != "auth/README.md" {
		paths := []string{}
		for _, d := range docs {
			paths = append(paths, d.Path)
		}
		t.Errorf("collected = %v, want only auth/README.md", paths)
	}
}

func TestCollectAccumulatesUnreadableFiles(t *testing.T) {
	docsRoot, store := testutil.TestDocsTree(t)
	testutil.WriteFile(t, docsRoot, "auth/README.md", installDoc)
	// A dangling symlink stands in for a file deleted mid-scan.
	if err := os.Symlink(filepath.Join(docsRoot, "gone.md"), filepath.Join(docsRoot, "broken.md")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	docs, scanErrs, err := Collect(store, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "auth/README.md" {
		t.Errorf("collected = %+v, want only auth/README.md", docs)
	}
	if len(scanErrs) != 1 {
		t.Errorf("scan errors = %v, want the broken entry accumulated", scanErrs)
	}
}

func TestDetectCancelled(t *testing.T) {
	docs := []Document{
		{Path: "a.md", Content: []byte(installDoc)},
		{Path: "b.md", Content: []byte(installDoc)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, s := range []Strategy{&ExactHash{}, &Similarity{}} {
		if _, err := s.Detect(ctx, docs); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: err = %v, want context.Canceled", s.Name(), err)
		}
	}
}

func TestForName(t *testing.T) {
	if s, err := ForName("", 0); err != nil || s.Name() != "exact" {
		t.Errorf("default strategy = %v, %v", s, err)
	}
	if s, err := ForName("similarity", 0.5); err != nil || s.Name() != "similarity" {
		t.Errorf("similarity strategy = %v, %v", s, err)
	}
	if _, err := ForName("fuzzy", 0); err == nil {
		t.Error("unknown strategy name must fail")
	}
}

func TestSimilarityExactSections(t *testing.T) {
	shared := "## Setup\n\nInstall the toolchain.\nConfigure the environment.\n"
	docs := []Document{
		{Path: "a.md", Content: []byte("# A\n\nIntro for a.\n\n" + shared)},
		{Path: "b.md", Content: []byte("# B\n\nIntro for b.\n\n" + shared)},
	}
	groups := detect(t, &Similarity{Threshold: 0.9}, docs)
	found := false
	for _, g := range groups {
		if g.Similarity == 1.0 && len(g.Members) == 2 &&
			strings.HasPrefix(g.Members[0], "a.md#") && strings.HasPrefix(g.Members[1], "b.md#") {
			found = true
		}
	}
	if !found {
		t.Errorf("groups = %+v, want an exact section group across a.md and b.md", groups)
	}
}

func TestSimilarityNormalizationIgnoresFormatting(t *testing.T) {
	docs := []Document{
		{Path: "a.md", Content: []byte("## Usage\n\nCall **the** function with `an argument`.\n")},
		{Path: "b.md", Content: []byte("## Usage\n\ncall the   function with an argument.\n")},
	}
	groups := detect(t, &Similarity{}, docs)
	if len(groups) != 1 || groups[0].Similarity != 1.0 {
		t.Errorf("groups = %+v, want one exact group despite formatting", groups)
	}
}

func TestSimilarityNearMatch(t *testing.T) {
	// Nine of ten words shared: Jaccard 9/11 ≈ 0.82.
	base := "## Notes\n\nalpha beta gamma delta epsilon zeta eta theta iota kappa\n"
	near := "## Notes\n\nalpha beta gamma delta epsilon zeta eta theta iota lambda\n"
	docs := []Document{
		{Path: "a.md", Content: []byte(base)},
		{Path: "b.md", Content: []byte(near)},
	}
	groups := detect(t, &Similarity{Threshold: 0.8}, docs)
	if len(groups) != 1 {
		t.Fatalf("groups = %+v, want one near-match group", groups)
	}
	g := groups[0]
	if g.Similarity >= 1.0 || g.Similarity < 0.8 {
		t.Errorf("similarity = %f, want in [0.8, 1.0)", g.Similarity)
	}

	// The same pair falls below a stricter threshold.
	if groups := detect(t, &Similarity{Threshold: 0.95}, docs); len(groups) != 0 {
		t.Errorf("groups = %+v, want none at threshold 0.95", groups)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"# Title\n\nSome **bold** text", "title some bold text"},
		{"  spaced\t\tout  ", "spaced out"},
		{"`code` and _emphasis_", "code and emphasis"},
		{"", ""},
		{"###\n**__**", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractSections(t *testing.T) {
	content := "# Guide\n\nIntro paragraph.\n\n## Install\n\nStep one.\nStep two.\n\n## Use\n\nRun it.\n"
	sections := ExtractSections("guide.md", []byte(content))
	if len(sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(sections))
	}
	if sections[0].Ref != "guide.md#Guide" {
		t.Errorf("first ref = %s", sections[0].Ref)
	}
	if !strings.Contains(sections[1].Text, "Step one.") || !strings.Contains(sections[1].Text, "Step two.") {
		t.Errorf("install section text = %q", sections[1].Text)
	}
	if sections[2].Title != "Use" {
		t.Errorf("third title = %s", sections[2].Title)
	}
}
