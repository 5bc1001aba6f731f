package align

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Anya-org/docalign/internal/doctree"
	"github.com/Anya-org/docalign/internal/source"
	"github.com/Anya-org/docalign/internal/storage"
	"github.com/Anya-org/docalign/internal/testutil"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func reconcile(t *testing.T, sourceRoot, docsRoot string) (*Plan, *ApplyResult) {
	t.Helper()
	srcRes, err := source.Index(context.Background(), sourceRoot, source.Options{})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	docRes, err := doctree.Load(docsRoot, []string{"api", "getting-started", "archive"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	plan := ComputePlan(srcRes.Modules, docRes.Modules)

	res, err := Apply(context.Background(), plan, storeFor(t, docsRoot), ApplyOptions{
		Now:        testNow,
		SourceRoot: sourceRoot,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return plan, res
}

func storeFor(t *testing.T, docsRoot string) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(docsRoot)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func readDoc(docsRoot, rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(docsRoot, filepath.FromSlash(rel)))
}

func removeAll(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.RemoveAll(filepath.Join(root, rel)); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
}

func TestSyncCreatesStubs(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Authentication primitives", "token.rs")
	testutil.SourceModule(t, sourceRoot, "storage", "Storage backends")
	testutil.SourceModule(t, sourceRoot, "cache", "LRU caches")

	_, res := reconcile(t, sourceRoot, docsRoot)
	if len(res.Created) != 3 {
		t.Fatalf("created = %v, want 3 stubs", res.Created)
	}

	docRes, err := doctree.Load(docsRoot, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	mods := docRes.Modules
	if len(mods) != 3 {
		t.Fatalf("doc modules = %d, want 3", len(mods))
	}
	for _, m := range mods {
		if !m.MetadataOK {
			t.Errorf("stub %s has bad front matter", m.Path)
		}
		if !m.LastUpdated.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("stub %s last_updated = %v", m.Path, m.LastUpdated)
		}
	}

	// The auth stub lists its source files.
	byPath := map[string]doctree.Module{}
	for _, m := range mods {
		byPath[m.Path] = m
	}
	names := []string{}
	for _, c := range byPath["auth"].Components {
		names = append(names, c.Name)
	}
	if len(names) != 2 {
		t.Errorf("auth components = %v, want mod.rs and token.rs", names)
	}

	// After the sync, a fresh plan reports full coverage and no work.
	plan2, _ := reconcile(t, sourceRoot, docsRoot)
	if plan2.Coverage != 100.0 {
		t.Errorf("coverage after sync = %f", plan2.Coverage)
	}
	if !plan2.Empty() {
		t.Errorf("second plan not empty: create=%v archive=%v", plan2.ToCreate, plan2.ToArchive)
	}
}

func TestSyncArchivesOrphans(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Auth")
	testutil.DocModule(t, docsRoot, "auth", "auth Module")
	testutil.DocModule(t, docsRoot, "legacy_old", "legacy_old Module")

	original, err := readDoc(docsRoot, "legacy_old/README.md")
	if err != nil {
		t.Fatal(err)
	}

	_, res := reconcile(t, sourceRoot, docsRoot)
	if len(res.Archived) != 1 {
		t.Fatalf("archived = %v, want 1", res.Archived)
	}
	want := "archive/removed_modules/legacy_old-20250310"
	if res.Archived[0].To != want {
		t.Errorf("archive target = %s, want %s", res.Archived[0].To, want)
	}

	// No data loss: content is byte-identical at the archive path.
	moved, err := readDoc(docsRoot, want+"/README.md")
	if err != nil {
		t.Fatalf("archived content missing: %v", err)
	}
	if string(moved) != string(original) {
		t.Error("archived content differs from original")
	}

	// The orphan is gone from the active set.
	docRes, _ := doctree.Load(docsRoot, nil)
	for _, m := range docRes.Modules {
		if m.Path == "legacy_old" {
			t.Error("orphan still active after archive")
		}
	}
}

func TestSyncTwiceIsIdempotent(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Auth")
	testutil.SourceModule(t, sourceRoot, "cache", "Caches")

	reconcile(t, sourceRoot, docsRoot)

	// Remove cache from source; first sync archives its doc, second is a
	// no-op.
	removeAll(t, sourceRoot, "cache")

	_, res1 := reconcile(t, sourceRoot, docsRoot)
	if len(res1.Archived) != 1 {
		t.Fatalf("first sync archived = %v, want 1", res1.Archived)
	}

	plan2, res2 := reconcile(t, sourceRoot, docsRoot)
	if len(plan2.ToCreate) != 0 || len(plan2.ToArchive) != 0 {
		t.Errorf("second plan not empty: %+v", plan2)
	}
	if len(res2.Created) != 0 || len(res2.Archived) != 0 {
		t.Errorf("second sync did work: %+v", res2)
	}
}

func TestRefreshTouchesOnlyTimestamp(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Auth")
	original := "---\ntitle: \"auth Module\"\ndescription: \"hand written\"\nlast_updated: 2020-01-01\nowner: platform-team\n---\n\n# auth Module\n\nCarefully written prose that must survive.\n"
	testutil.WriteFile(t, docsRoot, "auth/README.md", original)

	_, res := reconcile(t, sourceRoot, docsRoot)
	if len(res.Refreshed) != 1 {
		t.Fatalf("refreshed = %v, want 1", res.Refreshed)
	}

	data, err := readDoc(docsRoot, "auth/README.md")
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	want := strings.Replace(original, "last_updated: 2020-01-01", "last_updated: 2025-03-10", 1)
	if content != want {
		t.Errorf("refresh changed more than the timestamp:\n%s", content)
	}
	if !strings.Contains(content, "owner: platform-team") {
		t.Error("extra front matter key was dropped")
	}
}

func TestArchiveConflictGetsSuffix(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.DocModule(t, docsRoot, "stray", "stray Module")
	// Occupy the date-stamped target ahead of time.
	testutil.WriteFile(t, docsRoot, "archive/removed_modules/stray-20250310/README.md", "occupied\n")

	_, res := reconcile(t, sourceRoot, docsRoot)
	if len(res.Archived) != 1 {
		t.Fatalf("archived = %v", res.Archived)
	}
	if res.Archived[0].To != "archive/removed_modules/stray-20250310-2" {
		t.Errorf("target = %s, want suffixed name", res.Archived[0].To)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Auth")
	testutil.DocModule(t, docsRoot, "stray", "stray Module")

	srcRes, _ := source.Index(context.Background(), sourceRoot, source.Options{})
	docRes, _ := doctree.Load(docsRoot, nil)
	plan := ComputePlan(srcRes.Modules, docRes.Modules)

	store := storeFor(t, docsRoot)
	res, err := Apply(context.Background(), plan, store, ApplyOptions{
		Now:    testNow,
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Created) != 1 || len(res.Archived) != 1 {
		t.Errorf("dry run must still report intended work: %+v", res)
	}
	if store.Exists("auth/README.md") {
		t.Error("dry run created a stub")
	}
	if !store.Exists("stray/README.md") {
		t.Error("dry run archived a module")
	}
}

func TestApplyCancelled(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Auth")
	testutil.SourceModule(t, sourceRoot, "cache", "Caches")

	srcRes, _ := source.Index(context.Background(), sourceRoot, source.Options{})
	docRes, _ := doctree.Load(docsRoot, nil)
	plan := ComputePlan(srcRes.Modules, docRes.Modules)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := storeFor(t, docsRoot)
	if _, err := Apply(ctx, plan, store, ApplyOptions{Now: testNow}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if store.Exists("auth/README.md") || store.Exists("cache/README.md") {
		t.Error("cancelled apply must not write stubs")
	}
}

// failingStore rejects writes under one module prefix, passing everything
// else through to the real filesystem provider.
type failingStore struct {
	*storage.FS
	prefix string
}

func (f *failingStore) Write(rel string, data []byte) error {
	if strings.HasPrefix(rel, f.prefix) {
		return fmt.Errorf("write %s: disk full", rel)
	}
	return f.FS.Write(rel, data)
}

func TestApplyModuleFailureDoesNotAbortOthers(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.SourceModule(t, sourceRoot, "auth", "Auth")
	testutil.SourceModule(t, sourceRoot, "cache", "Caches")
	testutil.SourceModule(t, sourceRoot, "storage", "Backends")

	srcRes, _ := source.Index(context.Background(), sourceRoot, source.Options{})
	docRes, _ := doctree.Load(docsRoot, nil)
	plan := ComputePlan(srcRes.Modules, docRes.Modules)

	store := &failingStore{FS: storeFor(t, docsRoot), prefix: "cache/"}
	res, err := Apply(context.Background(), plan, store, ApplyOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Created) != 2 {
		t.Errorf("created = %v, want the two healthy modules", res.Created)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Error(), "cache") {
		t.Errorf("errors = %v, want the cache write failure", res.Errors)
	}
	if res.ErrorSummary() == nil {
		t.Error("ErrorSummary must surface the per-module failure")
	}
	if !store.Exists("auth/README.md") || !store.Exists("storage/README.md") {
		t.Error("healthy modules must still be created")
	}
}

func TestNestedOrphanTravelsWithParent(t *testing.T) {
	sourceRoot := t.TempDir()
	docsRoot := t.TempDir()
	testutil.DocModule(t, docsRoot, "old", "old Module")
	testutil.DocModule(t, docsRoot, "old/inner", "inner Module")

	_, res := reconcile(t, sourceRoot, docsRoot)
	if len(res.Archived) != 1 {
		t.Fatalf("archived = %v, want parent only", res.Archived)
	}
	if res.Archived[0].From != "old" {
		t.Errorf("archived = %v", res.Archived)
	}
	if !storeFor(t, docsRoot).Exists("archive/removed_modules/old-20250310/inner/README.md") {
		t.Error("nested module did not travel with its parent")
	}
}
