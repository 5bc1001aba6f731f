// Package testutil provides shared test helpers for building temporary
// source and documentation trees.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Anya-org/docalign/internal/storage"
)

// WriteFile creates rel (and its parents) under root with the given content.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestDocsTree creates a temporary docs directory with a storage provider.
func TestDocsTree(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// DocModule writes a minimal doc module with well-formed front matter.
func DocModule(t *testing.T, docsRoot, modulePath, title string) {
	t.Helper()
	WriteFile(t, docsRoot, modulePath+"/README.md",
		"---\ntitle: \""+title+"\"\ndescription: \"test module\"\nlast_updated: 2025-01-15\n---\n\n# "+title+"\n\nBody text.\n")
}

// SourceModule writes a source module directory with an entry file and the
// given extra source files.
func SourceModule(t *testing.T, sourceRoot, modulePath, description string, extra ...string) {
	t.Helper()
	WriteFile(t, sourceRoot, modulePath+"/mod.rs", "//! "+description+"\n\npub fn init() {}\n")
	for _, name := range extra {
		WriteFile(t, sourceRoot, modulePath+"/"+name, "pub fn helper() {}\n")
	}
}
