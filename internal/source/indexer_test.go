package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func index(t *testing.T, root string) *Result {
	t.Helper()
	res, err := Index(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	return res
}

func moduleByPath(res *Result, path string) (Module, bool) {
	for _, m := range res.Modules {
		if m.Path == path {
			return m, true
		}
	}
	return Module{}, false
}

func TestIndexDiscoversModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/mod.rs", "//! Authentication primitives\npub fn login() {}\n")
	writeFile(t, root, "storage/lib.rs", "// Storage backends\n")
	writeFile(t, root, "cache/mod.rs", "pub struct Cache;\n")
	writeFile(t, root, "docs-only/README.md", "not source\n")

	res := index(t, root)
	if len(res.Modules) != 3 {
		t.Fatalf("modules = %d, want 3", len(res.Modules))
	}
	if _, ok := moduleByPath(res, "docs-only"); ok {
		t.Error("directory without source files must not be a module")
	}
}

func TestIndexDescriptions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/mod.rs", "//! Authentication primitives\n")
	writeFile(t, root, "storage/lib.rs", "// Storage backends\n")
	writeFile(t, root, "cache/mod.rs", "pub struct Cache;\n")

	res := index(t, root)

	auth, _ := moduleByPath(res, "auth")
	if auth.Description != "Authentication primitives" {
		t.Errorf("auth description = %q", auth.Description)
	}
	st, _ := moduleByPath(res, "storage")
	if st.Description != "Storage backends" {
		t.Errorf("storage description = %q", st.Description)
	}
	// First line is not a comment: fall back to the default.
	cache, _ := moduleByPath(res, "cache")
	if cache.Description != DefaultDescription {
		t.Errorf("cache description = %q, want %q", cache.Description, DefaultDescription)
	}
}

func TestIndexFileCountIsRecursive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "net/mod.rs", "//! Networking\n")
	writeFile(t, root, "net/proxy/mod.rs", "//! Proxy support\n")
	writeFile(t, root, "net/proxy/socks.rs", "pub fn connect() {}\n")

	res := index(t, root)

	net, _ := moduleByPath(res, "net")
	if net.FileCount != 3 {
		t.Errorf("net file count = %d, want 3", net.FileCount)
	}
	proxy, ok := moduleByPath(res, "net/proxy")
	if !ok {
		t.Fatal("nested module not discovered")
	}
	if proxy.FileCount != 2 {
		t.Errorf("proxy file count = %d, want 2", proxy.FileCount)
	}
	if proxy.Category != "net" {
		t.Errorf("proxy category = %q, want net", proxy.Category)
	}
	if net.Category != "core" {
		t.Errorf("net category = %q, want core", net.Category)
	}
}

func TestIndexCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "scripts/main.py", "# tooling\n")
	writeFile(t, root, "lib/mod.rs", "//! Rust lib\n")

	res, err := Index(context.Background(), root, Options{
		Extensions: []string{".py"},
		EntryFiles: []string{"main.py"},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(res.Modules) != 1 || res.Modules[0].Path != "scripts" {
		t.Fatalf("modules = %+v, want only scripts", res.Modules)
	}
	if res.Modules[0].Description != "tooling" {
		t.Errorf("description = %q", res.Modules[0].Description)
	}
}

func TestIndexMissingRootIsFatal(t *testing.T) {
	if _, err := Index(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestIndexDeterministicOrder(t *testing.T) {
	root := t.TempDir()
	for _, m := range []string{"zeta", "alpha", "mid"} {
		writeFile(t, root, m+"/mod.rs", "//! "+m+"\n")
	}
	res := index(t, root)
	want := []string{"alpha", "mid", "zeta"}
	for i, m := range res.Modules {
		if m.Path != want[i] {
			t.Fatalf("order = %v at %d, want %v", m.Path, i, want)
		}
	}
}

func TestIndexCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth/mod.rs", "//! Auth\n")
	writeFile(t, root, "cache/mod.rs", "//! Caches\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Index(ctx, root, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
